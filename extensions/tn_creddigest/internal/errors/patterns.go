package errors

// Retryable error patterns reported by the SQLite driver under write contention.
const (
	ErrPatternDatabaseLocked = "database is locked"
	ErrPatternTableLocked    = "database table is locked"
	ErrPatternBusy           = "sqlite_busy"
)

// Non-retryable error patterns.
const (
	ErrPatternContextCanceled = "context canceled"
	ErrPatternContextDeadline = "context deadline exceeded"
	ErrPatternConstraint      = "constraint failed"
	ErrPatternNoSuchTable     = "no such table"
	ErrPatternSyntaxError     = "syntax error"
	ErrPatternClosed          = "sql: database is closed"
)

// RetryableErrorPatterns contains all error patterns that are worth retrying.
var RetryableErrorPatterns = []string{
	ErrPatternDatabaseLocked,
	ErrPatternTableLocked,
	ErrPatternBusy,
}

// NonRetryableErrorPatterns contains patterns that win over a retryable match.
var NonRetryableErrorPatterns = []string{
	ErrPatternContextCanceled,
	ErrPatternContextDeadline,
	ErrPatternConstraint,
	ErrPatternNoSuchTable,
	ErrPatternSyntaxError,
	ErrPatternClosed,
}
