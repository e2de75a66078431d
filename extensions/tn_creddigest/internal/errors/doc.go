// Package errors classifies storage errors for the credential digest registry.
//
// Error Categories:
//
// 1. Retryable Errors (Transient):
//   - SQLite busy / locked: another connection or process holds the write lock
//     These errors are retried with exponential backoff until the configured
//     budget is exhausted.
//
// 2. Non-Retryable Errors (Fatal):
//   - Constraint violations, schema problems, malformed SQL, closed handles
//   - Context cancellation
//     These errors are returned to the caller immediately.
//
// Registry outcomes (already submitted, invalid version) never reach this package:
// they are decided before or above the storage layer.
package errors
