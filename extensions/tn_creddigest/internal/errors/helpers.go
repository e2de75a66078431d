package errors

import (
	"strings"
)

// IsRetryableError checks if an error is transient write contention.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range NonRetryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}
	for _, pattern := range RetryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsNonRetryableError is the complement of IsRetryableError for non-nil errors.
func IsNonRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return !IsRetryableError(err)
}
