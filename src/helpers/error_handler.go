package helpers

import (
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type RelayError struct {
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Distinct error types for type assertions across the error taxonomy:
// transient I/O, malformed data, formula failures, storage failures.
type ConfigurationError struct{ RelayError }
type NetworkError struct{ RelayError }
type DataSourceError struct{ RelayError }
type DatabaseError struct{ RelayError }
type FormulaError struct{ RelayError }

// -----------------------------------------------------------------------------

func NewNetworkError(msg string, cause error) *NetworkError {
	return &NetworkError{RelayError{Message: msg, Cause: cause}}
}

func NewDataSourceError(msg string, cause error) *DataSourceError {
	return &DataSourceError{RelayError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{RelayError{Message: msg, Cause: cause}}
}

func NewFormulaError(msg string, cause error) *FormulaError {
	return &FormulaError{RelayError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times
// with exponential backoff.
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		fmt.Printf("Warning: Attempt %d/%d failed for %s: %v. Retrying in %v\n", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", operation, maxRetries, lastErr)
}
