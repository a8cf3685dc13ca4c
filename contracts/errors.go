package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Envelope errors
	ErrInvalidMessageType = errors.New("contracts: invalid message type")
	ErrInvalidPriority    = errors.New("contracts: invalid priority")
	ErrMissingPayload     = errors.New("contracts: missing payload")

	// Transport errors
	ErrConnectionTimeout = errors.New("contracts: connection timeout")
)

// ConnectionError describes a failed transport operation.
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Endpoint URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
	Attempts  int       // Number of attempts made
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthError marks a connect-time credential rejection. It retries like any
// transport error, but callers can detect it with errors.As and refresh the
// token instead of retrying with a stale credential.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d): %v", e.StatusCode, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
