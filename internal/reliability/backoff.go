package reliability

import (
	"math"
	"math/rand"
	"time"
)

// ReconnectPolicy decides whether and when to retry a failed connection.
// The attempt argument is the number of consecutive failures so far; a
// successful connection resets it to zero.
type ReconnectPolicy interface {
	// ShouldRetry reports whether another attempt may be made after the
	// given number of consecutive failures.
	ShouldRetry(attempt int) bool
	// NextDelay returns how long to wait before attempt n.
	NextDelay(attempt int) time.Duration
	// MaxAttempts returns the attempt limit.
	MaxAttempts() int
}

// ExponentialBackoff doubles the delay on every failure, capped at
// MaxInterval: delay(n) = min(base * 2^n, max).
type ExponentialBackoff struct {
	BaseDelay   time.Duration
	MaxInterval time.Duration
	Attempts    int
	Jitter      bool
}

// NewExponentialBackoff creates an exponential backoff policy without
// jitter, so delays follow the formula exactly.
func NewExponentialBackoff(base, max time.Duration, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:   base,
		MaxInterval: max,
		Attempts:    maxAttempts,
	}
}

// ShouldRetry implements ReconnectPolicy.
func (e *ExponentialBackoff) ShouldRetry(attempt int) bool {
	return attempt < e.Attempts
}

// NextDelay implements ReconnectPolicy.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.BaseDelay) * math.Pow(2, float64(attempt))

	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}

	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay // ±15%
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}

// MaxAttempts implements ReconnectPolicy.
func (e *ExponentialBackoff) MaxAttempts() int {
	return e.Attempts
}

// FixedDelay waits the same interval between every attempt.
type FixedDelay struct {
	Delay    time.Duration
	Attempts int
}

// NewFixedDelay creates a fixed delay policy.
func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{
		Delay:    delay,
		Attempts: maxAttempts,
	}
}

// ShouldRetry implements ReconnectPolicy.
func (f *FixedDelay) ShouldRetry(attempt int) bool {
	return attempt < f.Attempts
}

// NextDelay implements ReconnectPolicy.
func (f *FixedDelay) NextDelay(attempt int) time.Duration {
	return f.Delay
}

// MaxAttempts implements ReconnectPolicy.
func (f *FixedDelay) MaxAttempts() int {
	return f.Attempts
}
