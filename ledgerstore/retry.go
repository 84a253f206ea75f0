package ledgerstore

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	// DefaultMaxAttempts is the contention retry limit engines use unless configured otherwise.
	DefaultMaxAttempts = 6

	// DefaultBaseDelay is the first backoff delay; subsequent delays double.
	DefaultBaseDelay = 10 * time.Millisecond

	// DefaultJitterFactor is the jitter added to each backoff delay to prevent thundering herd.
	DefaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc represents one attempt of an atomic operation.
type RetryableFunc func(ctx context.Context) error

// RetryOnVersionConflict implements the internal contention retry of the store engines.
// It executes fn with exponential backoff, retrying only while fn fails with
// ErrVersionConflict, up to maxAttempts times.
//
// Retry schedule (defaults): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms (with 30% jitter).
// All other errors fail fast; they are the business decision of the atomic body.
func RetryOnVersionConflict(
	ctx context.Context,
	maxAttempts int,
	baseDelay time.Duration,
	jitterFactor float64,
	fn RetryableFunc,
) error {

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: baseDelay * 2^(attempt-1)
			delay := baseDelay * time.Duration(1<<(attempt-1))

			// Add jitter to prevent thundering herd
			jitter := rand.Float64() * float64(delay) * jitterFactor //nolint:gosec //math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			select {
			case <-time.After(backoffDelay):
				// Continue with retry
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil // Success
		}

		if !errors.Is(lastErr, ErrVersionConflict) {
			return lastErr // Permanent failure, the body decided
		}
	}

	return errors.Join(ErrTransactionAborted, lastErr) // Max attempts reached
}
