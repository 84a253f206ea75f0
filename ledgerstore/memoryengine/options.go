package memoryengine

import (
	"time"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

// Option defines a functional option for configuring the in-memory Store.
type Option func(*Store) error

// WithLogger sets the logger for the Store.
func WithLogger(logger ledgerstore.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithMaxAttempts sets the contention retry limit for atomic operations.
func WithMaxAttempts(attempts int) Option {
	return func(s *Store) error {
		if attempts <= 0 {
			return ledgerstore.ErrInvalidMaxAttempts
		}

		s.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the base delay for the exponential contention backoff.
func WithBaseDelay(delay time.Duration) Option {
	return func(s *Store) error {
		if delay < 0 {
			return ledgerstore.ErrNegativeBaseDelay
		}

		s.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter factor added to each backoff delay.
// Valid range: 0.0 (no jitter) to 1.0 (100% jitter).
func WithJitterFactor(factor float64) Option {
	return func(s *Store) error {
		if factor < 0.0 || factor > 1.0 {
			return ledgerstore.ErrInvalidJitterFactor
		}

		s.jitterFactor = factor

		return nil
	}
}
