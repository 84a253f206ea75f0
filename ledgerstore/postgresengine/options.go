package postgresengine

import (
	"time"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

// Option defines a functional option for configuring the Store.
type Option func(*Store) error

// WithTableName sets the documents table name for the Store.
func WithTableName(tableName string) Option {
	return func(s *Store) error {
		if tableName == "" {
			return ledgerstore.ErrEmptyDocumentsTableName
		}

		s.documentsTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Document counts, durations, concurrency conflicts (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger ledgerstore.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger for the Store.
// When configured, it takes precedence over the plain logger, enabling
// automatic trace correlation through the request context.
func WithContextualLogger(logger ledgerstore.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
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
