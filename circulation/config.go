package circulation

import "time"

// Default collection names and loan period.
const (
	DefaultBooksCollection        = "books"
	DefaultMembersCollection      = "members"
	DefaultTransactionsCollection = "transactions"
	DefaultLoanPeriod             = 14 * 24 * time.Hour
)

// Config carries the store collection names and the loan period.
// The zero value is usable; empty or zero entries fall back to the defaults.
type Config struct {
	BooksCollection        string
	MembersCollection      string
	TransactionsCollection string
	LoanPeriod             time.Duration
}

func (c Config) withDefaults() Config {
	if c.BooksCollection == "" {
		c.BooksCollection = DefaultBooksCollection
	}

	if c.MembersCollection == "" {
		c.MembersCollection = DefaultMembersCollection
	}

	if c.TransactionsCollection == "" {
		c.TransactionsCollection = DefaultTransactionsCollection
	}

	if c.LoanPeriod <= 0 {
		c.LoanPeriod = DefaultLoanPeriod
	}

	return c
}
