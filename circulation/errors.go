package circulation

import "errors"

// Category sentinels. Every engine failure is joined with exactly one of
// these, so callers can match either the category or the specific error
// with errors.Is.
var (
	// ErrNotFound covers member, book, and transaction lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation covers duplicate open borrows, returns without an
	// open borrow, and stock counts exceeding quantity. The latter is surfaced,
	// never auto-corrected, since it indicates a data-consistency bug.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConflict covers atomic operations aborted under contention, stock
	// exhausted between check and commit, and deletions blocked by open
	// transactions.
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable covers an unreachable ledger store.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

// Specific failures.
var (
	ErrMemberNotFound    = errors.New("member not found")
	ErrBookNotFound      = errors.New("book not found")
	ErrBookUnavailable   = errors.New("book is not available for borrowing")
	ErrDuplicateBorrow   = errors.New("member has already borrowed this book")
	ErrStockExhausted    = errors.New("last copy was taken by a concurrent borrow")
	ErrNoOpenBorrow      = errors.New("book was not borrowed by this member or has already been returned")
	ErrStockCorrupted    = errors.New("available count would exceed quantity")
	ErrOutstandingLoans  = errors.New("open transactions still reference this record")
	ErrDuplicateMemberID = errors.New("a member with this member id already exists")
)

// Validation failures for admin CRUD input.
var (
	ErrInvalidBookDraft   = errors.New("title, author and isbn are required and quantity must be at least 1")
	ErrInvalidMemberDraft = errors.New("name and email are required")
)
