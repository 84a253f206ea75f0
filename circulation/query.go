package circulation

import (
	"sort"
	"time"
)

// LoanStatus is the display status of a transaction.
type LoanStatus string

const (
	LoanStatusBorrowed LoanStatus = "borrowed"
	LoanStatusOverdue  LoanStatus = "overdue"
	LoanStatusReturned LoanStatus = "returned"
)

// StatusOf classifies a transaction at the given point in time.
func StatusOf(transaction Transaction, now time.Time) LoanStatus {
	switch {
	case !transaction.IsOpen():
		return LoanStatusReturned
	case transaction.DueDate.Before(now):
		return LoanStatusOverdue
	default:
		return LoanStatusBorrowed
	}
}

// IsOverdue reports whether a loan is open and past its due date.
func IsOverdue(transaction Transaction, now time.Time) bool {
	return transaction.IsOpen() && transaction.DueDate.Before(now)
}

// OpenTransactionsFor returns the member's open loans, oldest borrow first.
func OpenTransactionsFor(transactions []Transaction, memberID string) []Transaction {
	open := make([]Transaction, 0)

	for _, transaction := range transactions {
		if transaction.IsOpen() && transaction.MemberID == memberID {
			open = append(open, transaction)
		}
	}

	sort.Slice(open, func(i, j int) bool {
		if !open[i].BorrowDate.Equal(open[j].BorrowDate) {
			return open[i].BorrowDate.Before(open[j].BorrowDate)
		}

		return open[i].ID < open[j].ID
	})

	return open
}

// HistoryFor returns all of the member's transactions, newest borrow first.
func HistoryFor(transactions []Transaction, memberID string) []Transaction {
	history := make([]Transaction, 0)

	for _, transaction := range transactions {
		if transaction.MemberID == memberID {
			history = append(history, transaction)
		}
	}

	sortNewestFirst(history)

	return history
}

// History returns all transactions, newest borrow first.
func History(transactions []Transaction) []Transaction {
	history := make([]Transaction, len(transactions))
	copy(history, transactions)

	sortNewestFirst(history)

	return history
}

// OpenCountByMember counts open loans per member id.
func OpenCountByMember(transactions []Transaction) map[string]int {
	counts := make(map[string]int)

	for _, transaction := range transactions {
		if transaction.IsOpen() {
			counts[transaction.MemberID]++
		}
	}

	return counts
}

// OverdueTransactions returns all open loans past their due date, oldest
// due date first.
func OverdueTransactions(transactions []Transaction, now time.Time) []Transaction {
	overdue := make([]Transaction, 0)

	for _, transaction := range transactions {
		if IsOverdue(transaction, now) {
			overdue = append(overdue, transaction)
		}
	}

	sort.Slice(overdue, func(i, j int) bool {
		if !overdue[i].DueDate.Equal(overdue[j].DueDate) {
			return overdue[i].DueDate.Before(overdue[j].DueDate)
		}

		return overdue[i].ID < overdue[j].ID
	})

	return overdue
}

func sortNewestFirst(transactions []Transaction) {
	sort.Slice(transactions, func(i, j int) bool {
		if !transactions[i].BorrowDate.Equal(transactions[j].BorrowDate) {
			return transactions[i].BorrowDate.After(transactions[j].BorrowDate)
		}

		return transactions[i].ID < transactions[j].ID
	})
}
