package circulation

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

// Field names of transaction documents in the ledger store.
const (
	fieldTxMemberID   = "memberId"
	fieldTxMemberName = "memberName"
	fieldTxBookID     = "bookId"
	fieldTxBookTitle  = "bookTitle"
	fieldBorrowDate   = "borrowDate"
	fieldDueDate      = "dueDate"
	fieldReturnDate   = "returnDate"
)

// Transaction records one borrow and its eventual return. MemberName and
// BookTitle are snapshots taken at borrow time; they stay unchanged even when
// the member or book record is later edited or deleted.
type Transaction struct {
	ID         ledgerstore.DocumentID `json:"-"`
	MemberID   string                 `json:"memberId"`
	MemberName string                 `json:"memberName"`
	BookID     ledgerstore.DocumentID `json:"bookId"`
	BookTitle  string                 `json:"bookTitle"`
	BorrowDate time.Time              `json:"borrowDate"`
	DueDate    time.Time              `json:"dueDate"`
	ReturnDate *time.Time             `json:"returnDate"`
}

// IsOpen reports whether the borrowed copy has not been returned yet.
func (t Transaction) IsOpen() bool {
	return t.ReturnDate == nil
}

func transactionFromDocument(doc ledgerstore.Document) (Transaction, error) {
	raw, marshalErr := jsoniter.ConfigFastest.Marshal(doc.Fields)
	if marshalErr != nil {
		return Transaction{}, marshalErr
	}

	var transaction Transaction
	if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(raw, &transaction); unmarshalErr != nil {
		return Transaction{}, unmarshalErr
	}

	transaction.ID = doc.ID

	return transaction, nil
}

func (t Transaction) fields() ledgerstore.Fields {
	fields := ledgerstore.Fields{
		fieldTxMemberID:   t.MemberID,
		fieldTxMemberName: t.MemberName,
		fieldTxBookID:     t.BookID,
		fieldTxBookTitle:  t.BookTitle,
		fieldBorrowDate:   t.BorrowDate.UTC().Format(time.RFC3339Nano),
		fieldDueDate:      t.DueDate.UTC().Format(time.RFC3339Nano),
		fieldReturnDate:   nil,
	}

	if t.ReturnDate != nil {
		fields[fieldReturnDate] = t.ReturnDate.UTC().Format(time.RFC3339Nano)
	}

	return fields
}
