package circulation

import (
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

// Field names of book documents in the ledger store.
const (
	fieldTitle     = "title"
	fieldAuthor    = "author"
	fieldISBN      = "isbn"
	fieldGenre     = "genre"
	fieldQuantity  = "quantity"
	fieldAvailable = "available"
)

// Book is a catalogue entry. Quantity is the number of copies owned,
// Available the number of copies currently on the shelf.
// 0 <= Available <= Quantity holds at all times.
type Book struct {
	ID        ledgerstore.DocumentID `json:"-"`
	Title     string                 `json:"title"`
	Author    string                 `json:"author"`
	ISBN      string                 `json:"isbn"`
	Genre     string                 `json:"genre"`
	Quantity  int                    `json:"quantity"`
	Available int                    `json:"available"`
}

// BookDraft is the admin-supplied input for creating or updating a book.
type BookDraft struct {
	Title    string
	Author   string
	ISBN     string
	Genre    string
	Quantity int
}

func (d BookDraft) validate() error {
	if strings.TrimSpace(d.Title) == "" ||
		strings.TrimSpace(d.Author) == "" ||
		strings.TrimSpace(d.ISBN) == "" ||
		d.Quantity < 1 {

		return errors.Join(ErrInvariantViolation, ErrInvalidBookDraft)
	}

	return nil
}

func bookFromDocument(doc ledgerstore.Document) (Book, error) {
	raw, marshalErr := jsoniter.ConfigFastest.Marshal(doc.Fields)
	if marshalErr != nil {
		return Book{}, marshalErr
	}

	var book Book
	if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(raw, &book); unmarshalErr != nil {
		return Book{}, unmarshalErr
	}

	book.ID = doc.ID

	return book, nil
}

func (b Book) fields() ledgerstore.Fields {
	return ledgerstore.Fields{
		fieldTitle:     b.Title,
		fieldAuthor:    b.Author,
		fieldISBN:      b.ISBN,
		fieldGenre:     b.Genre,
		fieldQuantity:  b.Quantity,
		fieldAvailable: b.Available,
	}
}
