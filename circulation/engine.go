package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

const (
	logMsgBookBorrowed  = "book borrowed"
	logMsgBookReturned  = "book returned"
	logMsgBookAdded     = "book added"
	logMsgBookUpdated   = "book updated"
	logMsgBookDeleted   = "book deleted"
	logMsgMemberAdded   = "member added"
	logMsgMemberUpdated = "member updated"
	logMsgMemberDeleted = "member deleted"

	logAttrMemberID      = "member_id"
	logAttrBookID        = "book_id"
	logAttrTransactionID = "transaction_id"

	memberIDPrefix = "MEM-"
)

var (
	// ErrNilStore occurs when NewEngine is called without a store.
	ErrNilStore = errors.New("nil ledger store supplied")

	// ErrNilRepository occurs when NewEngine is called without a repository.
	ErrNilRepository = errors.New("nil repository supplied")

	// ErrNilClock occurs when WithClock is called with a nil function.
	ErrNilClock = errors.New("nil clock supplied")
)

// Engine executes all circulation writes. Lookups and prechecks run against
// the repository mirror; every stock-affecting decision is then re-validated
// inside the store's atomic primitive before it commits.
type Engine struct {
	store  ledgerstore.Store
	repo   *Repository
	cfg    Config
	logger ledgerstore.Logger
	clock  func() time.Time
}

// Option configures an Engine.
type Option func(engine *Engine) error

// WithLogger sets a logger for successful operations.
func WithLogger(logger ledgerstore.Logger) Option {
	return func(engine *Engine) error {
		engine.logger = logger

		return nil
	}
}

// WithClock replaces the wall clock, mainly so tests can pin borrow and due dates.
func WithClock(clock func() time.Time) Option {
	return func(engine *Engine) error {
		if clock == nil {
			return ErrNilClock
		}

		engine.clock = clock

		return nil
	}
}

// NewEngine creates an engine over a store and its attached repository mirror.
func NewEngine(store ledgerstore.Store, repo *Repository, cfg Config, options ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if repo == nil {
		return nil, ErrNilRepository
	}

	engine := &Engine{
		store: store,
		repo:  repo,
		cfg:   cfg.withDefaults(),
		clock: time.Now,
	}

	for _, option := range options {
		if err := option(engine); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

// Borrow lends one copy of a book to a member and records the loan.
//
// The member is resolved by member id or email, the book by ISBN or title.
// Availability and the duplicate-borrow rule are prechecked against the
// mirror; availability is checked again on the transactional read inside the
// atomic operation, so two borrows racing for the last copy can never both
// succeed. The created transaction carries the due date (borrow date plus the
// configured loan period) and name/title snapshots.
func (e *Engine) Borrow(ctx context.Context, memberIdentifier string, bookIdentifier string) (Transaction, error) {
	member, found := e.repo.MemberByIdentifier(memberIdentifier)
	if !found {
		return Transaction{}, errors.Join(ErrNotFound, ErrMemberNotFound)
	}

	book, found := e.repo.BookByIdentifier(bookIdentifier)
	if !found {
		return Transaction{}, errors.Join(ErrNotFound, ErrBookNotFound)
	}

	if book.Available < 1 {
		return Transaction{}, errors.Join(ErrConflict, ErrBookUnavailable)
	}

	if _, open := e.repo.OpenTransaction(member.MemberID, book.ID); open {
		return Transaction{}, errors.Join(ErrInvariantViolation, ErrDuplicateBorrow)
	}

	bookRef := ledgerstore.DocumentRef{Collection: e.cfg.BooksCollection, ID: book.ID}

	var created Transaction

	atomicErr := e.store.Atomic(ctx, []ledgerstore.DocumentRef{bookRef}, func(tx ledgerstore.AtomicTx) error {
		bookDoc, getErr := tx.Get(bookRef)
		if errors.Is(getErr, ledgerstore.ErrNotFound) {
			return errors.Join(ErrNotFound, ErrBookNotFound)
		}

		if getErr != nil {
			return getErr
		}

		current, decodeErr := bookFromDocument(bookDoc)
		if decodeErr != nil {
			return decodeErr
		}

		if current.Available < 1 {
			return errors.Join(ErrConflict, ErrStockExhausted)
		}

		tx.Update(bookRef, ledgerstore.Fields{fieldAvailable: current.Available - 1})

		borrowedAt := e.clock().UTC()
		created = Transaction{
			MemberID:   member.MemberID,
			MemberName: member.Name,
			BookID:     book.ID,
			BookTitle:  current.Title,
			BorrowDate: borrowedAt,
			DueDate:    borrowedAt.Add(e.cfg.LoanPeriod),
		}
		created.ID = tx.Insert(e.cfg.TransactionsCollection, created.fields())

		return nil
	})

	if atomicErr != nil {
		return Transaction{}, e.mapStoreError(atomicErr)
	}

	e.log(logMsgBookBorrowed,
		logAttrMemberID, member.MemberID,
		logAttrBookID, book.ID,
		logAttrTransactionID, created.ID)

	return created, nil
}

// Return takes a borrowed copy back: the open transaction of the member/book
// pair gets its return date set and the book's available count goes up by one.
//
// The open transaction and the book are both part of the atomic read set.
// A return that would push available above quantity is rejected with
// ErrStockCorrupted instead of being clamped, since it means the ledger
// already disagrees with itself.
func (e *Engine) Return(ctx context.Context, memberIdentifier string, bookIdentifier string) (Transaction, error) {
	member, found := e.repo.MemberByIdentifier(memberIdentifier)
	if !found {
		return Transaction{}, errors.Join(ErrNotFound, ErrMemberNotFound)
	}

	book, found := e.repo.BookByIdentifier(bookIdentifier)
	if !found {
		return Transaction{}, errors.Join(ErrNotFound, ErrBookNotFound)
	}

	open, found := e.repo.OpenTransaction(member.MemberID, book.ID)
	if !found {
		return Transaction{}, errors.Join(ErrInvariantViolation, ErrNoOpenBorrow)
	}

	bookRef := ledgerstore.DocumentRef{Collection: e.cfg.BooksCollection, ID: book.ID}
	transactionRef := ledgerstore.DocumentRef{Collection: e.cfg.TransactionsCollection, ID: open.ID}

	var returned Transaction

	readSet := []ledgerstore.DocumentRef{bookRef, transactionRef}
	atomicErr := e.store.Atomic(ctx, readSet, func(tx ledgerstore.AtomicTx) error {
		transactionDoc, getErr := tx.Get(transactionRef)
		if errors.Is(getErr, ledgerstore.ErrNotFound) {
			return errors.Join(ErrInvariantViolation, ErrNoOpenBorrow)
		}

		if getErr != nil {
			return getErr
		}

		current, decodeErr := transactionFromDocument(transactionDoc)
		if decodeErr != nil {
			return decodeErr
		}

		if !current.IsOpen() {
			return errors.Join(ErrInvariantViolation, ErrNoOpenBorrow)
		}

		bookDoc, getErr := tx.Get(bookRef)
		if errors.Is(getErr, ledgerstore.ErrNotFound) {
			return errors.Join(ErrNotFound, ErrBookNotFound)
		}

		if getErr != nil {
			return getErr
		}

		currentBook, decodeErr := bookFromDocument(bookDoc)
		if decodeErr != nil {
			return decodeErr
		}

		if currentBook.Available+1 > currentBook.Quantity {
			return errors.Join(ErrInvariantViolation, ErrStockCorrupted)
		}

		returnedAt := e.clock().UTC()

		tx.Update(bookRef, ledgerstore.Fields{fieldAvailable: currentBook.Available + 1})
		tx.Update(transactionRef, ledgerstore.Fields{
			fieldReturnDate: returnedAt.Format(time.RFC3339Nano),
		})

		returned = current
		returned.ID = open.ID
		returned.ReturnDate = &returnedAt

		return nil
	})

	if atomicErr != nil {
		return Transaction{}, e.mapStoreError(atomicErr)
	}

	e.log(logMsgBookReturned,
		logAttrMemberID, member.MemberID,
		logAttrBookID, book.ID,
		logAttrTransactionID, returned.ID)

	return returned, nil
}

// AddBook registers a new catalogue entry with all copies on the shelf.
func (e *Engine) AddBook(ctx context.Context, draft BookDraft) (Book, error) {
	if err := draft.validate(); err != nil {
		return Book{}, err
	}

	book := Book{
		Title:     draft.Title,
		Author:    draft.Author,
		ISBN:      draft.ISBN,
		Genre:     draft.Genre,
		Quantity:  draft.Quantity,
		Available: draft.Quantity,
	}

	id, insertErr := e.store.Insert(ctx, e.cfg.BooksCollection, book.fields())
	if insertErr != nil {
		return Book{}, e.mapStoreError(insertErr)
	}

	book.ID = id
	e.log(logMsgBookAdded, logAttrBookID, book.ID)

	return book, nil
}

// UpdateBook edits a catalogue entry. A quantity change moves the available
// count by the same delta, clamped at zero; copies currently lent out are
// untouched.
func (e *Engine) UpdateBook(ctx context.Context, id ledgerstore.DocumentID, draft BookDraft) (Book, error) {
	if err := draft.validate(); err != nil {
		return Book{}, err
	}

	bookRef := ledgerstore.DocumentRef{Collection: e.cfg.BooksCollection, ID: id}

	var updated Book

	atomicErr := e.store.Atomic(ctx, []ledgerstore.DocumentRef{bookRef}, func(tx ledgerstore.AtomicTx) error {
		bookDoc, getErr := tx.Get(bookRef)
		if errors.Is(getErr, ledgerstore.ErrNotFound) {
			return errors.Join(ErrNotFound, ErrBookNotFound)
		}

		if getErr != nil {
			return getErr
		}

		current, decodeErr := bookFromDocument(bookDoc)
		if decodeErr != nil {
			return decodeErr
		}

		available := current.Available + (draft.Quantity - current.Quantity)
		if available < 0 {
			available = 0
		}

		updated = Book{
			ID:        id,
			Title:     draft.Title,
			Author:    draft.Author,
			ISBN:      draft.ISBN,
			Genre:     draft.Genre,
			Quantity:  draft.Quantity,
			Available: available,
		}

		tx.Update(bookRef, updated.fields())

		return nil
	})

	if atomicErr != nil {
		return Book{}, e.mapStoreError(atomicErr)
	}

	e.log(logMsgBookUpdated, logAttrBookID, id)

	return updated, nil
}

// DeleteBook removes a catalogue entry. Books with open loans cannot be
// deleted; closed transactions keep their title snapshot and survive.
func (e *Engine) DeleteBook(ctx context.Context, id ledgerstore.DocumentID) error {
	if _, found := e.repo.BookByID(id); !found {
		return errors.Join(ErrNotFound, ErrBookNotFound)
	}

	if e.repo.OpenCountForBook(id) > 0 {
		return errors.Join(ErrConflict, ErrOutstandingLoans)
	}

	if deleteErr := e.store.Delete(ctx, e.cfg.BooksCollection, id); deleteErr != nil {
		return e.mapStoreError(deleteErr)
	}

	e.log(logMsgBookDeleted, logAttrBookID, id)

	return nil
}

// AddMember registers a member. An empty draft member id gets a generated
// MEM-<unix-millis> id.
//
// The duplicate check runs against the repository mirror before the insert,
// not atomically with it; two concurrent registrations with the same member id
// can both pass the check. Generated ids make this window practically
// irrelevant, and resolution by member id stays deterministic either way.
func (e *Engine) AddMember(ctx context.Context, draft MemberDraft) (Member, error) {
	if err := draft.validate(); err != nil {
		return Member{}, err
	}

	memberID := draft.MemberID
	if memberID == "" {
		memberID = fmt.Sprintf("%s%d", memberIDPrefix, e.clock().UnixMilli())
	}

	if _, exists := e.repo.MemberByMemberID(memberID); exists {
		return Member{}, errors.Join(ErrConflict, ErrDuplicateMemberID)
	}

	member := Member{
		Name:     draft.Name,
		Email:    draft.Email,
		MemberID: memberID,
		JoinDate: e.clock().UTC(),
	}

	id, insertErr := e.store.Insert(ctx, e.cfg.MembersCollection, member.fields())
	if insertErr != nil {
		return Member{}, e.mapStoreError(insertErr)
	}

	member.ID = id
	e.log(logMsgMemberAdded, logAttrMemberID, member.MemberID)

	return member, nil
}

// UpdateMember edits a member's name and email. The member id is immutable
// because open and closed transactions reference it.
func (e *Engine) UpdateMember(ctx context.Context, id ledgerstore.DocumentID, draft MemberDraft) (Member, error) {
	if err := draft.validate(); err != nil {
		return Member{}, err
	}

	current, found := e.repo.MemberByID(id)
	if !found {
		return Member{}, errors.Join(ErrNotFound, ErrMemberNotFound)
	}

	partial := ledgerstore.Fields{
		fieldName:  draft.Name,
		fieldEmail: draft.Email,
	}

	updateErr := e.store.UpdateFields(ctx, e.cfg.MembersCollection, id, partial)
	if errors.Is(updateErr, ledgerstore.ErrNotFound) {
		return Member{}, errors.Join(ErrNotFound, ErrMemberNotFound)
	}

	if updateErr != nil {
		return Member{}, e.mapStoreError(updateErr)
	}

	current.Name = draft.Name
	current.Email = draft.Email
	e.log(logMsgMemberUpdated, logAttrMemberID, current.MemberID)

	return current, nil
}

// DeleteMember removes a member. Members with open loans cannot be deleted;
// closed transactions keep their name snapshot and survive.
func (e *Engine) DeleteMember(ctx context.Context, id ledgerstore.DocumentID) error {
	member, found := e.repo.MemberByID(id)
	if !found {
		return errors.Join(ErrNotFound, ErrMemberNotFound)
	}

	if e.repo.OpenCountForMember(member.MemberID) > 0 {
		return errors.Join(ErrConflict, ErrOutstandingLoans)
	}

	if deleteErr := e.store.Delete(ctx, e.cfg.MembersCollection, id); deleteErr != nil {
		return e.mapStoreError(deleteErr)
	}

	e.log(logMsgMemberDeleted, logAttrMemberID, member.MemberID)

	return nil
}

// mapStoreError translates store-level failures into the package's error
// categories. Errors already categorized by an atomic body pass through.
func (e *Engine) mapStoreError(err error) error {
	switch {
	case errors.Is(err, ledgerstore.ErrTransactionAborted):
		return errors.Join(ErrConflict, err)
	case errors.Is(err, ledgerstore.ErrStoreUnavailable):
		return errors.Join(ErrStoreUnavailable, err)
	default:
		return err
	}
}

func (e *Engine) log(msg string, args ...any) {
	if e.logger == nil {
		return
	}

	e.logger.Info(msg, args...)
}
