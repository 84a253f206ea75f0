package circulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/circulation-ledger-go/circulation"
	"github.com/openshelf/circulation-ledger-go/ledgerstore"
	"github.com/openshelf/circulation-ledger-go/ledgerstore/memoryengine"
)

type testRig struct {
	store  *memoryengine.Store
	repo   *circulation.Repository
	engine *circulation.Engine
	now    time.Time
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	store, err := memoryengine.NewStore()
	require.NoError(t, err)

	repo, err := circulation.NewRepository(circulation.Config{})
	require.NoError(t, err)
	require.NoError(t, repo.Attach(context.Background(), store))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	engine, err := circulation.NewEngine(store, repo, circulation.Config{},
		circulation.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	return &testRig{store: store, repo: repo, engine: engine, now: now}
}

func givenBook(t *testing.T, rig *testRig, title string, isbn string, quantity int) circulation.Book {
	t.Helper()

	book, err := rig.engine.AddBook(context.Background(), circulation.BookDraft{
		Title:    title,
		Author:   "Some Author",
		ISBN:     isbn,
		Genre:    "Fiction",
		Quantity: quantity,
	})
	require.NoError(t, err)

	return book
}

func givenMember(t *testing.T, rig *testRig, name string, memberID string) circulation.Member {
	t.Helper()

	member, err := rig.engine.AddMember(context.Background(), circulation.MemberDraft{
		Name:     name,
		Email:    name + "@example.com",
		MemberID: memberID,
	})
	require.NoError(t, err)

	return member
}

func Test_Borrow_HappyPath(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "The Go Programming Language", "978-0134190440", 2)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	// act
	transaction, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)

	// assert
	require.NoError(t, err)
	assert.NotEmpty(t, transaction.ID)
	assert.Equal(t, member.MemberID, transaction.MemberID)
	assert.Equal(t, member.Name, transaction.MemberName)
	assert.Equal(t, book.ID, transaction.BookID)
	assert.Equal(t, book.Title, transaction.BookTitle)
	assert.True(t, transaction.IsOpen())
	assert.Equal(t, rig.now, transaction.BorrowDate)
	assert.Equal(t, rig.now.Add(14*24*time.Hour), transaction.DueDate)

	updatedBook, found := rig.repo.BookByID(book.ID)
	require.True(t, found)
	assert.Equal(t, 1, updatedBook.Available)
	assert.Equal(t, 2, updatedBook.Quantity)
}

func Test_Borrow_ResolvesBookByTitleCaseInsensitive(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	givenBook(t, rig, "Clean Architecture", "978-0134494166", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	// act
	transaction, err := rig.engine.Borrow(context.Background(), member.MemberID, "clean architecture")

	// assert
	require.NoError(t, err)
	assert.Equal(t, "Clean Architecture", transaction.BookTitle)
}

func Test_Borrow_MemberNotFound(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Some Book", "111", 1)

	// act
	_, err := rig.engine.Borrow(context.Background(), "MEM-9999", book.ISBN)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.ErrorIs(t, err, circulation.ErrMemberNotFound)
}

func Test_Borrow_BookNotFound(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	// act
	_, err := rig.engine.Borrow(context.Background(), member.MemberID, "No Such Title")

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.ErrorIs(t, err, circulation.ErrBookNotFound)
}

func Test_Borrow_BookUnavailable(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Rare Book", "222", 1)
	alice := givenMember(t, rig, "Alice", "MEM-1001")
	bob := givenMember(t, rig, "Bob", "MEM-1002")

	_, err := rig.engine.Borrow(context.Background(), alice.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	_, err = rig.engine.Borrow(context.Background(), bob.MemberID, book.ISBN)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.ErrorIs(t, err, circulation.ErrBookUnavailable)
}

func Test_Borrow_DuplicateBorrowRejected(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Popular Book", "333", 5)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	_, err = rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	assert.ErrorIs(t, err, circulation.ErrDuplicateBorrow)

	updatedBook, found := rig.repo.BookByID(book.ID)
	require.True(t, found)
	assert.Equal(t, 4, updatedBook.Available)
}

func Test_Borrow_LastCopyTakenConcurrently(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Last Copy", "444", 1)
	alice := givenMember(t, rig, "Alice", "MEM-1001")
	bob := givenMember(t, rig, "Bob", "MEM-1002")

	// A second engine whose mirror stops updating, so its precheck still sees
	// one copy on the shelf after the first borrow commits.
	staleRepo, err := circulation.NewRepository(circulation.Config{})
	require.NoError(t, err)
	require.NoError(t, staleRepo.Attach(context.Background(), rig.store))
	staleRepo.Detach()

	staleEngine, err := circulation.NewEngine(rig.store, staleRepo, circulation.Config{},
		circulation.WithClock(func() time.Time { return rig.now }))
	require.NoError(t, err)

	_, err = rig.engine.Borrow(context.Background(), alice.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	_, err = staleEngine.Borrow(context.Background(), bob.MemberID, book.ISBN)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.ErrorIs(t, err, circulation.ErrStockExhausted)

	updatedBook, found := rig.repo.BookByID(book.ID)
	require.True(t, found)
	assert.Equal(t, 0, updatedBook.Available)
}

func Test_Return_HappyPath(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "The Go Programming Language", "978-0134190440", 2)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	borrowed, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	returned, err := rig.engine.Return(context.Background(), member.MemberID, book.ISBN)

	// assert
	require.NoError(t, err)
	assert.Equal(t, borrowed.ID, returned.ID)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, rig.now, *returned.ReturnDate)
	assert.False(t, returned.IsOpen())

	updatedBook, found := rig.repo.BookByID(book.ID)
	require.True(t, found)
	assert.Equal(t, 2, updatedBook.Available)

	snapshot := rig.repo.Snapshot()
	require.Len(t, snapshot.Transactions, 1)
	assert.False(t, snapshot.Transactions[0].IsOpen())
}

func Test_Return_WithoutOpenBorrow(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Some Book", "111", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	// act
	_, err := rig.engine.Return(context.Background(), member.MemberID, book.ISBN)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	assert.ErrorIs(t, err, circulation.ErrNoOpenBorrow)
}

func Test_Return_Twice(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Some Book", "111", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	_, err = rig.engine.Return(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	_, err = rig.engine.Return(context.Background(), member.MemberID, book.ISBN)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	assert.ErrorIs(t, err, circulation.ErrNoOpenBorrow)

	updatedBook, found := rig.repo.BookByID(book.ID)
	require.True(t, found)
	assert.Equal(t, 1, updatedBook.Available)
}

func Test_Return_StockCorruptionDetected(t *testing.T) {
	// arrange: a book with all copies on the shelf yet an open transaction,
	// the kind of inconsistency a return must surface instead of clamping.
	rig := newTestRig(t)
	ctx := context.Background()

	bookID, err := rig.store.Insert(ctx, "books", ledgerstore.Fields{
		"title": "Broken Ledger", "author": "A", "isbn": "555", "genre": "",
		"quantity": 2, "available": 2,
	})
	require.NoError(t, err)

	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err = rig.store.Insert(ctx, "transactions", ledgerstore.Fields{
		"memberId":   member.MemberID,
		"memberName": member.Name,
		"bookId":     bookID,
		"bookTitle":  "Broken Ledger",
		"borrowDate": rig.now.Format(time.RFC3339Nano),
		"dueDate":    rig.now.Add(14 * 24 * time.Hour).Format(time.RFC3339Nano),
		"returnDate": nil,
	})
	require.NoError(t, err)

	// act
	_, err = rig.engine.Return(ctx, member.MemberID, "555")

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	assert.ErrorIs(t, err, circulation.ErrStockCorrupted)

	book, found := rig.repo.BookByID(bookID)
	require.True(t, found)
	assert.Equal(t, 2, book.Available)
}

func Test_AddBook_Validation(t *testing.T) {
	// arrange
	rig := newTestRig(t)

	// act
	_, err := rig.engine.AddBook(context.Background(), circulation.BookDraft{
		Title: "Missing Fields", Quantity: 0,
	})

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	assert.ErrorIs(t, err, circulation.ErrInvalidBookDraft)
}

func Test_UpdateBook_QuantityChangeMovesAvailable(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Growing Stock", "666", 2)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	updated, err := rig.engine.UpdateBook(context.Background(), book.ID, circulation.BookDraft{
		Title: book.Title, Author: book.Author, ISBN: book.ISBN, Genre: book.Genre, Quantity: 5,
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, 4, updated.Available)
}

func Test_UpdateBook_AvailableClampedAtZero(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Shrinking Stock", "777", 3)
	alice := givenMember(t, rig, "Alice", "MEM-1001")
	bob := givenMember(t, rig, "Bob", "MEM-1002")

	_, err := rig.engine.Borrow(context.Background(), alice.MemberID, book.ISBN)
	require.NoError(t, err)
	_, err = rig.engine.Borrow(context.Background(), bob.MemberID, book.ISBN)
	require.NoError(t, err)

	// act: shrink quantity from 3 to 1 while 2 copies are lent out
	updated, err := rig.engine.UpdateBook(context.Background(), book.ID, circulation.BookDraft{
		Title: book.Title, Author: book.Author, ISBN: book.ISBN, Genre: book.Genre, Quantity: 1,
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Quantity)
	assert.Equal(t, 0, updated.Available)
}

func Test_UpdateBook_TransactionTitleSnapshotUnaffected(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Original Title", "888", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	transaction, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	_, err = rig.engine.UpdateBook(context.Background(), book.ID, circulation.BookDraft{
		Title: "Renamed Title", Author: book.Author, ISBN: book.ISBN, Genre: book.Genre, Quantity: 1,
	})
	require.NoError(t, err)

	// assert
	snapshot := rig.repo.Snapshot()
	require.Len(t, snapshot.Transactions, 1)
	assert.Equal(t, transaction.ID, snapshot.Transactions[0].ID)
	assert.Equal(t, "Original Title", snapshot.Transactions[0].BookTitle)
}

func Test_UpdateBook_NotFound(t *testing.T) {
	// arrange
	rig := newTestRig(t)

	// act
	_, err := rig.engine.UpdateBook(context.Background(), "no-such-id", circulation.BookDraft{
		Title: "T", Author: "A", ISBN: "I", Quantity: 1,
	})

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.ErrorIs(t, err, circulation.ErrBookNotFound)
}

func Test_DeleteBook_BlockedByOpenLoan(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Lent Out", "999", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	err = rig.engine.DeleteBook(context.Background(), book.ID)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.ErrorIs(t, err, circulation.ErrOutstandingLoans)
}

func Test_DeleteBook_AfterReturn(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Lent And Returned", "1010", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)
	_, err = rig.engine.Return(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	err = rig.engine.DeleteBook(context.Background(), book.ID)

	// assert: the closed transaction survives with its title snapshot
	require.NoError(t, err)
	_, found := rig.repo.BookByID(book.ID)
	assert.False(t, found)

	snapshot := rig.repo.Snapshot()
	require.Len(t, snapshot.Transactions, 1)
	assert.Equal(t, book.Title, snapshot.Transactions[0].BookTitle)
}

func Test_AddMember_GeneratedMemberID(t *testing.T) {
	// arrange
	rig := newTestRig(t)

	// act
	member, err := rig.engine.AddMember(context.Background(), circulation.MemberDraft{
		Name: "Alice", Email: "alice@example.com",
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "MEM-1772366400000", member.MemberID)
	assert.Equal(t, rig.now, member.JoinDate)
}

func Test_AddMember_DuplicateMemberIDRejected(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	givenMember(t, rig, "Alice", "MEM-1001")

	// act
	_, err := rig.engine.AddMember(context.Background(), circulation.MemberDraft{
		Name: "Impostor", Email: "impostor@example.com", MemberID: "mem-1001",
	})

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.ErrorIs(t, err, circulation.ErrDuplicateMemberID)
}

func Test_AddMember_Validation(t *testing.T) {
	// arrange
	rig := newTestRig(t)

	// act
	_, err := rig.engine.AddMember(context.Background(), circulation.MemberDraft{Name: "No Email"})

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrInvariantViolation)
	assert.ErrorIs(t, err, circulation.ErrInvalidMemberDraft)
}

func Test_UpdateMember_EditsNameAndEmailOnly(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	// act
	updated, err := rig.engine.UpdateMember(context.Background(), member.ID, circulation.MemberDraft{
		Name: "Alice Cooper", Email: "alice.cooper@example.com", MemberID: "MEM-HACKED",
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)
	assert.Equal(t, "alice.cooper@example.com", updated.Email)
	assert.Equal(t, "MEM-1001", updated.MemberID)

	mirrored, found := rig.repo.MemberByID(member.ID)
	require.True(t, found)
	assert.Equal(t, "MEM-1001", mirrored.MemberID)
	assert.Equal(t, "Alice Cooper", mirrored.Name)
}

func Test_UpdateMember_NotFound(t *testing.T) {
	// arrange
	rig := newTestRig(t)

	// act
	_, err := rig.engine.UpdateMember(context.Background(), "no-such-id", circulation.MemberDraft{
		Name: "Ghost", Email: "ghost@example.com",
	})

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.ErrorIs(t, err, circulation.ErrMemberNotFound)
}

func Test_DeleteMember_BlockedByOpenLoan(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Kept Book", "2020", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	err = rig.engine.DeleteMember(context.Background(), member.ID)

	// assert
	require.Error(t, err)
	assert.ErrorIs(t, err, circulation.ErrConflict)
	assert.ErrorIs(t, err, circulation.ErrOutstandingLoans)
}

func Test_DeleteMember_AfterReturn(t *testing.T) {
	// arrange
	rig := newTestRig(t)
	book := givenBook(t, rig, "Returned Book", "3030", 1)
	member := givenMember(t, rig, "Alice", "MEM-1001")

	_, err := rig.engine.Borrow(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)
	_, err = rig.engine.Return(context.Background(), member.MemberID, book.ISBN)
	require.NoError(t, err)

	// act
	err = rig.engine.DeleteMember(context.Background(), member.ID)

	// assert: the closed transaction survives with its name snapshot
	require.NoError(t, err)
	_, found := rig.repo.MemberByID(member.ID)
	assert.False(t, found)

	snapshot := rig.repo.Snapshot()
	require.Len(t, snapshot.Transactions, 1)
	assert.Equal(t, member.Name, snapshot.Transactions[0].MemberName)
}

func Test_NewEngine_RequiresStoreAndRepository(t *testing.T) {
	repo, err := circulation.NewRepository(circulation.Config{})
	require.NoError(t, err)

	_, err = circulation.NewEngine(nil, repo, circulation.Config{})
	assert.ErrorIs(t, err, circulation.ErrNilStore)

	store, err := memoryengine.NewStore()
	require.NoError(t, err)

	_, err = circulation.NewEngine(store, nil, circulation.Config{})
	assert.ErrorIs(t, err, circulation.ErrNilRepository)
}
