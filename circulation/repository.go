package circulation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

const (
	logMsgSkippedBrokenDocument = "skipped document that could not be decoded"
	logMsgRepositoryAttached    = "repository attached to ledger store"

	logAttrCollection = "collection"
	logAttrDocumentID = "document_id"
	logAttrError      = "error"
)

// Snapshot is a point-in-time, consistent-per-collection copy of the
// catalogue. The slices are sorted by document id and safe to retain.
type Snapshot struct {
	Books        []Book
	Members      []Member
	Transactions []Transaction
}

// Repository mirrors the books, members, and transactions collections of a
// ledger store into memory. After Attach it stays current through the store's
// change notifications, the way a UI keeps live collection listeners open.
//
// The mirror is a read model only. All writes go through the Engine, and the
// Engine re-validates every precondition inside the store's atomic primitive,
// so a momentarily stale mirror can never corrupt stock counts.
type Repository struct {
	cfg    Config
	logger ledgerstore.Logger

	mu           sync.RWMutex
	books        map[ledgerstore.DocumentID]Book
	members      map[ledgerstore.DocumentID]Member
	transactions map[ledgerstore.DocumentID]Transaction

	observerMu     sync.Mutex
	observers      map[int]func(Snapshot)
	nextObserverID int
	cancels        []ledgerstore.CancelFunc
}

// RepositoryOption configures a Repository.
type RepositoryOption func(repo *Repository) error

// WithRepositoryLogger sets a logger for decode warnings.
func WithRepositoryLogger(logger ledgerstore.Logger) RepositoryOption {
	return func(repo *Repository) error {
		repo.logger = logger

		return nil
	}
}

// NewRepository creates an empty repository for the given collection layout.
// Call Attach to seed it from a store and keep it current.
func NewRepository(cfg Config, options ...RepositoryOption) (*Repository, error) {
	repo := &Repository{
		cfg:          cfg.withDefaults(),
		books:        make(map[ledgerstore.DocumentID]Book),
		members:      make(map[ledgerstore.DocumentID]Member),
		transactions: make(map[ledgerstore.DocumentID]Transaction),
		observers:    make(map[int]func(Snapshot)),
	}

	for _, option := range options {
		if err := option(repo); err != nil {
			return nil, err
		}
	}

	return repo, nil
}

// Attach seeds the repository from the store and subscribes to change
// notifications for all three collections. It must be called once; call the
// returned cancel via Detach when the repository is no longer needed.
func (r *Repository) Attach(ctx context.Context, store ledgerstore.Store) error {
	type seed struct {
		collection string
		refresh    func(documents []ledgerstore.Document)
	}

	seeds := []seed{
		{r.cfg.BooksCollection, r.refreshBooks},
		{r.cfg.MembersCollection, r.refreshMembers},
		{r.cfg.TransactionsCollection, r.refreshTransactions},
	}

	for _, s := range seeds {
		documents, listErr := store.List(ctx, s.collection)
		if listErr != nil {
			return errors.Join(ErrStoreUnavailable, listErr)
		}

		s.refresh(documents)
		r.cancels = append(r.cancels, store.Subscribe(s.collection, s.refresh))
	}

	r.log(logMsgRepositoryAttached,
		logAttrCollection, r.cfg.BooksCollection+","+r.cfg.MembersCollection+","+r.cfg.TransactionsCollection)

	return nil
}

// Detach cancels all store subscriptions. The last mirrored state stays
// readable but no longer updates.
func (r *Repository) Detach() {
	for _, cancel := range r.cancels {
		cancel()
	}

	r.cancels = nil
}

// Subscribe registers an observer that receives a full Snapshot after every
// change to any of the three collections. The returned cancel removes it.
func (r *Repository) Subscribe(observer func(Snapshot)) ledgerstore.CancelFunc {
	r.observerMu.Lock()
	id := r.nextObserverID
	r.nextObserverID++
	r.observers[id] = observer
	r.observerMu.Unlock()

	return func() {
		r.observerMu.Lock()
		delete(r.observers, id)
		r.observerMu.Unlock()
	}
}

// Snapshot returns the current mirrored state, sorted by document id.
func (r *Repository) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked()
}

// BookByID looks a book up by its store document id.
func (r *Repository) BookByID(id ledgerstore.DocumentID) (Book, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[id]

	return book, ok
}

// MemberByID looks a member up by its store document id.
func (r *Repository) MemberByID(id ledgerstore.DocumentID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[id]

	return member, ok
}

// BookByIdentifier resolves a book by exact ISBN or case-insensitive title.
// When several books match, the one with the lowest document id wins.
func (r *Repository) BookByIdentifier(identifier string) (Book, bool) {
	identifier = strings.TrimSpace(identifier)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found Book
		ok    bool
	)

	for _, book := range r.books {
		if book.ISBN != identifier && !strings.EqualFold(book.Title, identifier) {
			continue
		}

		if !ok || book.ID < found.ID {
			found, ok = book, true
		}
	}

	return found, ok
}

// MemberByIdentifier resolves a member by case-insensitive member id or email.
// When several members match, the one with the lowest document id wins.
func (r *Repository) MemberByIdentifier(identifier string) (Member, bool) {
	identifier = strings.TrimSpace(identifier)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found Member
		ok    bool
	)

	for _, member := range r.members {
		if !strings.EqualFold(member.MemberID, identifier) && !strings.EqualFold(member.Email, identifier) {
			continue
		}

		if !ok || member.ID < found.ID {
			found, ok = member, true
		}
	}

	return found, ok
}

// MemberByMemberID resolves a member by case-insensitive member id only.
func (r *Repository) MemberByMemberID(memberID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found Member
		ok    bool
	)

	for _, member := range r.members {
		if !strings.EqualFold(member.MemberID, memberID) {
			continue
		}

		if !ok || member.ID < found.ID {
			found, ok = member, true
		}
	}

	return found, ok
}

// OpenTransaction finds the open transaction for a member/book pair. With
// intact invariants there is at most one; should duplicates ever exist, the
// one with the lowest document id is returned so repeated returns drain them
// deterministically.
func (r *Repository) OpenTransaction(memberID string, bookID ledgerstore.DocumentID) (Transaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found Transaction
		ok    bool
	)

	for _, transaction := range r.transactions {
		if !transaction.IsOpen() || transaction.MemberID != memberID || transaction.BookID != bookID {
			continue
		}

		if !ok || transaction.ID < found.ID {
			found, ok = transaction, true
		}
	}

	return found, ok
}

// OpenCountForBook counts open transactions referencing a book document.
func (r *Repository) OpenCountForBook(bookID ledgerstore.DocumentID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0

	for _, transaction := range r.transactions {
		if transaction.IsOpen() && transaction.BookID == bookID {
			count++
		}
	}

	return count
}

// OpenCountForMember counts open transactions held by a member id.
func (r *Repository) OpenCountForMember(memberID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0

	for _, transaction := range r.transactions {
		if transaction.IsOpen() && transaction.MemberID == memberID {
			count++
		}
	}

	return count
}

func (r *Repository) refreshBooks(documents []ledgerstore.Document) {
	books := make(map[ledgerstore.DocumentID]Book, len(documents))

	for _, doc := range documents {
		book, decodeErr := bookFromDocument(doc)
		if decodeErr != nil {
			r.logSkipped(doc, decodeErr)

			continue
		}

		books[doc.ID] = book
	}

	r.mu.Lock()
	r.books = books
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snapshot)
}

func (r *Repository) refreshMembers(documents []ledgerstore.Document) {
	members := make(map[ledgerstore.DocumentID]Member, len(documents))

	for _, doc := range documents {
		member, decodeErr := memberFromDocument(doc)
		if decodeErr != nil {
			r.logSkipped(doc, decodeErr)

			continue
		}

		members[doc.ID] = member
	}

	r.mu.Lock()
	r.members = members
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snapshot)
}

func (r *Repository) refreshTransactions(documents []ledgerstore.Document) {
	transactions := make(map[ledgerstore.DocumentID]Transaction, len(documents))

	for _, doc := range documents {
		transaction, decodeErr := transactionFromDocument(doc)
		if decodeErr != nil {
			r.logSkipped(doc, decodeErr)

			continue
		}

		transactions[doc.ID] = transaction
	}

	r.mu.Lock()
	r.transactions = transactions
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	r.notify(snapshot)
}

func (r *Repository) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Books:        make([]Book, 0, len(r.books)),
		Members:      make([]Member, 0, len(r.members)),
		Transactions: make([]Transaction, 0, len(r.transactions)),
	}

	for _, book := range r.books {
		snapshot.Books = append(snapshot.Books, book)
	}

	for _, member := range r.members {
		snapshot.Members = append(snapshot.Members, member)
	}

	for _, transaction := range r.transactions {
		snapshot.Transactions = append(snapshot.Transactions, transaction)
	}

	sort.Slice(snapshot.Books, func(i, j int) bool { return snapshot.Books[i].ID < snapshot.Books[j].ID })
	sort.Slice(snapshot.Members, func(i, j int) bool { return snapshot.Members[i].ID < snapshot.Members[j].ID })
	sort.Slice(snapshot.Transactions, func(i, j int) bool {
		return snapshot.Transactions[i].ID < snapshot.Transactions[j].ID
	})

	return snapshot
}

func (r *Repository) notify(snapshot Snapshot) {
	r.observerMu.Lock()
	observers := make([]func(Snapshot), 0, len(r.observers))

	for _, observer := range r.observers {
		observers = append(observers, observer)
	}
	r.observerMu.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}
}

func (r *Repository) logSkipped(doc ledgerstore.Document, err error) {
	if r.logger == nil {
		return
	}

	r.logger.Warn(logMsgSkippedBrokenDocument,
		logAttrCollection, doc.Collection,
		logAttrDocumentID, doc.ID,
		logAttrError, err.Error())
}

func (r *Repository) log(msg string, args ...any) {
	if r.logger == nil {
		return
	}

	r.logger.Debug(msg, args...)
}
