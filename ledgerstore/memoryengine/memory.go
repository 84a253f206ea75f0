// Package memoryengine implements the ledgerstore contract with an in-process,
// mutex-guarded document store. It is the engine used by tests and demos; the
// concurrency behavior (per-document versions, retried optimistic commits)
// mirrors the Postgres engine so core logic can be exercised without a database.
package memoryengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

const (
	logMsgDocumentInserted   = "document inserted"
	logMsgDocumentUpdated    = "document updated"
	logMsgDocumentDeleted    = "document deleted"
	logMsgAtomicCommitted    = "atomic operation committed"
	logMsgVersionConflict    = "concurrency conflict detected"
	logAttrCollection        = "collection"
	logAttrDocumentID        = "document_id"
	logAttrReadSetSize       = "read_set_size"
	logAttrAffectedDocuments = "affected_documents"
)

// Store is an in-memory document store with per-document version counters.
// All mutation methods notify collection subscribers after the change is applied.
type Store struct {
	mu           sync.RWMutex
	collections  map[string]map[ledgerstore.DocumentID]ledgerstore.Document
	hub          *ledgerstore.SubscriberHub
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	logger       ledgerstore.Logger
}

// NewStore creates an empty in-memory store with optional configuration.
func NewStore(options ...Option) (*Store, error) {
	s := &Store{
		collections:  make(map[string]map[ledgerstore.DocumentID]ledgerstore.Document),
		hub:          ledgerstore.NewSubscriberHub(),
		maxAttempts:  ledgerstore.DefaultMaxAttempts,
		baseDelay:    ledgerstore.DefaultBaseDelay,
		jitterFactor: ledgerstore.DefaultJitterFactor,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// List returns the full current set of documents in the collection, ordered by document ID.
func (s *Store) List(_ context.Context, collection string) ([]ledgerstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked(collection), nil
}

// Insert stores a new document with a store-assigned identity and notifies subscribers.
func (s *Store) Insert(_ context.Context, collection string, fields ledgerstore.Fields) (ledgerstore.DocumentID, error) {
	id := uuid.NewString()

	s.mu.Lock()
	s.putLocked(ledgerstore.Document{
		Collection: collection,
		ID:         id,
		Fields:     cloneFields(fields),
		Version:    1,
	})
	documents := s.listLocked(collection)
	s.mu.Unlock()

	s.logDebug(logMsgDocumentInserted, logAttrCollection, collection, logAttrDocumentID, id)
	s.hub.Notify(collection, documents)

	return id, nil
}

// UpdateFields merges the partial field set into an existing document and notifies
// subscribers. It fails with ledgerstore.ErrNotFound if the document is absent.
func (s *Store) UpdateFields(
	_ context.Context,
	collection string,
	id ledgerstore.DocumentID,
	partial ledgerstore.Fields,
) error {

	s.mu.Lock()

	current, found := s.collections[collection][id]
	if !found {
		s.mu.Unlock()
		return ledgerstore.ErrNotFound
	}

	merged := cloneFields(current.Fields)
	for key, value := range partial {
		merged[key] = value
	}

	current.Fields = merged
	current.Version++
	s.putLocked(current)
	documents := s.listLocked(collection)
	s.mu.Unlock()

	s.logDebug(logMsgDocumentUpdated, logAttrCollection, collection, logAttrDocumentID, id)
	s.hub.Notify(collection, documents)

	return nil
}

// Delete removes a document if present and notifies subscribers.
// Deleting an absent document is a no-op, matching document-store semantics.
func (s *Store) Delete(_ context.Context, collection string, id ledgerstore.DocumentID) error {
	s.mu.Lock()

	_, found := s.collections[collection][id]
	if !found {
		s.mu.Unlock()
		return nil
	}

	delete(s.collections[collection], id)
	documents := s.listLocked(collection)
	s.mu.Unlock()

	s.logDebug(logMsgDocumentDeleted, logAttrCollection, collection, logAttrDocumentID, id)
	s.hub.Notify(collection, documents)

	return nil
}

// Atomic executes body with a transactional read of each read-set document.
// Commits are guarded by the versions observed at read time; on contention the
// attempt is retried with exponential backoff, surfacing
// ledgerstore.ErrTransactionAborted when the retry limit is exhausted.
func (s *Store) Atomic(
	ctx context.Context,
	readSet []ledgerstore.DocumentRef,
	body func(tx ledgerstore.AtomicTx) error,
) error {

	return ledgerstore.RetryOnVersionConflict(ctx, s.maxAttempts, s.baseDelay, s.jitterFactor,
		func(_ context.Context) error {
			return s.attemptAtomic(readSet, body)
		})
}

// Subscribe registers an observer for a collection; it receives the full current
// set of documents after every committed change.
func (s *Store) Subscribe(collection string, observer func(documents []ledgerstore.Document)) ledgerstore.CancelFunc {
	return s.hub.Subscribe(collection, observer)
}

func (s *Store) attemptAtomic(
	readSet []ledgerstore.DocumentRef,
	body func(tx ledgerstore.AtomicTx) error,
) error {

	tx := newAtomicTx()

	s.mu.RLock()
	for _, ref := range readSet {
		current, found := s.collections[ref.Collection][ref.ID]

		entry := readEntry{absent: !found}
		if found {
			entry.document = current
			entry.document.Fields = cloneFields(current.Fields)
			entry.observedVersion = current.Version
		}

		tx.reads[ref] = entry
	}
	s.mu.RUnlock()

	if bodyErr := body(tx); bodyErr != nil {
		return bodyErr
	}

	s.mu.Lock()

	for ref, entry := range tx.reads {
		current, found := s.collections[ref.Collection][ref.ID]

		currentVersion := uint64(0)
		if found {
			currentVersion = current.Version
		}

		if currentVersion != entry.observedVersion {
			s.mu.Unlock()
			s.logInfo(logMsgVersionConflict,
				logAttrCollection, ref.Collection,
				logAttrDocumentID, ref.ID,
			)
			return ledgerstore.ErrVersionConflict
		}
	}

	// All update targets must exist before anything is applied, so a failed
	// commit never leaves a partial write behind.
	for _, update := range tx.updates {
		if _, found := s.collections[update.ref.Collection][update.ref.ID]; !found {
			s.mu.Unlock()
			return ledgerstore.ErrNotFound
		}
	}

	affected := make(map[string]struct{})

	for _, update := range tx.updates {
		current := s.collections[update.ref.Collection][update.ref.ID]

		merged := cloneFields(current.Fields)
		for key, value := range update.partial {
			merged[key] = value
		}

		current.Fields = merged
		current.Version++
		s.putLocked(current)
		affected[update.ref.Collection] = struct{}{}
	}

	for _, insert := range tx.inserts {
		s.putLocked(ledgerstore.Document{
			Collection: insert.collection,
			ID:         insert.id,
			Fields:     cloneFields(insert.fields),
			Version:    1,
		})
		affected[insert.collection] = struct{}{}
	}

	notifications := make(map[string][]ledgerstore.Document, len(affected))
	for collection := range affected {
		notifications[collection] = s.listLocked(collection)
	}

	s.mu.Unlock()

	s.logDebug(logMsgAtomicCommitted,
		logAttrReadSetSize, len(readSet),
		logAttrAffectedDocuments, len(tx.updates)+len(tx.inserts),
	)

	for collection, documents := range notifications {
		s.hub.Notify(collection, documents)
	}

	return nil
}

// putLocked stores a document; the caller must hold the write lock.
func (s *Store) putLocked(document ledgerstore.Document) {
	if s.collections[document.Collection] == nil {
		s.collections[document.Collection] = make(map[ledgerstore.DocumentID]ledgerstore.Document)
	}

	s.collections[document.Collection][document.ID] = document
}

// listLocked copies the collection ordered by document ID; the caller must hold at least a read lock.
func (s *Store) listLocked(collection string) []ledgerstore.Document {
	documents := make([]ledgerstore.Document, 0, len(s.collections[collection]))

	for _, document := range s.collections[collection] {
		document.Fields = cloneFields(document.Fields)
		documents = append(documents, document)
	}

	sort.Slice(documents, func(i, j int) bool {
		return documents[i].ID < documents[j].ID
	})

	return documents
}

func (s *Store) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Store) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func cloneFields(fields ledgerstore.Fields) ledgerstore.Fields {
	cloned := make(ledgerstore.Fields, len(fields))
	for key, value := range fields {
		cloned[key] = value
	}

	return cloned
}

type readEntry struct {
	document        ledgerstore.Document
	observedVersion uint64
	absent          bool
}

type bufferedUpdate struct {
	ref     ledgerstore.DocumentRef
	partial ledgerstore.Fields
}

type bufferedInsert struct {
	collection string
	id         ledgerstore.DocumentID
	fields     ledgerstore.Fields
}

// atomicTx buffers the writes of one atomic attempt and serves transactional reads
// from the versions snapshotted at the start of the attempt.
type atomicTx struct {
	reads   map[ledgerstore.DocumentRef]readEntry
	updates []bufferedUpdate
	inserts []bufferedInsert
}

func newAtomicTx() *atomicTx {
	return &atomicTx{
		reads: make(map[ledgerstore.DocumentRef]readEntry),
	}
}

// Get serves a read-set document from the transactional snapshot.
func (tx *atomicTx) Get(ref ledgerstore.DocumentRef) (ledgerstore.Document, error) {
	entry, inReadSet := tx.reads[ref]
	if !inReadSet {
		return ledgerstore.Document{}, ledgerstore.ErrRefOutsideReadSet
	}

	if entry.absent {
		return ledgerstore.Document{}, ledgerstore.ErrNotFound
	}

	document := entry.document
	document.Fields = cloneFields(document.Fields)

	return document, nil
}

// Update buffers a partial field write for commit.
func (tx *atomicTx) Update(ref ledgerstore.DocumentRef, partial ledgerstore.Fields) {
	tx.updates = append(tx.updates, bufferedUpdate{ref: ref, partial: cloneFields(partial)})
}

// Insert buffers a new document for commit and returns its store-assigned identity.
func (tx *atomicTx) Insert(collection string, fields ledgerstore.Fields) ledgerstore.DocumentID {
	id := uuid.NewString()
	tx.inserts = append(tx.inserts, bufferedInsert{collection: collection, id: id, fields: cloneFields(fields)})

	return id
}
