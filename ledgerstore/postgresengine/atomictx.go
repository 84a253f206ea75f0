package postgresengine

import (
	"github.com/google/uuid"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

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

// atomicTx buffers the writes of one atomic attempt and serves transactional
// reads from the documents read at the start of the database transaction.
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

// Get serves a read-set document from the transactional read.
func (tx *atomicTx) Get(ref ledgerstore.DocumentRef) (ledgerstore.Document, error) {
	entry, inReadSet := tx.reads[ref]
	if !inReadSet {
		return ledgerstore.Document{}, ledgerstore.ErrRefOutsideReadSet
	}

	if entry.absent {
		return ledgerstore.Document{}, ledgerstore.ErrNotFound
	}

	return entry.document, nil
}

// Update buffers a partial field write for commit.
func (tx *atomicTx) Update(ref ledgerstore.DocumentRef, partial ledgerstore.Fields) {
	tx.updates = append(tx.updates, bufferedUpdate{ref: ref, partial: partial})
}

// Insert buffers a new document for commit and returns its store-assigned identity.
func (tx *atomicTx) Insert(collection string, fields ledgerstore.Fields) ledgerstore.DocumentID {
	id := uuid.NewString()
	tx.inserts = append(tx.inserts, bufferedInsert{collection: collection, id: id, fields: fields})

	return id
}
