package ledgerstore

import (
	"context"
)

// CancelFunc detaches a subscription when called.
type CancelFunc = func()

// AtomicTx is the handle passed to the body of Store.Atomic.
//
// Get serves the transactional read of a document that was named in the
// read set; asking for any other ref fails with ErrRefOutsideReadSet.
// Update and Insert buffer writes which commit together with the version
// check of every read-set document, or not at all.
type AtomicTx interface {
	Get(ref DocumentRef) (Document, error)
	Update(ref DocumentRef, partial Fields)
	Insert(collection string, fields Fields) DocumentID
}

// Store is the document collection abstraction the circulation core talks to.
//
// Atomic executes body with a transactional read of each document in readSet.
// All writes performed inside body commit together or not at all. Engines
// retry internally on contention with exponential backoff up to a configured
// limit and surface ErrTransactionAborted to the caller on exhaustion.
// An error returned by body aborts immediately without retry.
type Store interface {
	List(ctx context.Context, collection string) ([]Document, error)
	Insert(ctx context.Context, collection string, fields Fields) (DocumentID, error)
	UpdateFields(ctx context.Context, collection string, id DocumentID, partial Fields) error
	Delete(ctx context.Context, collection string, id DocumentID) error
	Atomic(ctx context.Context, readSet []DocumentRef, body func(tx AtomicTx) error) error
	Subscribe(collection string, observer func(documents []Document)) CancelFunc
}
