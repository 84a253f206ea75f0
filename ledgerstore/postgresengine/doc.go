// Package postgresengine implements the ledgerstore contract on PostgreSQL.
//
// Every collection lives in one table of schemaless JSONB documents:
//
//	CREATE TABLE documents (
//	    collection TEXT   NOT NULL,
//	    id         TEXT   NOT NULL,
//	    fields     JSONB  NOT NULL,
//	    version    BIGINT NOT NULL,
//	    PRIMARY KEY (collection, id)
//	);
//
// Atomic operations run inside a database transaction with optimistic
// concurrency control: each write is guarded by the document version observed
// at the transactional read, a rows-affected shortfall means a concurrent
// writer won, and the attempt is rolled back and retried with exponential
// backoff before ledgerstore.ErrTransactionAborted is surfaced.
//
// The engine runs on pgxpool.Pool, database/sql, or sqlx.DB through the
// constructor matching the connection type in use.
package postgresengine
