package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
	"github.com/openshelf/circulation-ledger-go/ledgerstore/postgresengine/internal/adapters"
)

const (
	defaultDocumentsTableName   = "documents"
	logMsgBuildQueryFailed      = "failed to build sql query"
	logMsgDBQueryFailed         = "database query execution failed"
	logMsgDBExecFailed          = "database execution failed"
	logMsgCloseRowsFailed       = "failed to close database rows"
	logMsgScanRowFailed         = "failed to scan database row"
	logMsgDecodeFieldsFailed    = "failed to decode document fields"
	logMsgBeginTxFailed         = "failed to begin database transaction"
	logMsgCommitFailed          = "failed to commit database transaction"
	logMsgListCompleted         = "list completed"
	logMsgDocumentInserted      = "document inserted"
	logMsgDocumentUpdated       = "document updated"
	logMsgDocumentDeleted       = "document deleted"
	logMsgAtomicCommitted       = "atomic operation committed"
	logMsgVersionConflict       = "concurrency conflict detected"
	logMsgSQLExecuted           = "executed sql for: "
	logMsgOperation             = "documentstore operation: "
	logAttrError                = "error"
	logAttrQuery                = "query"
	logAttrCollection           = "collection"
	logAttrDocumentID           = "document_id"
	logAttrDocumentCount        = "document_count"
	logAttrDurationMS           = "duration_ms"
	logAttrObservedVersion      = "observed_version"
	logActionList               = "list"
	logActionInsert             = "insert"
	logActionUpdate             = "update"
	logActionDelete             = "delete"
	logActionAtomicRead         = "atomic read"
	logActionAtomicWrite        = "atomic write"
	colCollection               = "collection"
	colID                       = "id"
	colFields                   = "fields"
	colVersion                  = "version"
	dialectPostgres             = "postgres"
	castJsonb                   = "?::jsonb"
	exprMergeFields             = "fields || ?::jsonb"
	exprBumpVersion             = "version + 1"
	exprKeepVersion             = "version"
)

type sqlQueryString = string

// Store is a document store keeping every collection in one Postgres table
// with schemaless JSONB fields and a per-document version for optimistic
// concurrency control. It leverages a database adapter and supports
// customizable logging and table configuration.
type Store struct {
	db                 adapters.DBAdapter
	documentsTableName string
	hub                *ledgerstore.SubscriberHub
	logger             ledgerstore.Logger
	contextualLogger   ledgerstore.ContextualLogger
	maxAttempts        int
	baseDelay          time.Duration
	jitterFactor       float64
}

// NewStoreFromPGXPool creates a new Store using a pgx pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ledgerstore.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options...)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ledgerstore.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options...)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ledgerstore.ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options...)
}

func newStore(db adapters.DBAdapter, options ...Option) (*Store, error) {
	s := &Store{
		db:                 db,
		documentsTableName: defaultDocumentsTableName,
		hub:                ledgerstore.NewSubscriberHub(),
		maxAttempts:        ledgerstore.DefaultMaxAttempts,
		baseDelay:          ledgerstore.DefaultBaseDelay,
		jitterFactor:       ledgerstore.DefaultJitterFactor,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// List retrieves the full current set of documents in the collection, ordered by document ID.
func (s *Store) List(ctx context.Context, collection string) ([]ledgerstore.Document, error) {
	sqlQuery, buildErr := s.buildListQuery(collection)
	if buildErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
		return nil, buildErr
	}

	start := time.Now()
	rows, queryErr := s.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	s.logQueryWithDuration(ctx, sqlQuery, logActionList, duration)

	if queryErr != nil {
		s.logError(ctx, logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		return nil, errors.Join(ledgerstore.ErrStoreUnavailable, queryErr)
	}
	defer s.closeRows(ctx, rows)

	documents, scanErr := s.scanDocuments(ctx, rows, collection)
	if scanErr != nil {
		return nil, scanErr
	}

	s.logOperation(ctx, logMsgListCompleted,
		logAttrCollection, collection,
		logAttrDocumentCount, len(documents),
		logAttrDurationMS, durationToMilliseconds(duration),
	)

	return documents, nil
}

// Insert stores a new document with a store-assigned identity and notifies subscribers.
func (s *Store) Insert(ctx context.Context, collection string, fields ledgerstore.Fields) (ledgerstore.DocumentID, error) {
	id := uuid.NewString()

	sqlQuery, buildErr := s.buildInsertQuery(collection, id, fields)
	if buildErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
		return "", buildErr
	}

	if _, execErr := s.exec(ctx, s.db.Exec, sqlQuery, logActionInsert); execErr != nil {
		return "", execErr
	}

	s.logOperation(ctx, logMsgDocumentInserted, logAttrCollection, collection, logAttrDocumentID, id)
	s.notifyCollection(ctx, collection)

	return id, nil
}

// UpdateFields merges the partial field set into an existing document and notifies
// subscribers. It fails with ledgerstore.ErrNotFound if the document is absent.
func (s *Store) UpdateFields(
	ctx context.Context,
	collection string,
	id ledgerstore.DocumentID,
	partial ledgerstore.Fields,
) error {

	sqlQuery, buildErr := s.buildUpdateFieldsQuery(collection, id, partial)
	if buildErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
		return buildErr
	}

	rowsAffected, execErr := s.exec(ctx, s.db.Exec, sqlQuery, logActionUpdate)
	if execErr != nil {
		return execErr
	}

	if rowsAffected == 0 {
		return ledgerstore.ErrNotFound
	}

	s.logOperation(ctx, logMsgDocumentUpdated, logAttrCollection, collection, logAttrDocumentID, id)
	s.notifyCollection(ctx, collection)

	return nil
}

// Delete removes a document if present and notifies subscribers.
// Deleting an absent document is a no-op, matching document-store semantics.
func (s *Store) Delete(ctx context.Context, collection string, id ledgerstore.DocumentID) error {
	sqlQuery, buildErr := s.buildDeleteQuery(collection, id)
	if buildErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
		return buildErr
	}

	rowsAffected, execErr := s.exec(ctx, s.db.Exec, sqlQuery, logActionDelete)
	if execErr != nil {
		return execErr
	}

	if rowsAffected > 0 {
		s.logOperation(ctx, logMsgDocumentDeleted, logAttrCollection, collection, logAttrDocumentID, id)
		s.notifyCollection(ctx, collection)
	}

	return nil
}

// Atomic executes body with a transactional read of each read-set document.
// Every write commits guarded by the version observed at read time; untouched
// read-set documents are version-checked as well, so the whole read set is
// stable at commit. On contention the attempt is retried with exponential
// backoff, surfacing ledgerstore.ErrTransactionAborted on exhaustion.
func (s *Store) Atomic(
	ctx context.Context,
	readSet []ledgerstore.DocumentRef,
	body func(tx ledgerstore.AtomicTx) error,
) error {

	return ledgerstore.RetryOnVersionConflict(ctx, s.maxAttempts, s.baseDelay, s.jitterFactor,
		func(attemptCtx context.Context) error {
			return s.attemptAtomic(attemptCtx, readSet, body)
		})
}

// Subscribe registers an observer for a collection. Notifications are delivered
// in-process after commits through this store instance; pushing changes made by
// other clients is out of scope for this engine.
func (s *Store) Subscribe(collection string, observer func(documents []ledgerstore.Document)) ledgerstore.CancelFunc {
	return s.hub.Subscribe(collection, observer)
}

func (s *Store) attemptAtomic(
	ctx context.Context,
	readSet []ledgerstore.DocumentRef,
	body func(tx ledgerstore.AtomicTx) error,
) error {

	tx, beginErr := s.db.Begin(ctx)
	if beginErr != nil {
		s.logError(ctx, logMsgBeginTxFailed, logAttrError, beginErr.Error())
		return errors.Join(ledgerstore.ErrStoreUnavailable, beginErr)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	atx := newAtomicTx()

	for _, ref := range readSet {
		document, found, readErr := s.readDocumentInTx(ctx, tx, ref)
		if readErr != nil {
			return readErr
		}

		entry := readEntry{absent: !found}
		if found {
			entry.document = document
			entry.observedVersion = document.Version
		}

		atx.reads[ref] = entry
	}

	if bodyErr := body(atx); bodyErr != nil {
		return bodyErr
	}

	updatedRefs := make(map[ledgerstore.DocumentRef]bool, len(atx.updates))

	for _, update := range atx.updates {
		entry, inReadSet := atx.reads[update.ref]
		if !inReadSet || entry.absent {
			return ledgerstore.ErrRefOutsideReadSet
		}

		sqlQuery, buildErr := s.buildGuardedUpdateQuery(update.ref, update.partial, entry.observedVersion)
		if buildErr != nil {
			s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
			return buildErr
		}

		rowsAffected, execErr := s.exec(ctx, tx.Exec, sqlQuery, logActionAtomicWrite)
		if execErr != nil {
			return execErr
		}

		if rowsAffected == 0 {
			s.logConflict(ctx, update.ref, entry.observedVersion)
			return ledgerstore.ErrVersionConflict
		}

		updatedRefs[update.ref] = true
	}

	for ref, entry := range atx.reads {
		if updatedRefs[ref] || entry.absent {
			continue
		}

		sqlQuery, buildErr := s.buildVersionGuardQuery(ref, entry.observedVersion)
		if buildErr != nil {
			s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
			return buildErr
		}

		rowsAffected, execErr := s.exec(ctx, tx.Exec, sqlQuery, logActionAtomicWrite)
		if execErr != nil {
			return execErr
		}

		if rowsAffected == 0 {
			s.logConflict(ctx, ref, entry.observedVersion)
			return ledgerstore.ErrVersionConflict
		}
	}

	for _, insert := range atx.inserts {
		sqlQuery, buildErr := s.buildInsertQuery(insert.collection, insert.id, insert.fields)
		if buildErr != nil {
			s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
			return buildErr
		}

		if _, execErr := s.exec(ctx, tx.Exec, sqlQuery, logActionAtomicWrite); execErr != nil {
			return execErr
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		s.logError(ctx, logMsgCommitFailed, logAttrError, commitErr.Error())
		return errors.Join(ledgerstore.ErrStoreUnavailable, commitErr)
	}
	committed = true

	s.logOperation(ctx, logMsgAtomicCommitted,
		logAttrDocumentCount, len(atx.updates)+len(atx.inserts),
	)

	affected := make(map[string]struct{})
	for _, update := range atx.updates {
		affected[update.ref.Collection] = struct{}{}
	}
	for _, insert := range atx.inserts {
		affected[insert.collection] = struct{}{}
	}
	for collection := range affected {
		s.notifyCollection(ctx, collection)
	}

	return nil
}

// readDocumentInTx performs the transactional read of one read-set document.
func (s *Store) readDocumentInTx(
	ctx context.Context,
	tx adapters.DBTx,
	ref ledgerstore.DocumentRef,
) (ledgerstore.Document, bool, error) {

	var empty ledgerstore.Document

	sqlQuery, buildErr := s.buildReadQuery(ref)
	if buildErr != nil {
		s.logError(ctx, logMsgBuildQueryFailed, logAttrError, buildErr.Error())
		return empty, false, buildErr
	}

	start := time.Now()
	rows, queryErr := tx.Query(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, logActionAtomicRead, time.Since(start))

	if queryErr != nil {
		s.logError(ctx, logMsgDBQueryFailed, logAttrError, queryErr.Error(), logAttrQuery, sqlQuery)
		return empty, false, errors.Join(ledgerstore.ErrStoreUnavailable, queryErr)
	}
	defer s.closeRows(ctx, rows)

	if !rows.Next() {
		return empty, false, nil
	}

	var rawFields []byte
	var version int64

	if scanErr := rows.Scan(&rawFields, &version); scanErr != nil {
		s.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
		return empty, false, errors.Join(ledgerstore.ErrStoreUnavailable, scanErr)
	}

	fields := make(ledgerstore.Fields)
	if decodeErr := jsoniter.ConfigFastest.Unmarshal(rawFields, &fields); decodeErr != nil {
		s.logError(ctx, logMsgDecodeFieldsFailed, logAttrError, decodeErr.Error(), logAttrDocumentID, ref.ID)
		return empty, false, decodeErr
	}

	return ledgerstore.Document{
		Collection: ref.Collection,
		ID:         ref.ID,
		Fields:     fields,
		Version:    uint64(version),
	}, true, nil
}

type execFunc = func(ctx context.Context, query string) (adapters.DBResult, error)

// exec runs one SQL statement, logs it with timing, and returns the rows affected.
func (s *Store) exec(ctx context.Context, run execFunc, sqlQuery string, action string) (int64, error) {
	start := time.Now()
	result, execErr := run(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgDBExecFailed, logAttrError, execErr.Error(), logAttrQuery, sqlQuery)
		return 0, errors.Join(ledgerstore.ErrStoreUnavailable, execErr)
	}

	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		s.logError(ctx, logMsgDBExecFailed, logAttrError, rowsErr.Error())
		return 0, errors.Join(ledgerstore.ErrStoreUnavailable, rowsErr)
	}

	return rowsAffected, nil
}

func (s *Store) scanDocuments(
	ctx context.Context,
	rows adapters.DBRows,
	collection string,
) ([]ledgerstore.Document, error) {

	documents := make([]ledgerstore.Document, 0)

	for rows.Next() {
		var id string
		var rawFields []byte
		var version int64

		if scanErr := rows.Scan(&id, &rawFields, &version); scanErr != nil {
			s.logError(ctx, logMsgScanRowFailed, logAttrError, scanErr.Error())
			return nil, errors.Join(ledgerstore.ErrStoreUnavailable, scanErr)
		}

		fields := make(ledgerstore.Fields)
		if decodeErr := jsoniter.ConfigFastest.Unmarshal(rawFields, &fields); decodeErr != nil {
			s.logError(ctx, logMsgDecodeFieldsFailed, logAttrError, decodeErr.Error(), logAttrDocumentID, id)
			return nil, decodeErr
		}

		documents = append(documents, ledgerstore.Document{
			Collection: collection,
			ID:         id,
			Fields:     fields,
			Version:    uint64(version),
		})
	}

	return documents, nil
}

// notifyCollection delivers the full current set to subscribers of the collection.
func (s *Store) notifyCollection(ctx context.Context, collection string) {
	if !s.hub.HasObservers(collection) {
		return
	}

	documents, listErr := s.List(ctx, collection)
	if listErr != nil {
		s.logWarn(ctx, logMsgDBQueryFailed, logAttrError, listErr.Error(), logAttrCollection, collection)
		return
	}

	s.hub.Notify(collection, documents)
}

func (s *Store) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		s.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (s *Store) logConflict(ctx context.Context, ref ledgerstore.DocumentRef, observedVersion uint64) {
	s.logOperation(ctx, logMsgVersionConflict,
		logAttrCollection, ref.Collection,
		logAttrDocumentID, ref.ID,
		logAttrObservedVersion, observedVersion,
	)
}

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action,
			logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action,
			logAttrDurationMS, durationToMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (s *Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}
}

func (s *Store) logWarn(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) logError(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
