package ledgerstore

import (
	"errors"
)

var ErrNotFound = errors.New("document not found")
var ErrTransactionAborted = errors.New("atomic operation aborted, contention retry limit reached")
var ErrVersionConflict = errors.New("concurrency error, document version changed since transactional read")
var ErrRefOutsideReadSet = errors.New("document ref is not part of the transactional read set")
var ErrStoreUnavailable = errors.New("ledger store unavailable")
var ErrNilDatabaseConnection = errors.New("nil database connection supplied")
var ErrEmptyDocumentsTableName = errors.New("empty documentsTableName supplied")
var ErrBuildingQueryFailed = errors.New("building sql query failed")
