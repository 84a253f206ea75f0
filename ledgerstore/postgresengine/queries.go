package postgresengine

import (
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	jsoniter "github.com/json-iterator/go"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

func (s *Store) buildListQuery(collection string) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.documentsTableName).
		Select(colID, colFields, colVersion).
		Where(goqu.Ex{colCollection: collection}).
		Order(goqu.I(colID).Asc())

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *Store) buildReadQuery(ref ledgerstore.DocumentRef) (sqlQueryString, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.documentsTableName).
		Select(colFields, colVersion).
		Where(goqu.Ex{colCollection: ref.Collection, colID: ref.ID})

	sqlQuery, _, toSQLErr := selectStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *Store) buildInsertQuery(
	collection string,
	id ledgerstore.DocumentID,
	fields ledgerstore.Fields,
) (sqlQueryString, error) {

	fieldsJSON, marshalErr := jsoniter.ConfigFastest.Marshal(fields)
	if marshalErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, marshalErr)
	}

	insertStmt := goqu.Dialect(dialectPostgres).
		Insert(s.documentsTableName).
		Rows(goqu.Record{
			colCollection: collection,
			colID:         id,
			colFields:     goqu.L(castJsonb, string(fieldsJSON)),
			colVersion:    1,
		})

	sqlQuery, _, toSQLErr := insertStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *Store) buildUpdateFieldsQuery(
	collection string,
	id ledgerstore.DocumentID,
	partial ledgerstore.Fields,
) (sqlQueryString, error) {

	partialJSON, marshalErr := jsoniter.ConfigFastest.Marshal(partial)
	if marshalErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, marshalErr)
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.documentsTableName).
		Set(goqu.Record{
			colFields:  goqu.L(exprMergeFields, string(partialJSON)),
			colVersion: goqu.L(exprBumpVersion),
		}).
		Where(goqu.Ex{colCollection: collection, colID: id})

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

func (s *Store) buildDeleteQuery(
	collection string,
	id ledgerstore.DocumentID,
) (sqlQueryString, error) {

	deleteStmt := goqu.Dialect(dialectPostgres).
		Delete(s.documentsTableName).
		Where(goqu.Ex{colCollection: collection, colID: id})

	sqlQuery, _, toSQLErr := deleteStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildGuardedUpdateQuery builds the compare-and-set write of the atomic protocol:
// the merge only applies while the document is still at the observed version.
func (s *Store) buildGuardedUpdateQuery(
	ref ledgerstore.DocumentRef,
	partial ledgerstore.Fields,
	observedVersion uint64,
) (sqlQueryString, error) {

	partialJSON, marshalErr := jsoniter.ConfigFastest.Marshal(partial)
	if marshalErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, marshalErr)
	}

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.documentsTableName).
		Set(goqu.Record{
			colFields:  goqu.L(exprMergeFields, string(partialJSON)),
			colVersion: goqu.L(exprBumpVersion),
		}).
		Where(goqu.Ex{
			colCollection: ref.Collection,
			colID:         ref.ID,
			colVersion:    observedVersion,
		})

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}

// buildVersionGuardQuery builds a no-op update that takes the row lock and
// fails (zero rows affected) when an untouched read-set document has moved
// since the transactional read.
func (s *Store) buildVersionGuardQuery(
	ref ledgerstore.DocumentRef,
	observedVersion uint64,
) (sqlQueryString, error) {

	updateStmt := goqu.Dialect(dialectPostgres).
		Update(s.documentsTableName).
		Set(goqu.Record{
			colVersion: goqu.L(exprKeepVersion),
		}).
		Where(goqu.Ex{
			colCollection: ref.Collection,
			colID:         ref.ID,
			colVersion:    observedVersion,
		})

	sqlQuery, _, toSQLErr := updateStmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(ledgerstore.ErrBuildingQueryFailed, toSQLErr)
	}

	return sqlQuery, nil
}
