package postgresengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

func givenQueryBuilder() *Store {
	return &Store{documentsTableName: defaultDocumentsTableName}
}

func Test_BuildListQuery(t *testing.T) {
	// arrange
	s := givenQueryBuilder()

	// act
	sqlQuery, err := s.buildListQuery("books")

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `SELECT "id", "fields", "version" FROM "documents"`)
	assert.Contains(t, sqlQuery, `"collection" = 'books'`)
	assert.Contains(t, sqlQuery, `ORDER BY "id" ASC`)
}

func Test_BuildListQuery_CustomTableName(t *testing.T) {
	// arrange
	s := &Store{documentsTableName: "circulation_documents"}

	// act
	sqlQuery, err := s.buildListQuery("books")

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `FROM "circulation_documents"`)
}

func Test_BuildReadQuery(t *testing.T) {
	// arrange
	s := givenQueryBuilder()
	ref := ledgerstore.DocumentRef{Collection: "books", ID: "book-1"}

	// act
	sqlQuery, err := s.buildReadQuery(ref)

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `SELECT "fields", "version" FROM "documents"`)
	assert.Contains(t, sqlQuery, `"collection" = 'books'`)
	assert.Contains(t, sqlQuery, `"id" = 'book-1'`)
}

func Test_BuildInsertQuery(t *testing.T) {
	// arrange
	s := givenQueryBuilder()

	// act
	sqlQuery, err := s.buildInsertQuery("books", "book-1", ledgerstore.Fields{"title": "T"})

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `INSERT INTO "documents"`)
	assert.Contains(t, sqlQuery, `::jsonb`)
	assert.Contains(t, sqlQuery, `{"title":"T"}`)
	assert.Contains(t, sqlQuery, `1`)
}

func Test_BuildUpdateFieldsQuery(t *testing.T) {
	// arrange
	s := givenQueryBuilder()

	// act
	sqlQuery, err := s.buildUpdateFieldsQuery("books", "book-1", ledgerstore.Fields{"available": 2})

	// assert: partial fields merge into the jsonb document, version increments
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "documents"`)
	assert.Contains(t, sqlQuery, `fields || `)
	assert.Contains(t, sqlQuery, `{"available":2}`)
	assert.Contains(t, sqlQuery, `version + 1`)
	assert.Contains(t, sqlQuery, `"collection" = 'books'`)
	assert.Contains(t, sqlQuery, `"id" = 'book-1'`)
	assert.NotContains(t, sqlQuery, `"version" = `)
}

func Test_BuildDeleteQuery(t *testing.T) {
	// arrange
	s := givenQueryBuilder()

	// act
	sqlQuery, err := s.buildDeleteQuery("books", "book-1")

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `DELETE FROM "documents"`)
	assert.Contains(t, sqlQuery, `"collection" = 'books'`)
	assert.Contains(t, sqlQuery, `"id" = 'book-1'`)
}

func Test_BuildGuardedUpdateQuery(t *testing.T) {
	// arrange
	s := givenQueryBuilder()
	ref := ledgerstore.DocumentRef{Collection: "books", ID: "book-1"}

	// act
	sqlQuery, err := s.buildGuardedUpdateQuery(ref, ledgerstore.Fields{"available": 2}, 7)

	// assert: the merge only applies at the observed version
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "documents"`)
	assert.Contains(t, sqlQuery, `fields || `)
	assert.Contains(t, sqlQuery, `version + 1`)
	assert.Contains(t, sqlQuery, `"version" = 7`)
}

func Test_BuildVersionGuardQuery(t *testing.T) {
	// arrange
	s := givenQueryBuilder()
	ref := ledgerstore.DocumentRef{Collection: "books", ID: "book-1"}

	// act
	sqlQuery, err := s.buildVersionGuardQuery(ref, 3)

	// assert: touches the row without changing it, so a moved version
	// surfaces as zero rows affected
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `UPDATE "documents"`)
	assert.Contains(t, sqlQuery, `"version" = 3`)
	assert.NotContains(t, sqlQuery, `version + 1`)
	assert.NotContains(t, sqlQuery, `fields || `)
}
