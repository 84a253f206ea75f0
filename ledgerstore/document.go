package ledgerstore

// DocumentID is a type alias for string, representing store-assigned document identity.
type DocumentID = string

// Fields is a type alias for the schemaless field set of a document.
type Fields = map[string]any

// Document is a DTO (data transfer object) used by the store engines to return
// documents and accept writes.
//
// It is built on scalars and a plain field map to be completely agnostic of the
// domain types in the client code. Version is the engine-internal revision used
// for optimistic concurrency control; clients never set it.
type Document struct {
	Collection string
	ID         DocumentID
	Fields     Fields
	Version    uint64
}

// DocumentRef addresses a single document inside a store.
type DocumentRef struct {
	Collection string
	ID         DocumentID
}

// Ref builds a DocumentRef for this document.
func (d Document) Ref() DocumentRef {
	return DocumentRef{Collection: d.Collection, ID: d.ID}
}
