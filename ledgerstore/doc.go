// Package ledgerstore defines the document-store contract the circulation
// core is written against.
//
// A store keeps one collection of independently addressable documents per
// entity type and supports an atomic read-modify-write spanning a small,
// fixed set of documents. Two engines implement the contract:
//
//   - memoryengine: an in-process store for tests and demos
//   - postgresengine: a JSONB document table on PostgreSQL
//
// Observers subscribe per collection and receive the full current set of
// documents after every committed change. No ordering is guaranteed between
// a commit and when observers see it, beyond "eventually, after the change
// notification fires".
package ledgerstore
