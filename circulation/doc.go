// Package circulation implements the borrow/return core of a library
// management system on top of a ledgerstore.Store.
//
// The package is a library consumed by a UI layer. The Repository mirrors the
// current book, member, and transaction collections from the store's change
// notifications; the Engine validates operations against that snapshot and
// executes them through the store's atomic read-modify-write primitive; the
// query functions derive read-only views (open loans, overdue status, member
// history) from a transaction snapshot.
//
// The engine performs no automatic retry: a failed borrow or return attempt is
// reported synchronously to the caller as a terminal failure, and the caller
// decides whether to retry. Contention retry happens inside the store engines.
package circulation
