// Package adapters provides thin wrappers that let the Postgres document
// engine run on top of pgxpool.Pool, database/sql, or sqlx.DB through one
// small DBAdapter interface, including transaction support for the atomic
// read-modify-write protocol.
package adapters
