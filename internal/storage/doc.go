// Package storage provides the durable ledger sinks.
//
// It currently supports:
//   - csv: the operator-facing add_members_log.csv format
//   - jsonl: one JSON object per line
//   - sqlite: an outcomes table in a SQLite database file
//
// Every store is append-only and returns from Append only after the row is
// on disk (fsync or commit).
package storage
