package storage

import (
	"errors"
	"time"

	"tgadder/internal/ledger"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "csv" (default): CSV file with a header row
//   - "jsonl": JSON Lines file
//   - "sqlite": SQLite database file
//   - "memory": in-process only, nothing survives the process
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is a ledger.Sink that owns a file handle or a database.
type Store interface {
	ledger.Sink
	Close() error
}

// Columns is the ledger row layout shared by the csv and sqlite drivers.
var Columns = []string{"timestamp", "phone", "user_id", "username", "status", "dm_status", "note"}

const timeLayout = time.RFC3339
