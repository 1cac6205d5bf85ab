package storage

import (
	"strings"

	"github.com/rotisserie/eris"

	"tgadder/internal/ledger"
	logx "tgadder/pkg/logx"
)

const DefaultPath = "add_members_log.csv"

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}

	var (
		st  Store
		err error
	)
	switch driver {
	case "", "csv":
		st, err = openCSV(cfg, log)
	case "jsonl", "file":
		st, err = openJSONL(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	case "memory":
		st = memoryStore{&ledger.Memory{}}
	default:
		return nil, eris.Errorf("unknown storage driver: %s", driver)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store %s", driver, cfg.Path)
	}
	log.Debug("ledger store opened", logx.String("driver", driver), logx.String("path", cfg.Path))
	return st, nil
}

type memoryStore struct{ *ledger.Memory }

func (memoryStore) Close() error { return nil }
