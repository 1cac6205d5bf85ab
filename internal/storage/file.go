package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"tgadder/internal/ledger"
	logx "tgadder/pkg/logx"
)

// appendFile is an append-only file shared by the csv and jsonl drivers.
type appendFile struct {
	log  logx.Logger
	path string

	mu sync.Mutex
	f  *os.File
}

func openAppend(path string, log logx.Logger) (*appendFile, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, err
	}
	return &appendFile{log: log, path: path, f: f}, fi.Size() == 0, nil
}

// write runs fn against the open file and fsyncs.
func (a *appendFile) write(fn func(f *os.File) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return ErrClosed
	}
	if err := fn(a.f); err != nil {
		a.log.Warn("ledger write failed", logx.String("path", a.path), logx.Err(err))
		return err
	}
	if err := a.f.Sync(); err != nil {
		a.log.Warn("ledger fsync failed", logx.String("path", a.path), logx.Err(err))
		return err
	}
	return nil
}

func (a *appendFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// ---- csv ----

type csvStore struct{ *appendFile }

func openCSV(cfg Config, log logx.Logger) (Store, error) {
	af, fresh, err := openAppend(cfg.Path, log)
	if err != nil {
		return nil, err
	}
	s := &csvStore{af}
	if fresh {
		if err := s.write(func(f *os.File) error { return writeCSV(f, Columns) }); err != nil {
			_ = af.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *csvStore) Append(_ context.Context, e ledger.Entry) error {
	return s.write(func(f *os.File) error { return writeCSV(f, csvRow(e)) })
}

func writeCSV(f *os.File, rec []string) error {
	w := csv.NewWriter(f)
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func csvRow(e ledger.Entry) []string {
	uid := ""
	if e.UserID != 0 {
		uid = strconv.FormatInt(e.UserID, 10)
	}
	return []string{
		e.At.UTC().Format(timeLayout),
		e.Phone,
		uid,
		e.Username,
		string(e.Status),
		string(e.DMStatus),
		e.Note,
	}
}

// ---- jsonl ----

type jsonlStore struct{ *appendFile }

type jsonlRecord struct {
	Timestamp string `json:"timestamp"`
	Phone     string `json:"phone"`
	UserID    int64  `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Status    string `json:"status"`
	DMStatus  string `json:"dm_status,omitempty"`
	Note      string `json:"note,omitempty"`
}

func openJSONL(cfg Config, log logx.Logger) (Store, error) {
	af, _, err := openAppend(cfg.Path, log)
	if err != nil {
		return nil, err
	}
	return &jsonlStore{af}, nil
}

func (s *jsonlStore) Append(_ context.Context, e ledger.Entry) error {
	rec := jsonlRecord{
		Timestamp: e.At.UTC().Format(timeLayout),
		Phone:     e.Phone,
		UserID:    e.UserID,
		Username:  e.Username,
		Status:    string(e.Status),
		DMStatus:  string(e.DMStatus),
		Note:      e.Note,
	}
	return s.write(func(f *os.File) error { return json.NewEncoder(f).Encode(rec) })
}
