package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgadder/internal/ledger"
	logx "tgadder/pkg/logx"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func entries() []ledger.Entry {
	return []ledger.Entry{
		{At: at, Phone: "+12015550123", UserID: 42, Username: "ana", Status: ledger.StatusAdded},
		{At: at, Phone: "+16502530000", UserID: 7, Status: ledger.StatusDMSent, DMStatus: ledger.StatusDMSent, Note: "blocked_by_privacy, \"quoted\""},
		{At: at, Phone: "garbage", Status: ledger.StatusInvalidPhone, Note: "unparseable phone"},
	}
}

func appendAll(t *testing.T, st Store) {
	t.Helper()
	for _, e := range entries() {
		require.NoError(t, st.Append(context.Background(), e))
	}
}

func TestCSVStoreWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log", "add_members_log.csv")

	st, err := Open(Config{Driver: "csv", Path: path}, logx.Nop())
	require.NoError(t, err)
	appendAll(t, st)
	require.NoError(t, st.Close())

	// Reopening appends without a second header.
	st, err = Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Append(context.Background(), entries()[0]))
	require.NoError(t, st.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"2026-03-01T12:00:00Z", "+12015550123", "42", "ana", "added", "", ""}, rows[1])
	assert.Equal(t, "blocked_by_privacy, \"quoted\"", rows[2][6])
	assert.Equal(t, "", rows[3][2])
}

func TestJSONLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outcomes.jsonl")
	st, err := Open(Config{Driver: "jsonl", Path: path}, logx.Nop())
	require.NoError(t, err)
	appendAll(t, st)
	require.NoError(t, st.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 3)

	var rec jsonlRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "dm_sent", rec.Status)
	assert.Equal(t, "dm_sent", rec.DMStatus)
	assert.Equal(t, int64(7), rec.UserID)
}

func TestClosedStoreRejectsAppend(t *testing.T) {
	st, err := Open(Config{Driver: "csv", Path: filepath.Join(t.TempDir(), "x.csv")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.ErrorIs(t, st.Append(context.Background(), entries()[0]), ErrClosed)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	appendAll(t, st)
	require.NoError(t, st.Append(context.Background(), entries()[0]))

	counts, err := CountByStatus(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, map[ledger.Status]int{
		ledger.StatusAdded:        2,
		ledger.StatusDMSent:       1,
		ledger.StatusInvalidPhone: 1,
	}, counts)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo"}, logx.Nop())
	require.Error(t, err)
}

func TestLedgerThroughStore(t *testing.T) {
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	l := ledger.New(st)
	require.NoError(t, l.Record(context.Background(), ledger.Entry{Phone: "+12015550123", Status: ledger.StatusAdded}))
	assert.Equal(t, 1, l.Summary().Total)
}

func TestFileWriteFailureIsLogged(t *testing.T) {
	var buf strings.Builder
	path := filepath.Join(t.TempDir(), "log.csv")
	st, err := Open(Config{Driver: "csv", Path: path}, logx.NewWriter(&buf, "debug"))
	require.NoError(t, err)

	cs, ok := st.(*csvStore)
	require.True(t, ok)
	require.NoError(t, cs.f.Close())

	require.Error(t, st.Append(context.Background(), entries()[0]))
	assert.Contains(t, buf.String(), "ledger write failed")
	assert.Contains(t, buf.String(), path)
}
