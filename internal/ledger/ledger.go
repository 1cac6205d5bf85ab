// Package ledger records exactly one terminal outcome per identity and keeps
// the run totals.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Status is a terminal outcome code. The set is closed.
type Status string

const (
	StatusAdded            Status = "added"
	StatusAlreadyMember    Status = "already_member"
	StatusNotOnTelegram    Status = "not_on_telegram_or_privacy_hidden"
	StatusDMSent           Status = "dm_sent"
	StatusDMForbidden      Status = "dm_forbidden"
	StatusDMPrivacyBlocked Status = "dm_privacy_blocked"
	StatusPeerFlood        Status = "peer_flood_stop_and_wait"
	StatusInvalidPhone     Status = "invalid_phone"
	StatusDuplicate        Status = "duplicate_skipped"
)

// Add-failure reasons carried in Entry.Note when the DM fallback ran.
const (
	NoteBlockedByPrivacy = "blocked_by_privacy"
	NoteNoAddPermission  = "not_admin_or_no_add_permission"
)

var statuses = map[Status]bool{
	StatusAdded: true, StatusAlreadyMember: true, StatusNotOnTelegram: true,
	StatusDMSent: true, StatusDMForbidden: true, StatusDMPrivacyBlocked: true,
	StatusPeerFlood: true, StatusInvalidPhone: true, StatusDuplicate: true,
}

func (s Status) Valid() bool { return statuses[s] }

// Entry is one ledger row. Write-once.
type Entry struct {
	At       time.Time
	Phone    string
	UserID   int64
	Username string
	Status   Status
	DMStatus Status // set only when a DM was attempted
	Note     string
}

// Sink durably appends entries. Append must not return before the entry is
// persisted.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

type Summary struct {
	Added    int
	Total    int
	ByStatus map[Status]int
}

var ErrInvalidStatus = eris.New("ledger: invalid status")

type Ledger struct {
	sink Sink
	now  func() time.Time

	mu       sync.Mutex
	added    int
	total    int
	byStatus map[Status]int
}

func New(sink Sink) *Ledger {
	return &Ledger{sink: sink, now: time.Now, byStatus: map[Status]int{}}
}

// WithNow overrides the timestamp source.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Record appends e through the sink and only then counts it. The sink write is
// detached from ctx cancellation so a stop request never cuts a row in half.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if !e.Status.Valid() {
		return eris.Wrapf(ErrInvalidStatus, "%q", e.Status)
	}
	if e.At.IsZero() {
		e.At = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.sink.Append(context.WithoutCancel(ctx), e); err != nil {
		return eris.Wrapf(err, "ledger: append %s", e.Phone)
	}
	l.total++
	l.byStatus[e.Status]++
	if e.Status == StatusAdded {
		l.added++
	}
	return nil
}

func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	by := make(map[Status]int, len(l.byStatus))
	for k, v := range l.byStatus {
		by[k] = v
	}
	return Summary{Added: l.added, Total: l.total, ByStatus: by}
}

// Memory is an in-process Sink, used by tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
