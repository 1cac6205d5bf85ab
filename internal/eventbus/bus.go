// Package eventbus carries run progress from the onboarding loop to whoever
// watches it (progress logging, the operator chat).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"tgadder/internal/ledger"
)

type Type string

const (
	RunStarted  Type = "run.started"
	Outcome     Type = "run.outcome"
	RunFinished Type = "run.finished"
)

// Event is one progress signal. Entry is set for Outcome; Rows for
// RunStarted; Err for RunFinished when the run failed.
type Event struct {
	Type  Type
	Time  time.Time
	Group string
	Rows  int
	Entry ledger.Entry
	Err   error
}

// Bus fans events out to subscribers.
//
// Publish never blocks: subscribers get buffered channels and a full one
// misses the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Nop drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe (write lock) cannot
	// close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// full. Only meaningful for buses built by New.
func Dropped(b Bus) uint64 {
	if m, ok := b.(*memBus); ok {
		return m.dropped.Load()
	}
	return 0
}
