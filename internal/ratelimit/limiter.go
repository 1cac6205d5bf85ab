// Package ratelimit paces every platform call of a run.
//
// A single *Limiter is shared by everything that talks to the platform. It
// owns all pause decisions: per-operation intervals, batch pauses and the global
// freeze that follows a flood-wait signal. All pauses observe ctx, and they are
// the only places where a run can be cancelled.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"tgadder/internal/platform"
	logx "tgadder/pkg/logx"
)

// Op identifies the kind of platform call being paced.
type Op int

const (
	OpImport Op = iota
	OpMembership
	OpAdd
	OpDM
)

func (o Op) String() string {
	switch o {
	case OpImport:
		return "import_contact"
	case OpMembership:
		return "check_membership"
	case OpAdd:
		return "add_participant"
	case OpDM:
		return "send_dm"
	default:
		return "unknown"
	}
}

// Config holds pacing knobs. Zero values disable the corresponding pause.
type Config struct {
	AddInterval time.Duration
	DMInterval  time.Duration

	// BatchSize counts identities handed to the onboarding state machine
	// (rows rejected as invalid or duplicate do not count).
	BatchSize  int
	BatchPause time.Duration

	// FloodFallback is the freeze applied when the platform signals flood
	// control without a duration (PEER_FLOOD).
	FloodFallback time.Duration
}

// Stats is a snapshot of pauses taken so far.
type Stats struct {
	Processed    int
	BatchPauses  int
	FloodFreezes int
	Escalations  int
	Frozen       time.Duration
}

type Limiter struct {
	cfg   Config
	clock Clock
	log   logx.Logger

	mu          sync.Mutex
	frozenUntil time.Time
	batchDue    bool
	stats       Stats
}

type Option func(*Limiter)

func WithClock(c Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:   cfg,
		clock: realClock{},
		log:   logx.Nop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// interval is the fixed pause taken before every call of kind op.
func (l *Limiter) interval(op Op) time.Duration {
	switch op {
	case OpAdd:
		return l.cfg.AddInterval
	case OpDM:
		return l.cfg.DMInterval
	default:
		return 0
	}
}

// Wait blocks until a call of kind op may be issued: first for a batch pause
// that has come due, then until any active flood freeze has expired, then for
// the op's full interval. The interval is
// slept before every add and every DM, the first of a run included.
func (l *Limiter) Wait(ctx context.Context, op Op) error {
	if err := l.waitBatch(ctx); err != nil {
		return err
	}
	if err := l.waitUnfrozen(ctx); err != nil {
		return err
	}
	d := l.interval(op)
	if d <= 0 {
		return ctx.Err()
	}
	return l.clock.Sleep(ctx, d)
}

func (l *Limiter) waitUnfrozen(ctx context.Context) error {
	for {
		l.mu.Lock()
		until := l.frozenUntil
		l.mu.Unlock()

		now := l.clock.Now()
		if !until.After(now) {
			return ctx.Err()
		}
		// Loop: another caller may extend the freeze while we sleep.
		if err := l.clock.Sleep(ctx, until.Sub(now)); err != nil {
			return err
		}
	}
}

// Freeze suspends every caller of Wait for d. Overlapping freezes extend to
// the latest deadline, never shorten it.
func (l *Limiter) Freeze(d time.Duration) {
	if d <= 0 {
		d = l.cfg.FloodFallback
	}
	if d <= 0 {
		return
	}
	until := l.clock.Now().Add(d)

	l.mu.Lock()
	if until.After(l.frozenUntil) {
		l.frozenUntil = until
	}
	l.stats.FloodFreezes++
	l.stats.Frozen += d
	l.mu.Unlock()
}

// Do paces and issues call. On a flood-wait result it freezes all callers for
// the mandated duration and retries the same call exactly once. If the retry
// floods too, that flood result is returned: the caller treats it as
// escalated. The error is non-nil only when ctx ends during a pause.
func (l *Limiter) Do(ctx context.Context, op Op, call func(context.Context) platform.Result) (platform.Result, error) {
	if err := l.Wait(ctx, op); err != nil {
		return platform.Result{}, err
	}
	res := call(ctx)
	if !res.Flood() {
		return res, nil
	}

	l.log.Warn("flood control; pausing all operations",
		logx.String("op", op.String()),
		logx.Duration("wait", l.freezeFor(res)),
	)
	l.Freeze(res.Wait)
	if err := l.Wait(ctx, op); err != nil {
		return platform.Result{}, err
	}

	res = call(ctx)
	if res.Flood() {
		l.Freeze(res.Wait)
		l.mu.Lock()
		l.stats.Escalations++
		l.mu.Unlock()
		l.log.Warn("flood control repeated after retry; giving up on this identity",
			logx.String("op", op.String()),
			logx.Duration("wait", l.freezeFor(res)),
		)
	}
	return res, nil
}

func (l *Limiter) freezeFor(res platform.Result) time.Duration {
	if res.Wait > 0 {
		return res.Wait
	}
	return l.cfg.FloodFallback
}

// Processed records one identity handed to the state machine. When the count
// reaches a multiple of BatchSize the batch pause becomes due; it is taken by
// the next Wait, so a run that ends on a batch boundary does not pause.
func (l *Limiter) Processed(ctx context.Context) error {
	l.mu.Lock()
	l.stats.Processed++
	if l.cfg.BatchSize > 0 && l.cfg.BatchPause > 0 && l.stats.Processed%l.cfg.BatchSize == 0 {
		l.batchDue = true
	}
	l.mu.Unlock()
	return ctx.Err()
}

func (l *Limiter) waitBatch(ctx context.Context) error {
	l.mu.Lock()
	due := l.batchDue
	l.batchDue = false
	n := l.stats.Processed
	if due {
		l.stats.BatchPauses++
	}
	l.mu.Unlock()

	if !due {
		return nil
	}
	l.log.Info("batch pause", logx.Int("processed", n), logx.Duration("pause", l.cfg.BatchPause))
	return l.clock.Sleep(ctx, l.cfg.BatchPause)
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
