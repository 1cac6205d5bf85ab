// Package schedule re-runs a job on a cron trigger. Runs never overlap: a
// trigger that fires while the previous run is still going is skipped.
package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"

	logx "tgadder/pkg/logx"
)

// Job is one scheduled run.
type Job func(ctx context.Context) error

type Config struct {
	Spec       string
	Timezone   string
	RunOnStart bool
}

// Notifier reports service state to the init system.
type Notifier interface {
	Notify(state string) error
}

// Systemd notifies through $NOTIFY_SOCKET; outside systemd it is a no-op.
type Systemd struct{}

func (Systemd) Notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

type Scheduler struct {
	cfg    Config
	spec   ParsedSpec
	loc    *time.Location
	job    Job
	log    logx.Logger
	notify Notifier

	mu      sync.Mutex
	running bool
	runs    int
	skipped int
}

// parser accepts 5- and 6-field (seconds) expressions and descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config, job Job, log logx.Logger) (*Scheduler, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	spec, err := ParseSpec(cfg.Spec)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(spec.Cron); err != nil {
		return nil, eris.Wrapf(err, "schedule %q", cfg.Spec)
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, eris.Wrapf(err, "schedule timezone %q", tz)
		}
	}
	return &Scheduler{cfg: cfg, spec: spec, loc: loc, job: job, log: log, notify: Systemd{}}, nil
}

// SetNotifier replaces the systemd notifier.
func (s *Scheduler) SetNotifier(n Notifier) {
	if n != nil {
		s.notify = n
	}
}

func (s *Scheduler) Spec() ParsedSpec { return s.spec }

// Next returns the first trigger time strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := parser.Parse(s.spec.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t.In(s.loc))
}

// Stats returns completed runs and skipped (overlapping) triggers.
func (s *Scheduler) Stats() (runs, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.skipped
}

// Trigger runs the job now unless a run is already in progress. It reports
// whether the job ran.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.skipped++
		s.mu.Unlock()
		s.log.Warn("previous run still in progress; skipping trigger")
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.runs++
		s.mu.Unlock()
	}()

	_ = s.notify.Notify("STATUS=running")
	start := time.Now()
	err := s.job(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Error("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
	} else {
		s.log.Info("scheduled run finished", logx.Duration("took", time.Since(start)))
	}
	_ = s.notify.Notify("STATUS=idle; next run " + s.Next(time.Now()).Format(time.RFC3339))
	return true
}

// Run blocks until ctx ends, triggering the job on schedule. The in-flight
// run, if any, gets ctx cancellation and Run waits for it to return before
// reporting STOPPING.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.log}),
	)
	if _, err := c.AddFunc(s.spec.Cron, func() { s.Trigger(ctx) }); err != nil {
		return eris.Wrapf(err, "schedule %q", s.cfg.Spec)
	}
	c.Start()
	s.log.Info("scheduler started",
		logx.String("spec", s.cfg.Spec),
		logx.String("cron", s.spec.Cron),
		logx.String("tz", s.loc.String()),
		logx.Time("next", s.Next(time.Now())),
	)
	_ = s.notify.Notify(daemon.SdNotifyReady)

	var wg sync.WaitGroup
	if s.cfg.RunOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trigger(ctx)
		}()
	}

	stopWatchdog := s.watchdog(ctx)
	<-ctx.Done()
	stopWatchdog()

	s.log.Info("scheduler stopping")
	<-c.Stop().Done()
	wg.Wait()
	_ = s.notify.Notify(daemon.SdNotifyStopping)
	return nil
}

// watchdog pings systemd at half the configured WatchdogSec, if any.
func (s *Scheduler) watchdog(ctx context.Context) func() {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(every / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = s.notify.Notify(daemon.SdNotifyWatchdog)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
