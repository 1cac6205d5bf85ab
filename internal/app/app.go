// Package app wires configuration, the ledger store, the identity source and
// the Telegram session into one run, and optionally repeats runs on a
// schedule.
package app

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"tgadder/internal/config"
	"tgadder/internal/eventbus"
	"tgadder/internal/ledger"
	"tgadder/internal/notify"
	"tgadder/internal/onboard"
	"tgadder/internal/platform"
	"tgadder/internal/platform/mtproto"
	"tgadder/internal/ratelimit"
	"tgadder/internal/schedule"
	"tgadder/internal/source"
	"tgadder/internal/storage"
	logx "tgadder/pkg/logx"
)

// ErrNoPhones means the source produced no rows at all.
var ErrNoPhones = eris.New("no phone numbers found in source")

// Dialer opens a platform session for the duration of fn.
type Dialer func(ctx context.Context, cfg mtproto.Config, log logx.Logger, fn func(ctx context.Context, c platform.Client) error) error

// DialMTProto is the production Dialer.
func DialMTProto(ctx context.Context, cfg mtproto.Config, log logx.Logger, fn func(ctx context.Context, c platform.Client) error) error {
	return mtproto.Run(ctx, cfg, log, func(ctx context.Context, c *mtproto.Client) error {
		return fn(ctx, c)
	})
}

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	notifier *notify.Notifier
	events   eventbus.Bus
	dial     Dialer
	clock    ratelimit.Clock
}

type Option func(*App)

// WithDialer replaces the Telegram session, mainly for tests.
func WithDialer(d Dialer) Option { return func(a *App) { a.dial = d } }

// WithClock sets the clock used for rate-limit pauses.
func WithClock(c ratelimit.Clock) Option { return func(a *App) { a.clock = c } }

// New loads and validates the config and starts logging.
func New(cfgm *config.Manager, opts ...Option) (*App, error) {
	cfgm.SetValidator(config.Validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	a := &App{cfgm: cfgm, dial: DialMTProto, events: eventbus.New()}
	for _, o := range opts {
		o(a)
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "notify"))
	var sender logx.Sender
	if ncfg, ok := mapNotify(cfg); ok {
		n, err := notify.New(ncfg, bootLog)
		if err != nil {
			return nil, err
		}
		a.notifier = n
		sender = n
	}

	a.logs, a.log = logx.New(mapLogging(cfg, sender != nil), sender)
	cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

// Events carries progress of every run this App performs.
func (a *App) Events() eventbus.Bus { return a.events }

// Config returns the config currently in effect.
func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Close() error {
	if a.logs != nil {
		return a.logs.Close()
	}
	return nil
}

// RunOnce performs one full onboarding run with the current config.
func (a *App) RunOnce(ctx context.Context) (onboard.Report, error) {
	cfg := a.cfgm.Get()
	log := a.log.With(logx.String("comp", "run"))

	rep, err := a.runOnce(ctx, cfg, log)
	if a.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		if nerr := a.notifier.Report(nctx, rep, err); nerr != nil {
			log.Warn("run report not delivered", logx.Err(nerr))
		}
		cancel()
	}
	return rep, err
}

func (a *App) runOnce(ctx context.Context, cfg *config.Config, log logx.Logger) (onboard.Report, error) {
	srcOpts, err := mapSource(cfg)
	if err != nil {
		return onboard.Report{}, err
	}
	limits, err := mapLimits(cfg)
	if err != nil {
		return onboard.Report{}, err
	}
	stCfg, err := mapStorage(cfg)
	if err != nil {
		return onboard.Report{}, err
	}
	tgCfg, err := mapTelegram(cfg)
	if err != nil {
		return onboard.Report{}, err
	}

	rows, err := source.Load(ctx, srcOpts, log.With(logx.String("comp", "source")))
	if err != nil {
		return onboard.Report{}, eris.Wrap(err, "load phone numbers")
	}
	if len(rows) == 0 {
		return onboard.Report{}, ErrNoPhones
	}
	log.Info("phone numbers loaded", logx.Int("rows", len(rows)))

	store, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return onboard.Report{}, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("ledger store close failed", logx.Err(cerr))
		}
	}()

	limOpts := []ratelimit.Option{ratelimit.WithLogger(log.With(logx.String("comp", "ratelimit")))}
	if a.clock != nil {
		limOpts = append(limOpts, ratelimit.WithClock(a.clock))
	}
	limiter := ratelimit.New(limits, limOpts...)
	led := ledger.New(store)

	stop := progress(a.events, log)
	defer stop()

	var rep onboard.Report
	err = a.dial(ctx, tgCfg, log.With(logx.String("comp", "mtproto")), func(ctx context.Context, c platform.Client) error {
		var rerr error
		runner := onboard.NewRunner(c, limiter, led, log)
		runner.SetEvents(a.events)
		rep, rerr = runner.Run(ctx, mapRun(cfg), rows)
		return rerr
	})
	if err != nil {
		// Rows recorded before the failure stay in the report.
		rep.Summary = led.Summary()
		return rep, err
	}
	log.Info("done",
		logx.Int("added", rep.Summary.Added),
		logx.Int("logged", rep.Summary.Total),
		logx.String("ledger", stCfg.Path),
	)
	return rep, nil
}

// Daemon runs on the configured schedule until ctx ends. Config file edits
// apply from the next run; a changed schedule spec needs a restart.
func (a *App) Daemon(ctx context.Context) error {
	cfg := a.cfgm.Get()
	sched, err := schedule.New(mapSchedule(cfg), func(ctx context.Context) error {
		_, err := a.RunOnce(ctx)
		return err
	}, a.log.With(logx.String("comp", "schedule")))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(updates)
	go func() { _ = a.cfgm.Watch(ctx) }()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				a.logs.Apply(mapLogging(next, a.notifier != nil))
				if next.Schedule.Spec != cfg.Schedule.Spec || next.Schedule.Timezone != cfg.Schedule.Timezone {
					a.log.Warn("schedule changed in config; restart to apply",
						logx.String("running", cfg.Schedule.Spec),
						logx.String("configured", next.Schedule.Spec),
					)
				}
			}
		}
	}()

	return sched.Run(ctx)
}
