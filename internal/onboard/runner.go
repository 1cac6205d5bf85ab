package onboard

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"tgadder/internal/eventbus"
	"tgadder/internal/group"
	"tgadder/internal/ledger"
	"tgadder/internal/phone"
	"tgadder/internal/platform"
	"tgadder/internal/ratelimit"
	"tgadder/internal/source"
	logx "tgadder/pkg/logx"
)

// RunConfig is the per-run input that does not come from the source rows.
type RunConfig struct {
	Group      string // descriptor: invite link, @username, t.me link or numeric id
	InviteLink string // explicit link; wins over an exported one
	Region     string
	Template   Template
}

// Report is what a run hands back to its caller.
type Report struct {
	Summary  ledger.Summary
	Limits   ratelimit.Stats
	Target   group.Target
	Started  time.Time
	Finished time.Time
}

// Runner processes one ordered batch of source rows against one group.
// It is not reusable across concurrent runs; build one per run.
type Runner struct {
	client  platform.Client
	limiter *ratelimit.Limiter
	ledger  *ledger.Ledger
	log     logx.Logger
	events  eventbus.Bus
	now     func() time.Time
}

func NewRunner(client platform.Client, limiter *ratelimit.Limiter, l *ledger.Ledger, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{client: client, limiter: limiter, ledger: l, log: log, events: eventbus.Nop{}, now: time.Now}
}

// SetEvents makes the runner publish progress on bus.
func (r *Runner) SetEvents(bus eventbus.Bus) {
	if bus != nil {
		r.events = bus
	}
}

// Run resolves the group once, then drives every row to exactly one ledger
// entry in source order.
//
// Errors: group resolution failure and ledger write failure abort the run. A
// ctx cancellation observed at a pause returns the partial report together
// with ctx's error; the identity in flight at that moment gets no entry.
func (r *Runner) Run(ctx context.Context, cfg RunConfig, rows []source.Record) (Report, error) {
	rep := Report{Started: r.now()}
	finish := func(err error) (Report, error) {
		rep.Summary = r.ledger.Summary()
		rep.Limits = r.limiter.Stats()
		rep.Finished = r.now()
		r.events.Publish(eventbus.Event{Type: eventbus.RunFinished, Group: rep.Target.Label(), Rows: len(rows), Err: err})
		return rep, err
	}

	target, err := group.NewResolver(r.client, r.log).Resolve(ctx, cfg.Group, cfg.InviteLink)
	if err != nil {
		return finish(err)
	}
	rep.Target = target
	if strings.TrimSpace(target.InviteLink) == "" {
		r.log.Warn("no invite link available; DMs will carry an empty link",
			logx.String("group", target.Label()))
	}

	log := r.log.With(logx.String("group", target.Label()))
	log.Info("run started", logx.Int("rows", len(rows)))
	r.events.Publish(eventbus.Event{Type: eventbus.RunStarted, Group: target.Label(), Rows: len(rows)})

	norm := phone.NewNormalizer(cfg.Region)
	seen := phone.NewDedupSet()
	machine := NewMachine(r.client, r.limiter, target, cfg.Template, log)

	for _, row := range rows {
		id, err := norm.Identity(row.Phone, row.FirstName)
		if err != nil {
			if err := r.record(ctx, ledger.Entry{
				Phone:  row.Phone,
				Status: ledger.StatusInvalidPhone,
				Note:   err.Error(),
			}); err != nil {
				return finish(err)
			}
			log.Debug("invalid phone", logx.Int("line", row.Line), logx.String("raw", row.Phone))
			continue
		}
		if !seen.Admit(id.Key) {
			if err := r.record(ctx, ledger.Entry{Phone: id.Key, Status: ledger.StatusDuplicate}); err != nil {
				return finish(err)
			}
			continue
		}

		att, err := machine.Run(ctx, id)
		if err != nil {
			log.Warn("run cancelled", logx.String("phone", id.Key), logx.String("state", att.State.String()))
			return finish(err)
		}
		if err := r.record(ctx, att.Entry()); err != nil {
			return finish(err)
		}
		log.Info("identity done",
			logx.String("phone", id.Key),
			logx.String("status", string(att.Status)),
			logx.String("note", att.Note()),
		)

		if err := r.limiter.Processed(ctx); err != nil {
			log.Warn("run cancelled", logx.String("after", id.Key))
			return finish(err)
		}
	}

	rep, err = finish(nil)
	log.Info("run finished",
		logx.Int("added", rep.Summary.Added),
		logx.Int("total", rep.Summary.Total),
		logx.Duration("took", rep.Finished.Sub(rep.Started)),
	)
	return rep, err
}

func (r *Runner) record(ctx context.Context, e ledger.Entry) error {
	if err := r.ledger.Record(ctx, e); err != nil {
		return eris.Wrap(err, "record outcome")
	}
	r.events.Publish(eventbus.Event{Type: eventbus.Outcome, Entry: e})
	return nil
}
