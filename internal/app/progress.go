package app

import (
	"tgadder/internal/eventbus"
	"tgadder/internal/ledger"
	logx "tgadder/pkg/logx"
)

const progressEvery = 25

// progress logs a running tally until the run finishes or stop is called.
func progress(bus eventbus.Bus, log logx.Logger) (stop func()) {
	ch, unsub := bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var rows, seen int
		counts := map[ledger.Status]int{}
		for e := range ch {
			switch e.Type {
			case eventbus.RunStarted:
				rows, seen = e.Rows, 0
				clear(counts)
			case eventbus.Outcome:
				seen++
				counts[e.Entry.Status]++
				if seen%progressEvery == 0 {
					log.Info("progress",
						logx.Int("done", seen),
						logx.Int("rows", rows),
						logx.Int("added", counts[ledger.StatusAdded]),
						logx.Int("dm_sent", counts[ledger.StatusDMSent]),
					)
				}
			case eventbus.RunFinished:
				if d := eventbus.Dropped(bus); d > 0 {
					log.Debug("progress events dropped", logx.Int64("dropped", int64(d)))
				}
			}
		}
	}()
	return func() {
		unsub()
		<-done
	}
}
