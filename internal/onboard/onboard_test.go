package onboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgadder/internal/eventbus"
	"tgadder/internal/group"
	"tgadder/internal/ledger"
	"tgadder/internal/platform"
	"tgadder/internal/platform/platformtest"
	"tgadder/internal/ratelimit"
	"tgadder/internal/ratelimit/ratelimittest"
	"tgadder/internal/source"
	logx "tgadder/pkg/logx"
)

const (
	phoneA = "+12015550123"
	phoneB = "+16502530000"
	phoneC = "+441212345678"
)

type harness struct {
	fake   *platformtest.Fake
	clock  *ratelimittest.Clock
	lim    *ratelimit.Limiter
	sink   *ledger.Memory
	ledger *ledger.Ledger
	runner *Runner
}

func newHarness(t *testing.T, cfg ratelimit.Config) *harness {
	t.Helper()
	h := &harness{fake: platformtest.New(), clock: ratelimittest.NewClock(), sink: &ledger.Memory{}}
	h.fake.Groups["username:mygroup"] = platform.Group{ID: 3, Kind: platform.GroupChannel, Title: "My Group", Username: "mygroup"}
	h.fake.Users[phoneA] = platform.User{ID: 1, FirstName: "Ana"}
	h.fake.Users[phoneB] = platform.User{ID: 2}
	h.fake.Users[phoneC] = platform.User{ID: 3, FirstName: "Cy"}

	if cfg.FloodFallback == 0 {
		cfg.FloodFallback = time.Minute
	}
	h.lim = ratelimit.New(cfg, ratelimit.WithClock(h.clock))
	h.ledger = ledger.New(h.sink).WithNow(h.clock.Now)
	h.runner = NewRunner(h.fake, h.lim, h.ledger, logx.Nop())
	return h
}

func (h *harness) run(t *testing.T, rows ...string) (Report, error) {
	t.Helper()
	recs := make([]source.Record, len(rows))
	for i, p := range rows {
		recs[i] = source.Record{Line: i + 2, Phone: p}
	}
	return h.runner.Run(context.Background(), RunConfig{Group: "@mygroup", Region: "US"}, recs)
}

func statuses(entries []ledger.Entry) []ledger.Status {
	out := make([]ledger.Status, len(entries))
	for i, e := range entries {
		out[i] = e.Status
	}
	return out
}

func TestRunAddsNonMembers(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	rep, err := h.run(t, phoneA, phoneB)
	require.NoError(t, err)

	assert.Equal(t, []ledger.Status{ledger.StatusAdded, ledger.StatusAdded}, statuses(h.sink.Entries()))
	assert.Equal(t, 2, rep.Summary.Added)
	assert.Equal(t, 2, rep.Summary.Total)
	assert.Equal(t, "https://t.me/mygroup", rep.Target.InviteLink)
	assert.Empty(t, h.fake.DMs())
}

func TestRunSkipsExistingMembers(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.fake.Members[1] = true

	_, err := h.run(t, phoneA)
	require.NoError(t, err)

	e := h.sink.Entries()
	require.Len(t, e, 1)
	assert.Equal(t, ledger.StatusAlreadyMember, e[0].Status)
	assert.Empty(t, h.fake.Calls("AddParticipant"))
	assert.Empty(t, h.fake.Calls("SendDirectMessage"))
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	_, err := h.run(t, phoneA, phoneC)
	require.NoError(t, err)

	h.fake.Reset()
	h.sink = &ledger.Memory{}
	h.ledger = ledger.New(h.sink)
	h.runner = NewRunner(h.fake, h.lim, h.ledger, logx.Nop())

	rep, err := h.run(t, phoneA, phoneC)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Status{ledger.StatusAlreadyMember, ledger.StatusAlreadyMember}, statuses(h.sink.Entries()))
	assert.Zero(t, rep.Summary.Added)
	assert.Empty(t, h.fake.Calls("AddParticipant"))
	assert.Empty(t, h.fake.DMs())
}

func TestRunPrivacyBlockedFallsBackToDM(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.fake.AddResults[1] = []platform.Result{platform.Fail(platform.KindPrivacyBlocked, "USER_PRIVACY_RESTRICTED")}

	_, err := h.run(t, phoneA)
	require.NoError(t, err)

	e := h.sink.Entries()
	require.Len(t, e, 1)
	assert.Equal(t, ledger.StatusDMSent, e[0].Status)
	assert.Equal(t, ledger.StatusDMSent, e[0].DMStatus)
	assert.Contains(t, e[0].Note, ledger.NoteBlockedByPrivacy)

	dms := h.fake.DMs()
	require.Len(t, dms, 1)
	assert.Equal(t, int64(1), dms[0].UserID)
	assert.Contains(t, dms[0].Text, "Hi Ana")
	assert.Contains(t, dms[0].Text, "My Group")
	assert.Contains(t, dms[0].Text, "https://t.me/mygroup")
}

func TestRunDMOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		add    platform.Result
		dm     []platform.Result
		status ledger.Status
		note   string
	}{
		{"no permission then forbidden", platform.Fail(platform.KindPermissionDenied, "CHAT_ADMIN_REQUIRED"),
			[]platform.Result{platform.Fail(platform.KindForbidden, "USER_IS_BLOCKED")}, ledger.StatusDMForbidden, ledger.NoteNoAddPermission},
		{"privacy then dm privacy", platform.Fail(platform.KindPrivacyBlocked, ""),
			[]platform.Result{platform.Fail(platform.KindPrivacyBlocked, "PRIVACY_PREMIUM_REQUIRED")}, ledger.StatusDMPrivacyBlocked, ledger.NoteBlockedByPrivacy},
		{"other add failure still DMs", platform.Fail(platform.KindOther, "USER_CHANNELS_TOO_MUCH"),
			nil, ledger.StatusDMSent, "USER_CHANNELS_TOO_MUCH"},
		{"unclassified dm error", platform.Fail(platform.KindPermissionDenied, ""),
			[]platform.Result{platform.Fail(platform.KindOther, "INPUT_USER_DEACTIVATED")}, ledger.StatusDMForbidden, "INPUT_USER_DEACTIVATED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, ratelimit.Config{})
			h.fake.AddResults[1] = []platform.Result{tt.add}
			h.fake.DMResults[1] = tt.dm

			_, err := h.run(t, phoneA)
			require.NoError(t, err)
			e := h.sink.Entries()
			require.Len(t, e, 1)
			assert.Equal(t, tt.status, e[0].Status)
			assert.Equal(t, tt.status, e[0].DMStatus)
			assert.Contains(t, e[0].Note, tt.note)
			assert.Len(t, h.fake.Calls("SendDirectMessage"), 1)
		})
	}
}

func TestRunAddAlreadyParticipant(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.fake.AddResults[1] = []platform.Result{platform.Fail(platform.KindAlreadyParticipant, "USER_ALREADY_PARTICIPANT")}

	_, err := h.run(t, phoneA)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Status{ledger.StatusAlreadyMember}, statuses(h.sink.Entries()))
	assert.Empty(t, h.fake.Calls("SendDirectMessage"))
}

func TestRunNotOnPlatform(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.fake.ImportResults[phoneB] = []platform.Result{platform.Fail(platform.KindOther, "PHONE_NUMBER_BANNED")}
	delete(h.fake.Users, phoneC)

	_, err := h.run(t, phoneB, phoneC)
	require.NoError(t, err)

	e := h.sink.Entries()
	require.Len(t, e, 2)
	assert.Equal(t, ledger.StatusNotOnTelegram, e[0].Status)
	assert.Contains(t, e[0].Note, "PHONE_NUMBER_BANNED")
	assert.Equal(t, ledger.StatusNotOnTelegram, e[1].Status)
	assert.Empty(t, e[1].Note)
	assert.Empty(t, h.fake.Calls("IsParticipant"))
}

func TestRunFloodRetriesOnce(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.fake.AddResults[1] = []platform.Result{platform.FloodWait(30 * time.Second), platform.OK()}

	_, err := h.run(t, phoneA)
	require.NoError(t, err)

	assert.Equal(t, []ledger.Status{ledger.StatusAdded}, statuses(h.sink.Entries()))
	assert.Len(t, h.fake.Calls("AddParticipant"), 2)
	assert.Contains(t, h.clock.Sleeps(), 30*time.Second)
	assert.Equal(t, 1, h.lim.Stats().FloodFreezes)
}

func TestRunFloodEscalatesAndContinues(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.fake.AddResults[1] = []platform.Result{platform.FloodWait(30 * time.Second), platform.FloodWait(45 * time.Second)}

	rep, err := h.run(t, phoneA, phoneB)
	require.NoError(t, err)

	assert.Equal(t, []ledger.Status{ledger.StatusPeerFlood, ledger.StatusAdded}, statuses(h.sink.Entries()))
	assert.Empty(t, h.fake.DMs())
	assert.Equal(t, 1, rep.Limits.Escalations)
	// The second flood freezes the next identity's calls too.
	assert.Equal(t, []time.Duration{30 * time.Second, 45 * time.Second}, h.clock.Sleeps())
}

func TestRunFloodEscalationPaths(t *testing.T) {
	tests := []struct {
		name   string
		script func(f *platformtest.Fake)
		method string
		dm     ledger.Status
		note   string
	}{
		{
			name: "import",
			script: func(f *platformtest.Fake) {
				f.ImportResults[phoneA] = []platform.Result{platform.FloodWait(0), platform.FloodWait(0)}
			},
			method: "ImportContact",
			note:   "import_contact flood",
		},
		{
			name: "membership",
			script: func(f *platformtest.Fake) {
				f.MembershipResults[1] = []platform.Result{platform.FloodWait(0), platform.FloodWait(0)}
			},
			method: "IsParticipant",
			note:   "membership check flood",
		},
		{
			name: "dm",
			script: func(f *platformtest.Fake) {
				f.AddResults[1] = []platform.Result{platform.Fail(platform.KindPrivacyBlocked, "USER_PRIVACY_RESTRICTED")}
				f.DMResults[1] = []platform.Result{platform.FloodWait(0), platform.FloodWait(0)}
			},
			method: "SendDirectMessage",
			dm:     ledger.StatusPeerFlood,
			note:   "dm flood",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, ratelimit.Config{FloodFallback: time.Minute})
			tt.script(h.fake)

			rep, err := h.run(t, phoneA, phoneB)
			require.NoError(t, err)

			e := h.sink.Entries()
			require.Len(t, e, 2)
			assert.Equal(t, ledger.StatusPeerFlood, e[0].Status)
			assert.Equal(t, tt.dm, e[0].DMStatus)
			assert.Contains(t, e[0].Note, tt.note)
			assert.Equal(t, ledger.StatusAdded, e[1].Status, "the run continues")

			calls := 0
			for _, c := range h.fake.Calls(tt.method) {
				if c.Arg == phoneA || c.Arg == "1" {
					calls++
				}
			}
			assert.Equal(t, 2, calls)
			assert.Equal(t, 1, rep.Limits.Escalations)
			// First flood freezes before the retry, the second before the next identity.
			assert.Equal(t, []time.Duration{time.Minute, time.Minute}, h.clock.Sleeps())
		})
	}
}

func TestRunSleepsBeforeEveryAddAndDM(t *testing.T) {
	h := newHarness(t, ratelimit.Config{AddInterval: 2 * time.Second, DMInterval: 3 * time.Second})

	_, err := h.run(t, phoneA, phoneB, phoneC)
	require.NoError(t, err)
	assert.Len(t, h.fake.Calls("AddParticipant"), 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, h.clock.Sleeps())

	h = newHarness(t, ratelimit.Config{AddInterval: 2 * time.Second, DMInterval: 3 * time.Second})
	h.fake.AddResults[1] = []platform.Result{platform.Fail(platform.KindPrivacyBlocked, "")}
	h.fake.AddResults[2] = []platform.Result{platform.Fail(platform.KindPrivacyBlocked, "")}

	_, err = h.run(t, phoneA, phoneB)
	require.NoError(t, err)
	assert.Len(t, h.fake.DMs(), 2)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 2 * time.Second, 3 * time.Second}, h.clock.Sleeps())
}

func TestRunInvalidAndDuplicateRows(t *testing.T) {
	h := newHarness(t, ratelimit.Config{BatchSize: 1, BatchPause: time.Minute})

	rep, err := h.run(t, "not a phone", phoneA, "001 201 555 0123", "", "(201) 555-0123")
	require.NoError(t, err)

	assert.Equal(t, []ledger.Status{
		ledger.StatusInvalidPhone,
		ledger.StatusAdded,
		ledger.StatusDuplicate,
		ledger.StatusInvalidPhone,
		ledger.StatusDuplicate,
	}, statuses(h.sink.Entries()))
	assert.Equal(t, "not a phone", h.sink.Entries()[0].Phone)
	assert.Len(t, h.fake.Calls("ImportContact"), 1)
	assert.Equal(t, 1, rep.Limits.Processed)
	assert.Zero(t, rep.Limits.BatchPauses, "no pause after the last identity")
	assert.Equal(t, 5, rep.Summary.Total)
}

func TestRunPublishesProgress(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	h.runner.SetEvents(bus)

	_, err := h.run(t, phoneA, "bogus")
	require.NoError(t, err)

	var got []eventbus.Type
	for len(events) > 0 {
		e := <-events
		got = append(got, e.Type)
		if e.Type == eventbus.RunStarted {
			assert.Equal(t, "My Group", e.Group)
			assert.Equal(t, 2, e.Rows)
		}
	}
	assert.Equal(t, []eventbus.Type{eventbus.RunStarted, eventbus.Outcome, eventbus.Outcome, eventbus.RunFinished}, got)
}

func TestRunBatchPause(t *testing.T) {
	h := newHarness(t, ratelimit.Config{AddInterval: 10 * time.Second, BatchSize: 2, BatchPause: 5 * time.Minute})

	rep, err := h.run(t, phoneA, phoneB, phoneC)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Summary.Added)
	assert.Equal(t, 1, rep.Limits.BatchPauses)
	assert.Contains(t, h.clock.Sleeps(), 5*time.Minute)
}

func TestRunUnresolvableGroupProcessesNothing(t *testing.T) {
	tests := []struct {
		descriptor string
		want       error
	}{
		{"https://example.com/nope", group.ErrUnrecognized},
		{"@ghost", group.ErrUnresolvable},
	}
	for _, tt := range tests {
		t.Run(tt.descriptor, func(t *testing.T) {
			h := newHarness(t, ratelimit.Config{})
			_, err := h.runner.Run(context.Background(), RunConfig{Group: tt.descriptor},
				[]source.Record{{Line: 2, Phone: phoneA}})
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, h.sink.Entries())
			assert.Empty(t, h.fake.Calls("ImportContact"))
		})
	}
}

type failingSink struct{}

func (failingSink) Append(context.Context, ledger.Entry) error { return errors.New("disk full") }

func TestRunLedgerFailureIsFatal(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.runner = NewRunner(h.fake, h.lim, ledger.New(failingSink{}), logx.Nop())

	_, err := h.run(t, phoneA, phoneB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, h.fake.Calls("ImportContact"), 1)
}

// cancelOnAdd cancels the run right after the platform accepts an add.
type cancelOnAdd struct {
	*platformtest.Fake
	cancel context.CancelFunc
}

func (c cancelOnAdd) AddParticipant(ctx context.Context, g platform.Group, u platform.User) platform.Result {
	res := c.Fake.AddParticipant(ctx, g, u)
	c.cancel()
	return res
}

func TestRunCancellationStopsAtNextPause(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.runner = NewRunner(cancelOnAdd{Fake: h.fake, cancel: cancel}, h.lim, h.ledger, logx.Nop())

	rep, err := h.runner.Run(ctx, RunConfig{Group: "@mygroup"},
		[]source.Record{{Phone: phoneA}, {Phone: phoneB}})
	require.ErrorIs(t, err, context.Canceled)

	// The in-flight identity is finished and recorded; nothing after it runs.
	assert.Equal(t, []ledger.Status{ledger.StatusAdded}, statuses(h.sink.Entries()))
	assert.Equal(t, 1, rep.Summary.Total)
	assert.Len(t, h.fake.Calls("ImportContact"), 1)
}

func TestTemplateRender(t *testing.T) {
	got := Template("").Render("", "G", "L")
	assert.Equal(t, "Hi there, I tried to add you to G but Telegram privacy or permissions blocked it. You can join directly using this link: L", got)

	got = Template("{first} -> {group} {link} {other}").Render(" Bo ", "G", "L")
	assert.Equal(t, "Bo -> G L {other}", got)
}

func TestMachineFirstNameFallsBackToSource(t *testing.T) {
	h := newHarness(t, ratelimit.Config{})
	h.fake.AddResults[2] = []platform.Result{platform.Fail(platform.KindPrivacyBlocked, "")}

	_, err := h.runner.Run(context.Background(), RunConfig{Group: "@mygroup", Template: "Hello {first}"},
		[]source.Record{{Phone: phoneB, FirstName: "Bea"}})
	require.NoError(t, err)
	dms := h.fake.DMs()
	require.Len(t, dms, 1)
	assert.Equal(t, "Hello Bea", dms[0].Text)
}
