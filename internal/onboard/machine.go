package onboard

import (
	"context"
	"strings"

	"tgadder/internal/group"
	"tgadder/internal/ledger"
	"tgadder/internal/phone"
	"tgadder/internal/platform"
	"tgadder/internal/ratelimit"
	logx "tgadder/pkg/logx"
)

// State is a step of one identity's onboarding workflow.
type State int

const (
	StateNormalized State = iota
	StateContactImported
	StateMembershipChecked
	StateAddAttempted
	StateDMAttempted
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateNormalized:
		return "normalized"
	case StateContactImported:
		return "contact_imported"
	case StateMembershipChecked:
		return "membership_checked"
	case StateAddAttempted:
		return "add_attempted"
	case StateDMAttempted:
		return "dm_attempted"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Attempt is the working record of one identity. Owned by a single Machine.Run call.
type Attempt struct {
	Identity phone.Identity
	State    State
	User     platform.User

	Member   bool
	AddTried bool
	Add      platform.Result
	DMTried  bool
	DM       platform.Result

	Status   ledger.Status
	DMStatus ledger.Status
	notes    []string
}

func (a *Attempt) note(s string) {
	if s = strings.TrimSpace(s); s != "" {
		a.notes = append(a.notes, s)
	}
}

func (a *Attempt) Note() string { return strings.Join(a.notes, "; ") }

func (a *Attempt) finish(st ledger.Status) {
	a.Status = st
	a.State = StateTerminal
}

// Entry snapshots a terminal attempt as a ledger row.
func (a *Attempt) Entry() ledger.Entry {
	return ledger.Entry{
		Phone:    a.Identity.Key,
		UserID:   a.User.ID,
		Username: a.User.Username,
		Status:   a.Status,
		DMStatus: a.DMStatus,
		Note:     a.Note(),
	}
}

// Machine drives identities through import → membership → add → DM fallback.
// Every platform call goes through the shared limiter.
type Machine struct {
	client   platform.Client
	limiter  *ratelimit.Limiter
	target   group.Target
	template Template
	log      logx.Logger
}

func NewMachine(client platform.Client, limiter *ratelimit.Limiter, target group.Target, tmpl Template, log logx.Logger) *Machine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Machine{client: client, limiter: limiter, target: target, template: tmpl, log: log}
}

// Run takes id to a terminal state. The returned error is non-nil only when
// ctx ended during a limiter pause; the attempt is then not terminal.
func (m *Machine) Run(ctx context.Context, id phone.Identity) (*Attempt, error) {
	a := &Attempt{Identity: id, State: StateNormalized}

	// Normalized → ContactImported
	var user platform.User
	res, err := m.limiter.Do(ctx, ratelimit.OpImport, func(ctx context.Context) platform.Result {
		u, r := m.client.ImportContact(ctx, id.Key)
		user = u
		return r
	})
	if err != nil {
		return a, err
	}
	switch res.Kind {
	case platform.KindOK:
		a.User = user
		a.State = StateContactImported
	case platform.KindFloodWait:
		a.note("import_contact flood")
		a.finish(ledger.StatusPeerFlood)
		return a, nil
	case platform.KindNotFound:
		a.finish(ledger.StatusNotOnTelegram)
		return a, nil
	default:
		a.note("import_contact: " + res.String())
		a.finish(ledger.StatusNotOnTelegram)
		return a, nil
	}

	// ContactImported → MembershipChecked
	var member bool
	res, err = m.limiter.Do(ctx, ratelimit.OpMembership, func(ctx context.Context) platform.Result {
		ok, r := m.client.IsParticipant(ctx, m.target.Group, a.User)
		member = ok
		return r
	})
	if err != nil {
		return a, err
	}
	a.State = StateMembershipChecked
	switch {
	case res.Flood():
		a.note("membership check flood")
		a.finish(ledger.StatusPeerFlood)
		return a, nil
	case !res.OK():
		// Unknown membership: the add call settles it.
		a.note("membership check: " + res.String())
	case member:
		a.Member = true
		a.finish(ledger.StatusAlreadyMember)
		return a, nil
	}

	// NotMember → AddAttempted
	res, err = m.limiter.Do(ctx, ratelimit.OpAdd, func(ctx context.Context) platform.Result {
		return m.client.AddParticipant(ctx, m.target.Group, a.User)
	})
	if err != nil {
		return a, err
	}
	a.AddTried = true
	a.Add = res
	a.State = StateAddAttempted
	switch res.Kind {
	case platform.KindOK:
		a.finish(ledger.StatusAdded)
		return a, nil
	case platform.KindAlreadyParticipant:
		a.Member = true
		a.finish(ledger.StatusAlreadyMember)
		return a, nil
	case platform.KindFloodWait:
		a.note("add flood")
		a.finish(ledger.StatusPeerFlood)
		return a, nil
	case platform.KindPrivacyBlocked:
		a.note(ledger.NoteBlockedByPrivacy)
	case platform.KindPermissionDenied:
		a.note(ledger.NoteNoAddPermission)
	default:
		a.note("add failed: " + res.String())
	}

	// AddFailed → DMAttempted
	return a, m.sendInvite(ctx, a)
}

func (m *Machine) sendInvite(ctx context.Context, a *Attempt) error {
	first := a.User.FirstName
	if strings.TrimSpace(first) == "" {
		first = a.Identity.FirstName
	}
	text := m.template.Render(first, m.target.Label(), m.target.InviteLink)

	res, err := m.limiter.Do(ctx, ratelimit.OpDM, func(ctx context.Context) platform.Result {
		return m.client.SendDirectMessage(ctx, a.User, text)
	})
	if err != nil {
		return err
	}
	a.DMTried = true
	a.DM = res
	a.State = StateDMAttempted

	var st ledger.Status
	switch res.Kind {
	case platform.KindOK:
		st = ledger.StatusDMSent
	case platform.KindPrivacyBlocked:
		st = ledger.StatusDMPrivacyBlocked
	case platform.KindForbidden:
		st = ledger.StatusDMForbidden
	case platform.KindFloodWait:
		a.note("dm flood")
		st = ledger.StatusPeerFlood
	default:
		a.note("dm failed: " + res.String())
		st = ledger.StatusDMForbidden
	}
	a.DMStatus = st
	a.finish(st)
	return nil
}
