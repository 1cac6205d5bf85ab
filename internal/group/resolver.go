package group

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"tgadder/internal/platform"
	logx "tgadder/pkg/logx"
)

// ErrUnresolvable marks a descriptor the platform refused to resolve.
// It is fatal for the run.
var ErrUnresolvable = eris.New("group unresolvable")

// Target is the resolved group of a run. Read-only once built.
type Target struct {
	platform.Group
	Descriptor Descriptor

	// InviteLink is the configured link, or an exported one when the acting
	// account may invite, or the public t.me link of a username group.
	InviteLink string
}

// Label is the display name used in invite messages.
func (t Target) Label() string {
	if s := strings.TrimSpace(t.Title); s != "" {
		return s
	}
	return t.Descriptor.Raw
}

type Resolver struct {
	client platform.Client
	log    logx.Logger
}

func NewResolver(client platform.Client, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{client: client, log: log}
}

// Resolve parses descriptor, routes it to exactly one resolution branch and
// settles the invite link. explicitLink, when set, wins over any exported link.
func (r *Resolver) Resolve(ctx context.Context, descriptor, explicitLink string) (Target, error) {
	d, err := ParseDescriptor(descriptor)
	if err != nil {
		return Target{}, err
	}

	var g platform.Group
	switch d.Kind {
	case KindInviteHash:
		g, err = r.client.JoinByInviteHash(ctx, d.Hash)
	case KindUsername:
		g, err = r.client.ResolveUsername(ctx, d.Username)
	case KindNumericID:
		g, err = r.client.ResolveID(ctx, d.ID)
	default:
		return Target{}, eris.Wrapf(ErrUnrecognized, "%q", descriptor)
	}
	if err != nil {
		return Target{}, eris.Wrapf(ErrUnresolvable, "%s %q: %v", d.Kind, d.Raw, err)
	}

	t := Target{Group: g, Descriptor: d, InviteLink: strings.TrimSpace(explicitLink)}
	if t.InviteLink == "" && g.CanInvite {
		link, err := r.client.ExportInviteLink(ctx, g)
		if err != nil {
			r.log.Warn("invite link export failed", logx.Int64("group_id", g.ID), logx.Err(err))
		} else {
			t.InviteLink = strings.TrimSpace(link)
		}
	}
	if t.InviteLink == "" && g.Username != "" {
		t.InviteLink = "https://t.me/" + g.Username
	}

	r.log.Info("group resolved",
		logx.String("via", d.Kind.String()),
		logx.Int64("group_id", g.ID),
		logx.String("group_kind", g.Kind.String()),
		logx.String("title", g.Title),
		logx.Bool("can_invite", g.CanInvite),
		logx.Bool("has_invite_link", t.InviteLink != ""),
	)
	if !g.CanInvite {
		r.log.Warn("acting account lacks the add-members right; adds will likely fall back to DMs")
	}
	return t, nil
}
