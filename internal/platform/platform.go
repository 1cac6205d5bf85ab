// Package platform defines the narrow capability surface the onboarding core
// needs from the messaging platform, and the closed result type every
// per-identity call is mapped to.
//
// Adapters (internal/platform/mtproto) decide the mapping once; the core only
// switches on Result.Kind.
package platform

import (
	"context"
	"fmt"
	"time"
)

// GroupKind distinguishes basic groups from supergroups/channels.
// The add and membership calls differ between the two.
type GroupKind int

const (
	GroupUnknown GroupKind = iota
	GroupBasic
	GroupChannel
)

func (k GroupKind) String() string {
	switch k {
	case GroupBasic:
		return "basic"
	case GroupChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Group is an addressable group handle.
type Group struct {
	ID         int64
	AccessHash int64
	Kind       GroupKind
	Title      string
	Username   string

	// CanInvite reports whether the acting account may add members and export
	// invite links (creator, or admin with the invite-users right).
	CanInvite bool
}

// User is a resolved platform user.
type User struct {
	ID         int64
	AccessHash int64
	FirstName  string
	Username   string
}

// Kind enumerates the outcomes of a per-identity platform call.
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindPrivacyBlocked
	KindPermissionDenied
	KindForbidden
	KindAlreadyParticipant
	KindFloodWait
	KindOther
)

var kindNames = [...]string{
	KindOK:                 "ok",
	KindNotFound:           "not_found",
	KindPrivacyBlocked:     "privacy_blocked",
	KindPermissionDenied:   "permission_denied",
	KindForbidden:          "forbidden",
	KindAlreadyParticipant: "already_participant",
	KindFloodWait:          "flood_wait",
	KindOther:              "other",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the tagged outcome of a platform call.
// Wait is set only for KindFloodWait (zero means "no duration given").
// Detail carries the raw platform error text for anything but KindOK.
type Result struct {
	Kind   Kind
	Wait   time.Duration
	Detail string
}

func OK() Result                       { return Result{Kind: KindOK} }
func NotFound() Result                 { return Result{Kind: KindNotFound} }
func FloodWait(d time.Duration) Result { return Result{Kind: KindFloodWait, Wait: d} }
func Fail(kind Kind, detail string) Result {
	return Result{Kind: kind, Detail: detail}
}

func (r Result) OK() bool    { return r.Kind == KindOK }
func (r Result) Flood() bool { return r.Kind == KindFloodWait }

func (r Result) String() string {
	if r.Kind == KindFloodWait {
		return fmt.Sprintf("flood_wait(%s)", r.Wait)
	}
	if r.Detail != "" {
		return r.Kind.String() + ": " + r.Detail
	}
	return r.Kind.String()
}

// Client is the platform capability consumed by the group resolver and the
// onboarding state machine.
//
// Group resolution calls return plain errors: any failure there is fatal for
// the run. Per-identity calls return a Result and never an error.
type Client interface {
	JoinByInviteHash(ctx context.Context, hash string) (Group, error)
	ResolveUsername(ctx context.Context, username string) (Group, error)
	ResolveID(ctx context.Context, id int64) (Group, error)
	ExportInviteLink(ctx context.Context, g Group) (string, error)

	ImportContact(ctx context.Context, phone string) (User, Result)
	IsParticipant(ctx context.Context, g Group, u User) (bool, Result)
	AddParticipant(ctx context.Context, g Group, u User) Result
	SendDirectMessage(ctx context.Context, u User, text string) Result
}
