// Package platformtest provides a scriptable in-memory platform.Client.
package platformtest

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"tgadder/internal/platform"
)

var ErrNoGroup = errors.New("platformtest: no such group")

// Call records one invocation.
type Call struct {
	Method string
	Arg    string
}

// DM is a delivered direct message.
type DM struct {
	UserID int64
	Text   string
}

// Fake is a platform.Client backed by maps. Zero value is usable.
//
// Unscripted behaviour: ImportContact finds Users[phone] or reports NotFound;
// AddParticipant succeeds and makes the user a member; SendDirectMessage
// succeeds. Scripted results are consumed in order, per key.
type Fake struct {
	mu sync.Mutex

	// Groups is keyed by "hash:<hash>", "username:<name>" or "id:<id>".
	Groups     map[string]platform.Group
	ExportLink string
	ExportErr  error

	Users   map[string]platform.User // by E.164 phone
	Members map[int64]bool           // by user id

	ImportResults     map[string][]platform.Result // by phone
	MembershipResults map[int64][]platform.Result  // by user id
	AddResults        map[int64][]platform.Result  // by user id
	DMResults         map[int64][]platform.Result  // by user id

	calls []Call
	dms   []DM
}

func New() *Fake {
	return &Fake{
		Groups:        map[string]platform.Group{},
		Users:         map[string]platform.User{},
		Members:       map[int64]bool{},
		ImportResults:     map[string][]platform.Result{},
		MembershipResults: map[int64][]platform.Result{},
		AddResults:        map[int64][]platform.Result{},
		DMResults:         map[int64][]platform.Result{},
	}
}

func (f *Fake) record(method, arg string) {
	f.calls = append(f.calls, Call{Method: method, Arg: arg})
}

func pop[K comparable](m map[K][]platform.Result, k K) (platform.Result, bool) {
	q := m[k]
	if len(q) == 0 {
		return platform.Result{}, false
	}
	m[k] = q[1:]
	return q[0], true
}

func (f *Fake) group(key string) (platform.Group, error) {
	g, ok := f.Groups[key]
	if !ok {
		return platform.Group{}, ErrNoGroup
	}
	return g, nil
}

func (f *Fake) JoinByInviteHash(_ context.Context, hash string) (platform.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("JoinByInviteHash", hash)
	return f.group("hash:" + hash)
}

func (f *Fake) ResolveUsername(_ context.Context, username string) (platform.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ResolveUsername", username)
	return f.group("username:" + username)
}

func (f *Fake) ResolveID(_ context.Context, id int64) (platform.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	arg := strconv.FormatInt(id, 10)
	f.record("ResolveID", arg)
	return f.group("id:" + arg)
}

func (f *Fake) ExportInviteLink(_ context.Context, g platform.Group) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExportInviteLink", strconv.FormatInt(g.ID, 10))
	return f.ExportLink, f.ExportErr
}

func (f *Fake) ImportContact(_ context.Context, phone string) (platform.User, platform.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ImportContact", phone)
	if res, ok := pop(f.ImportResults, phone); ok && !res.OK() {
		return platform.User{}, res
	}
	u, ok := f.Users[phone]
	if !ok {
		return platform.User{}, platform.NotFound()
	}
	return u, platform.OK()
}

func (f *Fake) IsParticipant(_ context.Context, _ platform.Group, u platform.User) (bool, platform.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("IsParticipant", strconv.FormatInt(u.ID, 10))
	if res, ok := pop(f.MembershipResults, u.ID); ok && !res.OK() {
		return false, res
	}
	return f.Members[u.ID], platform.OK()
}

func (f *Fake) AddParticipant(_ context.Context, _ platform.Group, u platform.User) platform.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddParticipant", strconv.FormatInt(u.ID, 10))
	res, ok := pop(f.AddResults, u.ID)
	if !ok {
		res = platform.OK()
	}
	if res.OK() {
		f.Members[u.ID] = true
	}
	return res
}

func (f *Fake) SendDirectMessage(_ context.Context, u platform.User, text string) platform.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SendDirectMessage", strconv.FormatInt(u.ID, 10))
	res, ok := pop(f.DMResults, u.ID)
	if !ok {
		res = platform.OK()
	}
	if res.OK() {
		f.dms = append(f.dms, DM{UserID: u.ID, Text: text})
	}
	return res
}

// Calls returns every recorded call, optionally filtered by method.
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) DMs() []DM {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DM(nil), f.dms...)
}

// Reset forgets recorded calls and DMs, keeping membership state.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.dms = nil
}

var _ platform.Client = (*Fake)(nil)
