// Package group turns a configured group descriptor into a joined,
// addressable target shared by every onboarding attempt of a run.
package group

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DescriptorKind selects the resolution branch.
type DescriptorKind int

const (
	KindInviteHash DescriptorKind = iota + 1
	KindUsername
	KindNumericID
)

func (k DescriptorKind) String() string {
	switch k {
	case KindInviteHash:
		return "invite_hash"
	case KindUsername:
		return "username"
	case KindNumericID:
		return "numeric_id"
	default:
		return "unknown"
	}
}

// Descriptor is a parsed group descriptor. Exactly one of Hash, Username, ID
// is set, according to Kind.
type Descriptor struct {
	Kind     DescriptorKind
	Raw      string
	Hash     string
	Username string
	ID       int64
}

var ErrUnrecognized = eris.New("unrecognized group descriptor")

var (
	reUsername = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	reHash     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// -100 prefix: supergroup/channel; plain negative: basic group.
	reNumeric = regexp.MustCompile(`^-\d+$`)
)

var linkHosts = map[string]bool{
	"t.me":             true,
	"www.t.me":         true,
	"telegram.me":      true,
	"www.telegram.me":  true,
	"telegram.dog":     true,
	"www.telegram.dog": true,
}

// ParseDescriptor classifies s. Accepted forms:
//
//	https://t.me/+HASH, t.me/joinchat/HASH, tg://join?invite=HASH
//	@name, https://t.me/name
//	-1001234567890, -123456789
func ParseDescriptor(s string) (Descriptor, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Descriptor{}, eris.Wrap(ErrUnrecognized, "empty descriptor")
	}

	if reNumeric.MatchString(raw) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Descriptor{}, eris.Wrapf(ErrUnrecognized, "numeric id %q out of range", raw)
		}
		return Descriptor{Kind: KindNumericID, Raw: raw, ID: id}, nil
	}

	if strings.HasPrefix(raw, "@") {
		name := raw[1:]
		if !reUsername.MatchString(name) {
			return Descriptor{}, eris.Wrapf(ErrUnrecognized, "invalid username %q", raw)
		}
		return Descriptor{Kind: KindUsername, Raw: raw, Username: name}, nil
	}

	low := strings.ToLower(raw)
	if strings.HasPrefix(low, "tg://") {
		return parseTgURL(raw)
	}
	if !strings.Contains(low, "://") {
		return parseLink(raw, "https://"+raw)
	}
	return parseLink(raw, raw)
}

func parseTgURL(raw string) (Descriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Descriptor{}, eris.Wrapf(ErrUnrecognized, "parse %q", raw)
	}
	switch strings.ToLower(u.Host) {
	case "join":
		hash := u.Query().Get("invite")
		if reHash.MatchString(hash) {
			return Descriptor{Kind: KindInviteHash, Raw: raw, Hash: hash}, nil
		}
	case "resolve":
		name := u.Query().Get("domain")
		if reUsername.MatchString(name) {
			return Descriptor{Kind: KindUsername, Raw: raw, Username: name}, nil
		}
	}
	return Descriptor{}, eris.Wrapf(ErrUnrecognized, "unsupported tg link %q", raw)
}

func parseLink(raw, link string) (Descriptor, error) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !linkHosts[strings.ToLower(u.Host)] {
		return Descriptor{}, eris.Wrapf(ErrUnrecognized, "%q", raw)
	}
	path := strings.Trim(u.Path, "/")

	if hash := u.Query().Get("invite"); hash != "" && reHash.MatchString(hash) {
		return Descriptor{Kind: KindInviteHash, Raw: raw, Hash: hash}, nil
	}
	if strings.HasPrefix(path, "+") {
		if hash := path[1:]; reHash.MatchString(hash) {
			return Descriptor{Kind: KindInviteHash, Raw: raw, Hash: hash}, nil
		}
	}
	if rest, ok := strings.CutPrefix(path, "joinchat/"); ok && reHash.MatchString(rest) {
		return Descriptor{Kind: KindInviteHash, Raw: raw, Hash: rest}, nil
	}
	if reUsername.MatchString(path) {
		return Descriptor{Kind: KindUsername, Raw: raw, Username: path}, nil
	}
	return Descriptor{}, eris.Wrapf(ErrUnrecognized, "%q", raw)
}
