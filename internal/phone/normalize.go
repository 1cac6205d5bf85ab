// Package phone turns raw spreadsheet cells into canonical identity keys and
// collapses duplicates within a run.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"
)

var (
	ErrEmpty       = eris.New("empty phone")
	ErrUnparseable = eris.New("unparseable phone")
	ErrInvalid     = eris.New("invalid phone for region")
)

// Identity is a canonical phone key plus whatever display data the source
// could provide. Key is E.164 ("+15551234567").
type Identity struct {
	Key       string
	FirstName string
	Raw       string
}

// Normalizer canonicalizes raw phone strings. It is pure: no I/O, no state.
type Normalizer struct {
	region string
}

// NewNormalizer returns a normalizer that parses national-format numbers in
// region (ISO 3166 alpha-2, any case). An empty region means only
// fully-qualified numbers are accepted.
func NewNormalizer(region string) Normalizer {
	return Normalizer{region: strings.ToUpper(strings.TrimSpace(region))}
}

func (n Normalizer) Region() string { return n.region }

// spreadsheet exports sometimes render numeric cells as "15551234567.0"
var floatSuffix = regexp.MustCompile(`\.0+$`)

// Normalize returns the E.164 form of raw, or one of ErrEmpty, ErrUnparseable,
// ErrInvalid. A leading "00" international prefix is treated as "+".
func (n Normalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}
	s = floatSuffix.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}

	region := n.region
	if strings.HasPrefix(s, "+") {
		region = ""
	}
	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", ErrUnparseable
	}
	if !phonenumbers.IsPossibleNumber(num) || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalid
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Identity normalizes raw and attaches firstName.
func (n Normalizer) Identity(raw, firstName string) (Identity, error) {
	key, err := n.Normalize(raw)
	if err != nil {
		return Identity{Raw: raw}, err
	}
	return Identity{Key: key, FirstName: strings.TrimSpace(firstName), Raw: raw}, nil
}
