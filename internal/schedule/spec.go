package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// SpecKind describes the normalized kind of a schedule string.
type SpecKind int

const (
	SpecDaily SpecKind = iota
	SpecCron
	SpecInterval
)

// ParsedSpec is a schedule string reduced to a cron expression the runner
// understands, plus how it was written.
//
// Supported forms:
//   - Daily time of day: "03:00", "21:15" (local time, or the configured zone)
//   - Cron: "30 3 * * *", "0 */6 * * *", "@daily", "@every 12h"
//   - Interval: "12h", "every:90m", "interval:6h"
//
// Optional prefix "cron:" forces cron parsing.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration // SpecInterval only
	At    string        // SpecDaily only, "HH:MM"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseSpec parses a schedule string.
func ParseSpec(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, eris.New("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, eris.New("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr}, nil
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	// whitespace or a leading '@' => cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	if m := reHHMM.FindStringSubmatch(s); m != nil {
		return parseDaily(m[1], m[2])
	}
	if _, err := time.ParseDuration(s); err == nil {
		return parseInterval(s)
	}
	return ParsedSpec{}, eris.Errorf(
		"invalid schedule %q (use HH:MM like '03:00', cron like '30 3 * * *', or a duration like '12h')", raw)
}

func parseDaily(hh, mm string) (ParsedSpec, error) {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	if h > 23 || m > 59 {
		return ParsedSpec{}, eris.Errorf("invalid time of day %s:%s", hh, mm)
	}
	return ParsedSpec{
		Kind: SpecDaily,
		Cron: strconv.Itoa(m) + " " + strconv.Itoa(h) + " * * *",
		At:   hh + ":" + mm,
	}, nil
}

func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, eris.New("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return ParsedSpec{}, eris.Errorf("invalid interval %q (use a Go duration like '90m' or '12h')", v)
	}
	if d < time.Minute {
		return ParsedSpec{}, eris.New("interval must be at least 1m")
	}
	return ParsedSpec{Kind: SpecInterval, Cron: "@every " + d.String(), Every: d}, nil
}
