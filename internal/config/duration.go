package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		// Bare numbers are seconds, the way the environment variables were
		// always written ("SLEEP_BETWEEN_ADDS=2.5").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, eris.Wrapf(err, "%s: invalid duration %q", path, raw)
		}
		d = time.Duration(f * float64(time.Second))
	}
	if d < 0 {
		return 0, eris.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
