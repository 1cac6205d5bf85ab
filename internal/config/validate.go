package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Validate checks a fully merged config (file, env and flags) before a run.
// Only the fields a run cannot do without are mandatory.
func Validate(cfg *Config) error {
	if cfg == nil {
		return eris.New("config is nil")
	}
	var problems []string
	add := func(s string) { problems = append(problems, s) }

	if cfg.Telegram.APIID == 0 || strings.TrimSpace(cfg.Telegram.APIHash) == "" {
		add("telegram.api_id and telegram.api_hash are required (API_ID, API_HASH)")
	}
	if strings.TrimSpace(cfg.Telegram.Session) == "" {
		add("telegram.session is required")
	}
	if strings.TrimSpace(cfg.Group.Target) == "" {
		add("group.target is required (TELEGRAM_GROUP or --group)")
	}
	if strings.TrimSpace(cfg.Source.Path) == "" && strings.TrimSpace(cfg.Source.URL) == "" {
		add("source.path or source.url is required (EXCEL_PATH/EXCEL_URL)")
	}
	if strings.TrimSpace(cfg.Source.PhoneColumn) == "" && cfg.Source.Format != "text" {
		add("source.phone_column is required")
	}
	if r := strings.TrimSpace(cfg.Source.Region); r != "" && len(r) != 2 {
		add("source.region must be a two-letter region code")
	}
	if cfg.Limits.BatchSize < 0 {
		add("limits.batch_size must be >= 0")
	}

	for path, raw := range map[string]string{
		"telegram.dial_timeout": cfg.Telegram.DialTimeout,
		"source.http_timeout":   cfg.Source.HTTPTimeout,
		"limits.add_interval":   cfg.Limits.AddInterval,
		"limits.dm_interval":    cfg.Limits.DMInterval,
		"limits.batch_pause":    cfg.Limits.BatchPause,
		"limits.flood_fallback": cfg.Limits.FloodFallback,
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			add(err.Error())
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "csv", "jsonl", "file", "sqlite", "sqlite3", "memory":
	default:
		add("storage.driver must be csv, jsonl, sqlite or memory")
	}

	if cfg.Notify.Enabled && (strings.TrimSpace(cfg.Notify.BotToken) == "" || cfg.Notify.ChatID == 0) {
		add("notify.bot_token and notify.chat_id are required when notify is enabled")
	}
	if cfg.Schedule.Enabled {
		if strings.TrimSpace(cfg.Schedule.Spec) == "" {
			add("schedule.spec is required when schedule is enabled")
		}
		if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				add("schedule.timezone: " + err.Error())
			}
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
