package config

import (
	"strings"

	logx "tgadder/pkg/logx"
)

// SummarizeChange lists the config sections that differ and returns safe
// structured attrs for logging. Secrets are reported as set/unset only.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if oldCfg.Telegram.APIID != newCfg.Telegram.APIID ||
		oldCfg.Telegram.APIHash != newCfg.Telegram.APIHash ||
		oldCfg.Telegram.Session != newCfg.Telegram.Session ||
		oldCfg.Telegram.DialTimeout != newCfg.Telegram.DialTimeout {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.api_hash_set", set(newCfg.Telegram.APIHash)),
			logx.String("telegram.session", newCfg.Telegram.Session),
		)
	}
	if oldCfg.Group != newCfg.Group {
		changed = append(changed, "group")
		attrs = append(attrs,
			logx.String("group.target", newCfg.Group.Target),
			logx.Bool("group.invite_link_set", set(newCfg.Group.InviteLink)),
			logx.Bool("group.dm_template_set", set(newCfg.Group.DMTemplate)),
		)
	}
	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.path", newCfg.Source.Path),
			logx.Bool("source.url_set", set(newCfg.Source.URL)),
			logx.String("source.phone_column", newCfg.Source.PhoneColumn),
			logx.String("source.region", newCfg.Source.Region),
		)
	}
	if oldCfg.Limits != newCfg.Limits {
		changed = append(changed, "limits")
		attrs = append(attrs,
			logx.String("limits.add_interval", newCfg.Limits.AddInterval),
			logx.String("limits.dm_interval", newCfg.Limits.DMInterval),
			logx.Int("limits.batch_size", newCfg.Limits.BatchSize),
			logx.String("limits.batch_pause", newCfg.Limits.BatchPause),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver), logx.String("storage.path", newCfg.Storage.Path))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Notify.Enabled != newCfg.Notify.Enabled ||
		oldCfg.Notify.ChatID != newCfg.Notify.ChatID ||
		oldCfg.Notify.ThreadID != newCfg.Notify.ThreadID ||
		oldCfg.Notify.BotToken != newCfg.Notify.BotToken {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.enabled", newCfg.Notify.Enabled),
			logx.Bool("notify.bot_token_set", set(newCfg.Notify.BotToken)),
			logx.Int64("notify.chat_id", newCfg.Notify.ChatID),
		)
	}
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.spec", newCfg.Schedule.Spec),
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
		)
	}
	return changed, attrs
}
