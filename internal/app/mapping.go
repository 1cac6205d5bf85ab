package app

import (
	"strings"
	"time"

	"tgadder/internal/config"
	"tgadder/internal/notify"
	"tgadder/internal/onboard"
	"tgadder/internal/platform/mtproto"
	"tgadder/internal/ratelimit"
	"tgadder/internal/schedule"
	"tgadder/internal/source"
	"tgadder/internal/storage"
	logx "tgadder/pkg/logx"
)

func mapLimits(cfg *config.Config) (ratelimit.Config, error) {
	l := cfg.Limits
	add, err := config.ParseDurationField("limits.add_interval", l.AddInterval)
	if err != nil {
		return ratelimit.Config{}, err
	}
	dm, err := config.ParseDurationField("limits.dm_interval", l.DMInterval)
	if err != nil {
		return ratelimit.Config{}, err
	}
	pause, err := config.ParseDurationField("limits.batch_pause", l.BatchPause)
	if err != nil {
		return ratelimit.Config{}, err
	}
	flood, err := config.ParseDurationOrDefault("limits.flood_fallback", l.FloodFallback, 5*time.Minute)
	if err != nil {
		return ratelimit.Config{}, err
	}
	return ratelimit.Config{
		AddInterval:   add,
		DMInterval:    dm,
		BatchSize:     l.BatchSize,
		BatchPause:    pause,
		FloodFallback: flood,
	}, nil
}

func mapSource(cfg *config.Config) (source.Options, error) {
	s := cfg.Source
	timeout, err := config.ParseDurationOrDefault("source.http_timeout", s.HTTPTimeout, 60*time.Second)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{
		Path:        strings.TrimSpace(s.Path),
		URL:         strings.TrimSpace(s.URL),
		Format:      source.Format(strings.ToLower(strings.TrimSpace(s.Format))),
		Sheet:       s.Sheet,
		PhoneColumn: s.PhoneColumn,
		NameColumn:  s.NameColumn,
		HTTPTimeout: timeout,
	}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapTelegram(cfg *config.Config) (mtproto.Config, error) {
	dial, err := config.ParseDurationOrDefault("telegram.dial_timeout", cfg.Telegram.DialTimeout, 30*time.Second)
	if err != nil {
		return mtproto.Config{}, err
	}
	return mtproto.Config{
		AppID:       cfg.Telegram.APIID,
		AppHash:     cfg.Telegram.APIHash,
		Session:     cfg.Telegram.Session,
		DialTimeout: dial,
	}, nil
}

func mapRun(cfg *config.Config) onboard.RunConfig {
	return onboard.RunConfig{
		Group:      cfg.Group.Target,
		InviteLink: cfg.Group.InviteLink,
		Region:     cfg.Source.Region,
		Template:   onboard.Template(cfg.Group.DMTemplate),
	}
}

func mapNotify(cfg *config.Config) (notify.Config, bool) {
	n := cfg.Notify
	if !n.Enabled {
		return notify.Config{}, false
	}
	return notify.Config{Token: n.BotToken, ChatID: n.ChatID, ThreadID: n.ThreadID}, true
}

func mapLogging(cfg *config.Config, hasSender bool) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Operator: logx.OperatorConfig{
			Enabled:    l.Telegram.Enabled && hasSender,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapSchedule(cfg *config.Config) schedule.Config {
	return schedule.Config{
		Spec:       cfg.Schedule.Spec,
		Timezone:   cfg.Schedule.Timezone,
		RunOnStart: cfg.Schedule.RunOnStart,
	}
}
