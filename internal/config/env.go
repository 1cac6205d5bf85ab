package config

import (
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// envOverlay lists the environment variables that override file values.
// A nil pointer means the variable is unset.
type envOverlay struct {
	APIID       *int    `env:"API_ID"`
	APIHash     *string `env:"API_HASH"`
	SessionName *string `env:"SESSION_NAME"`

	Group      *string `env:"TELEGRAM_GROUP"`
	InviteLink *string `env:"INVITE_LINK"`
	DMTemplate *string `env:"DM_TEMPLATE"`

	ExcelURL    *string `env:"EXCEL_URL"`
	ExcelPath   *string `env:"EXCEL_PATH"`
	PhoneColumn *string `env:"PHONE_COLUMN"`
	NameColumn  *string `env:"NAME_COLUMN"`
	Region      *string `env:"DEFAULT_REGION"`

	// Seconds, fractional allowed.
	SleepBetweenAdds *float64 `env:"SLEEP_BETWEEN_ADDS"`
	SleepBetweenDMs  *float64 `env:"SLEEP_BETWEEN_DMS"`
	BatchEvery       *int     `env:"BATCH_EVERY"`
	BatchSleep       *float64 `env:"BATCH_SLEEP"`

	BotToken     *string `env:"BOT_TOKEN"`
	ReportChatID *int64  `env:"REPORT_CHAT_ID"`

	LogLevel *string `env:"LOG_LEVEL"`
}

// ApplyEnv overlays process environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{})
}

// ApplyEnvMap is ApplyEnv with an explicit environment, for tests and for
// callers that read a dotenv file themselves.
func ApplyEnvMap(cfg *Config, environ map[string]string) error {
	return applyEnv(cfg, env.Options{Environment: environ})
}

func applyEnv(cfg *Config, opts env.Options) error {
	var ov envOverlay
	if err := env.ParseWithOptions(&ov, opts); err != nil {
		return eris.Wrap(err, "parse environment")
	}

	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setSecs := func(dst *string, v *float64) {
		if v != nil {
			*dst = strconv.FormatFloat(*v, 'f', -1, 64) + "s"
		}
	}

	if ov.APIID != nil {
		cfg.Telegram.APIID = *ov.APIID
	}
	setStr(&cfg.Telegram.APIHash, ov.APIHash)
	setStr(&cfg.Telegram.Session, ov.SessionName)

	setStr(&cfg.Group.Target, ov.Group)
	setStr(&cfg.Group.InviteLink, ov.InviteLink)
	if ov.DMTemplate != nil {
		cfg.Group.DMTemplate = *ov.DMTemplate
	}

	setStr(&cfg.Source.URL, ov.ExcelURL)
	setStr(&cfg.Source.Path, ov.ExcelPath)
	setStr(&cfg.Source.PhoneColumn, ov.PhoneColumn)
	setStr(&cfg.Source.NameColumn, ov.NameColumn)
	setStr(&cfg.Source.Region, ov.Region)

	setSecs(&cfg.Limits.AddInterval, ov.SleepBetweenAdds)
	setSecs(&cfg.Limits.DMInterval, ov.SleepBetweenDMs)
	if ov.BatchEvery != nil {
		cfg.Limits.BatchSize = *ov.BatchEvery
	}
	setSecs(&cfg.Limits.BatchPause, ov.BatchSleep)

	setStr(&cfg.Notify.BotToken, ov.BotToken)
	if ov.ReportChatID != nil {
		cfg.Notify.ChatID = *ov.ReportChatID
	}
	if cfg.Notify.BotToken != "" && cfg.Notify.ChatID != 0 && (ov.BotToken != nil || ov.ReportChatID != nil) {
		cfg.Notify.Enabled = true
	}

	setStr(&cfg.Logging.Level, ov.LogLevel)
	return nil
}
