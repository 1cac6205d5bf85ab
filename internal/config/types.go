package config

// Config is the on-disk configuration. Every section is optional; Defaults
// fills what a file omits and the environment overlay (see env.go) wins over
// both.
//
// All durations are Go duration strings (e.g. "500ms", "2s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Group    GroupConfig    `json:"group"`
	Source   SourceConfig   `json:"source"`
	Limits   LimitsConfig   `json:"limits"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Notify   NotifyConfig   `json:"notify"`
	Schedule ScheduleConfig `json:"schedule"`
}

// TelegramConfig holds the user-account (MTProto) credentials.
// The session file must already be authorized; this program never logs in.
type TelegramConfig struct {
	APIID   int    `json:"api_id"`
	APIHash string `json:"api_hash"`
	Session string `json:"session"` // session file path
	// DialTimeout bounds the initial connection (default "30s").
	DialTimeout string `json:"dial_timeout,omitempty"`
}

type GroupConfig struct {
	// Target is an invite link, @username, t.me link or numeric id.
	Target     string `json:"target"`
	InviteLink string `json:"invite_link,omitempty"`
	// DMTemplate supports {first}, {group} and {link}.
	DMTemplate string `json:"dm_template,omitempty"`
}

type SourceConfig struct {
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"`
	Format      string `json:"format,omitempty"` // xlsx, csv, text; empty = by extension
	Sheet       string `json:"sheet,omitempty"`
	PhoneColumn string `json:"phone_column"`
	NameColumn  string `json:"name_column,omitempty"`
	Region      string `json:"region,omitempty"`
	HTTPTimeout string `json:"http_timeout,omitempty"`
}

// LimitsConfig controls pacing.
//
// Defaults: add_interval "2s", dm_interval "2s", batch_size 25,
// batch_pause "30s", flood_fallback "5m".
type LimitsConfig struct {
	AddInterval   string `json:"add_interval"`
	DMInterval    string `json:"dm_interval"`
	BatchSize     int    `json:"batch_size"`
	BatchPause    string `json:"batch_pause"`
	FloodFallback string `json:"flood_fallback,omitempty"`
}

// StorageConfig selects the ledger sink.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./tgadder.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to the notify chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// NotifyConfig configures the operator bot (Bot API token, not the user
// account) that receives run summaries.
type NotifyConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// ScheduleConfig turns the process into a daemon that runs repeatedly.
//
// Spec accepts a daily "HH:MM", a cron expression (seconds optional), a
// descriptor such as "@daily", or an interval such as "6h" or "every:6h".
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec"`
	Timezone string `json:"timezone,omitempty"`
	// RunOnStart triggers one run immediately when the daemon starts.
	RunOnStart bool `json:"run_on_start,omitempty"`
}

// Defaults returns the configuration used for anything a file leaves unset.
func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{Session: "telegram_adder_session", DialTimeout: "30s"},
		Source:   SourceConfig{PhoneColumn: "phone", HTTPTimeout: "60s"},
		Limits: LimitsConfig{
			AddInterval:   "2s",
			DMInterval:    "2s",
			BatchSize:     25,
			BatchPause:    "30s",
			FloodFallback: "5m",
		},
		Storage: StorageConfig{Driver: "csv", Path: "add_members_log.csv"},
		Logging: LoggingConfig{
			Level:    "info",
			Console:  true,
			Telegram: LoggingTelegram{MinLevel: "warn", RatePerSec: 1},
		},
		Schedule: ScheduleConfig{Spec: "03:00"},
	}
}
