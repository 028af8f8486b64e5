package config

// Config is the whole application configuration. JSON and YAML files are
// both accepted (YAML is coerced to JSON before strict decoding).
type Config struct {
	Server  ServerConfig  `json:"server"`
	Insta   InstaConfig   `json:"insta"`
	Logging LoggingConfig `json:"logging"`
	Fetch   FetchConfig   `json:"fetch,omitempty"`

	// Storage enables the optional SQLite layer (run audit + durable
	// session cache). Omit the section to run purely in memory.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Notify enables the optional Telegram run-summary notifier.
	Notify *NotifyConfig `json:"notify,omitempty"`

	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr,omitempty"` // default ":8000"

	// LogPollInterval is how often the /logs stream drains the buffer.
	// Go duration string; default "750ms".
	LogPollInterval string `json:"log_poll_interval,omitempty"`
}

type InstaConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// Timeout is a Go duration string for a single API call. Default "30s".
	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Stream  LoggingStream `json:"stream"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingStream controls the sink feeding the /logs buffer.
//
// Enabled is a pointer so "omitted" defaults to true: the stream is the only
// progress channel a dispatch caller has, so turning it off must be explicit.
type LoggingStream struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	MinLevel string `json:"min_level,omitempty"`
}

func (s LoggingStream) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type FetchConfig struct {
	// PagesPerSec throttles connection-list page requests. Default 2.
	PagesPerSec float64 `json:"pages_per_sec,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
}

// MaintenanceConfig drives the in-process cron jobs. Schedules are standard
// 5-field cron expressions.
type MaintenanceConfig struct {
	// PruneSchedule removes run audit rows older than KeepRuns.
	// Default "0 4 * * *"; KeepRuns default "720h".
	PruneSchedule string `json:"prune_schedule,omitempty"`
	KeepRuns      string `json:"keep_runs,omitempty"`

	// SessionSnapshotSchedule re-persists the session blob so rotated
	// cookies survive a restart. Default "*/30 * * * *".
	SessionSnapshotSchedule string `json:"session_snapshot_schedule,omitempty"`
}
