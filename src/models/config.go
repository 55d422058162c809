package models

// MConfig Structure
type MConfig struct {
	Name      string            `yaml:"name"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	LogLevel  string            `yaml:"log_level"`
	Storage   MStorageConfig    `yaml:"storage"`
	Network   MNetworkConfig    `yaml:"network"`
	Policy    MPolicyConfig     `yaml:"policy"`
	Pricing   MPricingConfig    `yaml:"pricing"`
	Archive   MArchiveConfig    `yaml:"archive"`
	Providers []MProviderConfig `yaml:"providers"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	RequestTimeout     int    `yaml:"timeout"`
	MaxRetries         int    `yaml:"retries"`
	ConcurrentRequests int    `yaml:"concurrent_requests"`
	UserAgent          string `yaml:"user_agent"`
}

// MPolicyConfig holds the significance thresholds gating fan-out.
// An update qualifies when either threshold is crossed.
type MPolicyConfig struct {
	AbsoluteThreshold float64 `yaml:"absolute_threshold"`
	PercentThreshold  float64 `yaml:"percent_threshold"`
}

type MPricingConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type MArchiveConfig struct {
	GridMinutes          int `yaml:"grid_minutes"`
	CleanupHour          int `yaml:"cleanup_hour"`
	HistoryRetentionDays int `yaml:"history_retention_days"`
	LogRetentionDays     int `yaml:"log_retention_days"`
}

// MProviderConfig describes one upstream quote source.
// Kind is one of "push-socket", "poll-json", "poll-xml".
type MProviderConfig struct {
	Name                  string   `yaml:"name"`
	Kind                  string   `yaml:"kind"`
	Address               string   `yaml:"address"` // push-socket host:port
	URLs                  []string `yaml:"urls"`    // poll endpoints
	IntervalSeconds       int      `yaml:"interval_seconds"`
	WatchdogSeconds       int      `yaml:"watchdog_seconds"`
	ReconnectDelaySeconds int      `yaml:"reconnect_delay_seconds"`
	DisruptionSeconds     int      `yaml:"disruption_seconds"`
	DecimalComma          bool     `yaml:"decimal_comma"` // provider locale uses "," separator
	MarketHours           bool     `yaml:"market_hours"`  // skip poll cycles while market closed
	MarketCode            string   `yaml:"market_code"`   // ISO 10383 MIC for the session gate
	Priority              int      `yaml:"priority"`
	Active                bool     `yaml:"active"`
}
