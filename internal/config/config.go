package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds the daemon's environment configuration. Site-specific
// settings (repository, document paths, schedule times) live in the YAML
// site file; see Site.
type Config struct {
	SiteConfigPath string `json:"site_config"`

	GitHubToken   string `json:"github_token"`
	WebhookSecret string `json:"webhook_secret"`

	NotifyWebhookURL    string `json:"notify_webhook_url,omitempty"`
	NotifyWebhookSecret string `json:"notify_webhook_secret,omitempty"`

	DatabaseURL string `json:"database_url,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty"`

	HTTPAddr string `json:"http_addr"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	StoreOpTimeout    time.Duration `json:"-"`
	StoreOpTimeoutStr string        `json:"store_op_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	TrackPollInterval    time.Duration `json:"-"`
	TrackPollIntervalStr string        `json:"track_poll_interval"`
	TrackMaxWait         time.Duration `json:"-"`
	TrackMaxWaitStr      string        `json:"track_max_wait"`

	// PollRulesInterval of 0 disables the fallback rules poller.
	PollRulesInterval    time.Duration `json:"-"`
	PollRulesIntervalStr string        `json:"poll_rules_interval"`

	TriggerBufferSize int `json:"trigger_buffer_size"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		SiteConfigPath:         os.Getenv("SITE_CONFIG"),
		GitHubToken:            os.Getenv("GITHUB_TOKEN"),
		WebhookSecret:          os.Getenv("WEBHOOK_SECRET"),
		NotifyWebhookURL:       os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookSecret:    os.Getenv("NOTIFY_WEBHOOK_SECRET"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		HTTPShutdownTimeoutStr: os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		StoreOpTimeoutStr:      os.Getenv("STORE_OP_TIMEOUT"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:            os.Getenv("METRICS_PATH"),
		TrackPollIntervalStr:   os.Getenv("TRACK_POLL_INTERVAL"),
		TrackMaxWaitStr:        os.Getenv("TRACK_MAX_WAIT"),
		PollRulesIntervalStr:   os.Getenv("POLL_RULES_INTERVAL"),
	}

	if bufStr := os.Getenv("TRIGGER_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.TriggerBufferSize = n
		} else {
			log.Printf("config: invalid TRIGGER_BUFFER_SIZE %q (must be a positive integer), using default 16", bufStr)
		}
	}
	if cfg.TriggerBufferSize == 0 {
		cfg.TriggerBufferSize = 16
	}

	if cfg.SiteConfigPath == "" {
		cfg.SiteConfigPath = "pagesched.yaml"
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.StoreOpTimeoutStr == "" {
		cfg.StoreOpTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.TrackPollIntervalStr == "" {
		cfg.TrackPollIntervalStr = "15s"
	}
	if cfg.TrackMaxWaitStr == "" {
		cfg.TrackMaxWaitStr = "5m"
	}
	if cfg.PollRulesIntervalStr == "" {
		cfg.PollRulesIntervalStr = "0s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.StoreOpTimeoutStr); err == nil {
		cfg.StoreOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.TrackPollIntervalStr); err == nil {
		cfg.TrackPollInterval = d
	}
	if d, err := time.ParseDuration(cfg.TrackMaxWaitStr); err == nil {
		cfg.TrackMaxWait = d
	}
	if d, err := time.ParseDuration(cfg.PollRulesIntervalStr); err == nil {
		cfg.PollRulesInterval = d
	}

	return cfg
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, os.ErrInvalid
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		SiteConfigPath      string `json:"site_config"`
		GitHubToken         string `json:"github_token"`
		WebhookSecret       string `json:"webhook_secret"`
		NotifyWebhookURL    string `json:"notify_webhook_url,omitempty"`
		NotifyWebhookSecret string `json:"notify_webhook_secret,omitempty"`
		DatabaseURL         string `json:"database_url,omitempty"`
		RedisAddr           string `json:"redis_addr,omitempty"`
		HTTPAddr            string `json:"http_addr"`
		HTTPShutdownTimeout string `json:"http_shutdown_timeout"`
		StoreOpTimeout      string `json:"store_op_timeout"`
		MetricsEnabled      bool   `json:"metrics_enabled"`
		MetricsPath         string `json:"metrics_path"`
		TrackPollInterval   string `json:"track_poll_interval"`
		TrackMaxWait        string `json:"track_max_wait"`
		PollRulesInterval   string `json:"poll_rules_interval"`
		TriggerBufferSize   int    `json:"trigger_buffer_size"`
	}{
		SiteConfigPath:      c.SiteConfigPath,
		GitHubToken:         maskSecret(c.GitHubToken),
		WebhookSecret:       maskSecret(c.WebhookSecret),
		NotifyWebhookURL:    c.NotifyWebhookURL,
		NotifyWebhookSecret: maskSecret(c.NotifyWebhookSecret),
		DatabaseURL:         maskSecret(c.DatabaseURL),
		RedisAddr:           c.RedisAddr,
		HTTPAddr:            c.HTTPAddr,
		HTTPShutdownTimeout: c.HTTPShutdownTimeoutStr,
		StoreOpTimeout:      c.StoreOpTimeoutStr,
		MetricsEnabled:      c.MetricsEnabled,
		MetricsPath:         c.MetricsPath,
		TrackPollInterval:   c.TrackPollIntervalStr,
		TrackMaxWait:        c.TrackMaxWaitStr,
		PollRulesInterval:   c.PollRulesIntervalStr,
		TriggerBufferSize:   c.TriggerBufferSize,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
