package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		GitHubToken:            "ghp_example",
		HTTPShutdownTimeoutStr: "10s",
		StoreOpTimeoutStr:      "30s",
		TrackPollIntervalStr:   "15s",
		TrackPollInterval:      15 * time.Second,
		TrackMaxWaitStr:        "5m",
		TrackMaxWait:           5 * time.Minute,
		PollRulesIntervalStr:   "0s",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing token",
			mutate:    func(c *Config) { c.GitHubToken = "" },
			wantField: "GITHUB_TOKEN",
		},
		{
			name: "notify url without secret",
			mutate: func(c *Config) {
				c.NotifyWebhookURL = "https://example.test/hook"
			},
			wantField: "NOTIFY_WEBHOOK_SECRET",
		},
		{
			name:      "bad duration",
			mutate:    func(c *Config) { c.TrackPollIntervalStr = "fast" },
			wantField: "TRACK_POLL_INTERVAL",
		},
		{
			name:      "negative poll interval",
			mutate:    func(c *Config) { c.PollRulesIntervalStr = "-1m" },
			wantField: "POLL_RULES_INTERVAL",
		},
		{
			name: "max wait below poll interval",
			mutate: func(c *Config) {
				c.TrackMaxWaitStr = "5s"
				c.TrackMaxWait = 5 * time.Second
			},
			wantField: "TRACK_MAX_WAIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate returned %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not mention %s", err, tt.wantField)
			}
		})
	}
}

func TestValidationErrors_MultipleJoined(t *testing.T) {
	cfg := validConfig()
	cfg.GitHubToken = ""
	cfg.TrackPollIntervalStr = "fast"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate returned nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("error = %q, want joined message", msg)
	}
}
