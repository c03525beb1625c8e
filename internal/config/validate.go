package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.GitHubToken == "" {
		errs = append(errs, ValidationError{
			Field:   "GITHUB_TOKEN",
			Message: "required",
		})
	}

	if cfg.NotifyWebhookURL != "" && cfg.NotifyWebhookSecret == "" {
		errs = append(errs, ValidationError{
			Field:   "NOTIFY_WEBHOOK_SECRET",
			Message: "required when NOTIFY_WEBHOOK_URL is set",
		})
	}

	errs = append(errs, validateDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr, true)...)
	errs = append(errs, validateDuration("STORE_OP_TIMEOUT", cfg.StoreOpTimeoutStr, true)...)
	errs = append(errs, validateDuration("TRACK_POLL_INTERVAL", cfg.TrackPollIntervalStr, true)...)
	errs = append(errs, validateDuration("TRACK_MAX_WAIT", cfg.TrackMaxWaitStr, true)...)
	errs = append(errs, validateDuration("POLL_RULES_INTERVAL", cfg.PollRulesIntervalStr, false)...)

	if cfg.TrackPollInterval > 0 && cfg.TrackMaxWait > 0 && cfg.TrackMaxWait < cfg.TrackPollInterval {
		errs = append(errs, ValidationError{
			Field:   "TRACK_MAX_WAIT",
			Message: "must be at least TRACK_POLL_INTERVAL",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDuration(field, value string, mustBePositive bool) ValidationErrors {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationErrors{{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		}}
	}
	if mustBePositive && d <= 0 {
		return ValidationErrors{{Field: field, Message: "must be positive"}}
	}
	if !mustBePositive && d < 0 {
		return ValidationErrors{{Field: field, Message: "must not be negative"}}
	}
	return nil
}
