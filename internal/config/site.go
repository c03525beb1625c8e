package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Site describes the managed site: where its documents live and when the
// daily jobs fire. Loaded from the YAML file named by SITE_CONFIG.
type Site struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`

	RulesPath  string `yaml:"rules_path"`
	EventsPath string `yaml:"events_path"`

	// Timezone is the reference timezone for rule times, schedule times and
	// date comparisons.
	Timezone string `yaml:"timezone"`

	CleanupTime   string `yaml:"cleanup_time"`
	RepeatingTime string `yaml:"repeating_time"`

	AdvanceWindowDays int `yaml:"advance_window_days"`
	RetentionDays     int `yaml:"retention_days"`
}

// LoadSite reads and normalizes the site file at path.
func LoadSite(path string) (Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Site{}, fmt.Errorf("read site config: %w", err)
	}

	var site Site
	if err := yaml.Unmarshal(data, &site); err != nil {
		return Site{}, fmt.Errorf("parse site config %s: %w", path, err)
	}

	site.Normalize()
	if err := site.Validate(); err != nil {
		return Site{}, fmt.Errorf("site config %s: %w", path, err)
	}
	return site, nil
}

// Normalize fills in defaults for optional fields.
func (s *Site) Normalize() {
	if s.Branch == "" {
		s.Branch = "main"
	}
	if s.RulesPath == "" {
		s.RulesPath = "data/rules.json"
	}
	if s.EventsPath == "" {
		s.EventsPath = "data/events.json"
	}
	if s.Timezone == "" {
		s.Timezone = "Europe/London"
	}
	if s.CleanupTime == "" {
		s.CleanupTime = "03:00"
	}
	if s.RepeatingTime == "" {
		s.RepeatingTime = "03:10"
	}
	if s.AdvanceWindowDays == 0 {
		s.AdvanceWindowDays = 14
	}
	if s.RetentionDays == 0 {
		s.RetentionDays = 2
	}
}

// Validate checks the normalized site for errors.
func (s Site) Validate() error {
	var errs ValidationErrors

	if s.Owner == "" {
		errs = append(errs, ValidationError{Field: "owner", Message: "required"})
	}
	if s.Repo == "" {
		errs = append(errs, ValidationError{Field: "repo", Message: "required"})
	}
	if s.AdvanceWindowDays < 1 {
		errs = append(errs, ValidationError{Field: "advance_window_days", Message: "must be at least 1"})
	}
	if s.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "retention_days", Message: "must not be negative"})
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "timezone",
			Message: fmt.Sprintf("unknown timezone %q", s.Timezone),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Location resolves the site's timezone. Validate must have passed.
func (s Site) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}
