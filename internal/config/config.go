package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Config interface {
	APIConfig
	RetryConfig
	CacheConfig
	SessionConfig
	GetLogLevel() string
}

// Settings is the concrete configuration loaded from defaults, an optional
// YAML file and API_CLIENT_* environment variables.
type Settings struct {
	API      APISettings     `mapstructure:"api"`
	Retry    RetrySettings   `mapstructure:"retry"`
	Cache    CacheSettings   `mapstructure:"cache"`
	Session  SessionSettings `mapstructure:"session"`
	LogLevel string          `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

var _ Config = (*Settings)(nil)

// New returns the default configuration.
func New() *Settings {
	return &Settings{
		API:      defaultAPISettings(),
		Retry:    defaultRetrySettings(),
		Cache:    defaultCacheSettings(),
		Session:  defaultSessionSettings(),
		LogLevel: "info",
	}
}

func (s *Settings) GetLogLevel() string {
	return s.LogLevel
}

// Validate checks field constraints and the relationships between fields.
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if s.Retry.MaxDelay > 0 && s.Retry.BaseDelay > s.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay (%s) exceeds retry.max_delay (%s)", s.Retry.BaseDelay, s.Retry.MaxDelay)
	}
	if s.Session.WarningLead >= s.Session.InactivityTimeout {
		return fmt.Errorf("session.warning_lead (%s) must be shorter than session.inactivity_timeout (%s)",
			s.Session.WarningLead, s.Session.InactivityTimeout)
	}
	return nil
}
