package config

import (
	"encoding/hex"
	"time"
)

type SessionConfig interface {
	GetInactivityTimeout() time.Duration
	GetWarningLead() time.Duration
	GetCheckInterval() time.Duration
	GetRefreshLead() time.Duration
	GetRefreshTimeout() time.Duration
	GetRedisAddr() string
	GetSealKey() []byte
}

type SessionSettings struct {
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" validate:"gt=0"`
	WarningLead       time.Duration `mapstructure:"warning_lead" validate:"gte=0"`
	CheckInterval     time.Duration `mapstructure:"check_interval" validate:"gt=0"`
	RefreshLead       time.Duration `mapstructure:"refresh_lead" validate:"gte=0"`
	RefreshTimeout    time.Duration `mapstructure:"refresh_timeout" validate:"gt=0"`
	RedisAddr         string        `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	// SealKey is a hex encoded 32 byte key. Credentials are only persisted when it is set.
	SealKey string `mapstructure:"seal_key" validate:"omitempty,hexadecimal,len=64"`
}

func defaultSessionSettings() SessionSettings {
	return SessionSettings{
		InactivityTimeout: 30 * time.Minute, // Sessions expire after 30 minutes
		WarningLead:       2 * time.Minute,
		CheckInterval:     time.Minute,
		RefreshLead:       time.Minute,
		RefreshTimeout:    15 * time.Second,
	}
}

func (s *Settings) GetInactivityTimeout() time.Duration {
	return s.Session.InactivityTimeout
}

func (s *Settings) GetWarningLead() time.Duration {
	return s.Session.WarningLead
}

func (s *Settings) GetCheckInterval() time.Duration {
	return s.Session.CheckInterval
}

func (s *Settings) GetRefreshLead() time.Duration {
	return s.Session.RefreshLead
}

func (s *Settings) GetRefreshTimeout() time.Duration {
	return s.Session.RefreshTimeout
}

func (s *Settings) GetRedisAddr() string {
	return s.Session.RedisAddr
}

// GetSealKey returns the decoded seal key or nil when none is configured.
func (s *Settings) GetSealKey() []byte {
	if s.Session.SealKey == "" {
		return nil
	}
	key, err := hex.DecodeString(s.Session.SealKey)
	if err != nil {
		return nil
	}
	return key
}
