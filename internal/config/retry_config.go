package config

import "time"

type RetryConfig interface {
	GetMaxRetries() int
	GetRetryBaseDelay() time.Duration
	GetRetryMaxDelay() time.Duration
	GetRetryableStatuses() []int
}

type RetrySettings struct {
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay         time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay          time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	RetryableStatuses []int         `mapstructure:"retryable_statuses" validate:"dive,gte=400,lte=599"`
}

func defaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

func (s *Settings) GetMaxRetries() int {
	return s.Retry.MaxRetries
}

func (s *Settings) GetRetryBaseDelay() time.Duration {
	return s.Retry.BaseDelay
}

func (s *Settings) GetRetryMaxDelay() time.Duration {
	return s.Retry.MaxDelay
}

func (s *Settings) GetRetryableStatuses() []int {
	return s.Retry.RetryableStatuses
}
