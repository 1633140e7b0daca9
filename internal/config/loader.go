package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "API_CLIENT"

// Load reads configuration from the optional YAML file at path, applies
// API_CLIENT_* environment overrides (API_CLIENT_RETRY_MAX_RETRIES overrides
// retry.max_retries) on top of the defaults and validates the result.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v, New())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.request_timeout", d.API.RequestTimeout)
	v.SetDefault("api.token_url", d.API.TokenURL)
	v.SetDefault("api.client_id", d.API.ClientID)
	v.SetDefault("api.client_secret", d.API.ClientSecret)
	v.SetDefault("api.oidc_issuer", d.API.OIDCIssuer)
	v.SetDefault("api.auth_exempt_paths", d.API.AuthExemptPaths)
	v.SetDefault("api.refresh_exempt_paths", d.API.RefreshExemptPaths)
	v.SetDefault("api.rate_limit", d.API.RateLimit)
	v.SetDefault("api.rate_burst", d.API.RateBurst)

	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	v.SetDefault("retry.retryable_statuses", d.Retry.RetryableStatuses)

	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.max_memory_bytes", d.Cache.MaxMemoryBytes)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)

	v.SetDefault("session.inactivity_timeout", d.Session.InactivityTimeout)
	v.SetDefault("session.warning_lead", d.Session.WarningLead)
	v.SetDefault("session.check_interval", d.Session.CheckInterval)
	v.SetDefault("session.refresh_lead", d.Session.RefreshLead)
	v.SetDefault("session.refresh_timeout", d.Session.RefreshTimeout)
	v.SetDefault("session.redis_addr", d.Session.RedisAddr)
	v.SetDefault("session.seal_key", d.Session.SealKey)
}
