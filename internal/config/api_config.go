package config

import "time"

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetTokenURL() string
	GetClientID() string
	GetClientSecret() string
	GetOIDCIssuer() string
	GetAuthExemptPaths() []string
	GetRefreshExemptPaths() []string
	GetRateLimit() (perSecond float64, burst int)
}

type APISettings struct {
	BaseURL            string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	TokenURL           string        `mapstructure:"token_url" validate:"omitempty,url"`
	ClientID           string        `mapstructure:"client_id"`
	ClientSecret       string        `mapstructure:"client_secret"`
	OIDCIssuer         string        `mapstructure:"oidc_issuer" validate:"omitempty,url"`
	AuthExemptPaths    []string      `mapstructure:"auth_exempt_paths"`
	RefreshExemptPaths []string      `mapstructure:"refresh_exempt_paths"`
	RateLimit          float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst          int           `mapstructure:"rate_burst" validate:"gte=0"`
}

func defaultAPISettings() APISettings {
	return APISettings{
		BaseURL:            "http://localhost:8080",
		RequestTimeout:     30 * time.Second,
		AuthExemptPaths:    []string{"/auth/login", "/auth/register", "/health"},
		RefreshExemptPaths: []string{"/auth/refresh", "/auth/logout"},
	}
}

func (s *Settings) GetBaseURL() string {
	return s.API.BaseURL
}

func (s *Settings) GetRequestTimeout() time.Duration {
	return s.API.RequestTimeout
}

// GetTokenURL returns the token endpoint used for refresh grants. It falls
// back to <base_url>/auth/refresh.
func (s *Settings) GetTokenURL() string {
	if s.API.TokenURL != "" {
		return s.API.TokenURL
	}
	return s.API.BaseURL + "/auth/refresh"
}

func (s *Settings) GetClientID() string {
	return s.API.ClientID
}

func (s *Settings) GetClientSecret() string {
	return s.API.ClientSecret
}

// GetOIDCIssuer is the issuer whose ID tokens name the session subject.
func (s *Settings) GetOIDCIssuer() string {
	return s.API.OIDCIssuer
}

func (s *Settings) GetAuthExemptPaths() []string {
	return s.API.AuthExemptPaths
}

func (s *Settings) GetRefreshExemptPaths() []string {
	return s.API.RefreshExemptPaths
}

func (s *Settings) GetRateLimit() (float64, int) {
	burst := s.API.RateBurst
	if s.API.RateLimit > 0 && burst == 0 {
		burst = 1
	}
	return s.API.RateLimit, burst
}
