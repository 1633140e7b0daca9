package refresh

import (
	"context"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Issuer exchanges a refresh token for a new credential pair. Implementations
// must not retry: a refresh token may be single use.
type Issuer interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// IssuerFunc adapts a function to Issuer.
type IssuerFunc func(ctx context.Context, refreshToken string) (*TokenResponse, error)

func (f IssuerFunc) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return f(ctx, refreshToken)
}
