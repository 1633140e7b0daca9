package refresh

import (
	"time"

	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/internal/utils"
)

// TokenResponse is the token endpoint's answer to a refresh (RFC 6749 §5.1).
// A nil RefreshToken means the endpoint did not rotate it and the caller keeps
// the one it sent.
type TokenResponse struct {
	AccessToken  *string `json:"access_token,omitempty"`
	IdToken      *string `json:"id_token,omitempty"`
	TokenType    string  `json:"token_type,omitempty"`
	ExpiresIn    int     `json:"expires_in,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`

	// RefreshExpiresIn is the refresh token lifetime in seconds, when the
	// endpoint discloses it. Opaque refresh tokens carry no exp claim.
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// Validate rejects responses that cannot replace a credential pair.
func (r *TokenResponse) Validate() error {
	if r == nil || utils.Value(r.AccessToken) == "" {
		return errors.Wrapf(errors.ErrInvalidToken, "token response has no access_token")
	}
	return nil
}

// RefreshExpiry converts RefreshExpiresIn to an absolute time, or the zero
// time when it is unknown.
func (r *TokenResponse) RefreshExpiry(now time.Time) time.Time {
	if r.RefreshExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(r.RefreshExpiresIn) * time.Second)
}
