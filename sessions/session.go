package sessions

import (
	"slices"
	"time"
)

// Subject identifies the user a session belongs to.
type Subject struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

func (s Subject) IsZero() bool {
	return s.ID == "" && s.Email == "" && s.Name == "" && len(s.Roles) == 0
}

// Record is the authenticated session. Records are values: every change
// produces a complete replacement so a reader never sees an access token
// paired with the wrong refresh token.
type Record struct {
	ID               string    // Session identifier (UUID)
	AccessToken      string    // Short-lived signed credential
	RefreshToken     string    // Long-lived credential exchanged for a new pair
	IDToken          string    // OIDC ID token, when the login returned one
	RefreshExpiresAt time.Time // Zero when the issuer did not disclose it
	Subject          Subject
	CreatedAt        time.Time
	LastActivity     time.Time
	SessionExpiry    time.Time // LastActivity plus the inactivity timeout
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	r.Subject.Roles = slices.Clone(r.Subject.Roles)
	return r
}

// Touch records activity at now and pushes the inactivity deadline out.
func (r Record) Touch(now time.Time, inactivity time.Duration) Record {
	r = r.Clone()
	r.LastActivity = now
	r.SessionExpiry = now.Add(inactivity)
	return r
}

// WithCredentials swaps the credential pair. An empty refreshToken keeps the
// current one, for issuers that do not rotate.
func (r Record) WithCredentials(accessToken, refreshToken, idToken string, refreshExpiresAt time.Time) Record {
	r = r.Clone()
	r.AccessToken = accessToken
	if refreshToken != "" {
		r.RefreshToken = refreshToken
		r.RefreshExpiresAt = refreshExpiresAt
	} else if !refreshExpiresAt.IsZero() {
		r.RefreshExpiresAt = refreshExpiresAt
	}
	if idToken != "" {
		r.IDToken = idToken
	}
	return r
}

// InactiveAt reports whether the inactivity deadline has passed at now.
func (r Record) InactiveAt(now time.Time) bool {
	return !r.SessionExpiry.IsZero() && !now.Before(r.SessionExpiry)
}

func (r Record) HasRole(role string) bool {
	return slices.Contains(r.Subject.Roles, role)
}
