package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-api-client/internal/utils"
)

// NowTimeFunc is the clock used by validators created without WithNowFunc.
var NowTimeFunc = time.Now

const defaultExpiringLead = time.Minute

// Claims are the identity fields decoded from a credential. They are only
// populated for a credential that passed validation.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Result describes a credential at the moment it was validated.
type Result struct {
	Valid     bool
	Expired   bool
	Expiring  bool
	ExpiresAt time.Time
	ExpiresIn time.Duration
	Claims    Claims
}

// Validator decodes credentials and judges them against the clock. Without a
// Verifier the signature is not checked; the server remains the authority and
// the client only needs the exp claim to schedule refreshes.
type Validator struct {
	verifier Verifier
	rejected *RejectedSet
	lead     time.Duration
	leeway   time.Duration
	nowFunc  func() time.Time
}

type ValidatorOption func(*Validator)

// WithVerifier makes Validate check signatures with v.
func WithVerifier(v Verifier) ValidatorOption {
	return func(val *Validator) {
		val.verifier = v
	}
}

// WithExpiringLead sets how close to exp a credential is reported as Expiring.
func WithExpiringLead(lead time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.lead = lead
	}
}

// WithLeeway treats credentials as expired this long before their exp claim,
// absorbing clock skew between client and server.
func WithLeeway(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.leeway = d
	}
}

func WithNowFunc(f func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowFunc = f
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		lead:    defaultExpiringLead,
		nowFunc: NowTimeFunc,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.rejected = NewRejectedSet(v.nowFunc)
	return v
}

func (v *Validator) ExpiringLead() time.Duration {
	return v.lead
}

// Validate never fails: malformed input, a missing exp claim, a bad
// signature or a rejected credential all yield Valid=false.
func (v *Validator) Validate(credential string) Result {
	claims, ok := v.decode(credential)
	if !ok {
		return Result{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Result{}
	}

	now := v.nowFunc()
	expiresAt := exp.Time.Add(-v.leeway)
	res := Result{ExpiresAt: exp.Time}
	if !now.Before(expiresAt) {
		res.Expired = true
		return res
	}
	if v.rejected.IsRejected(credential) {
		return res
	}

	res.Valid = true
	res.ExpiresIn = expiresAt.Sub(now)
	res.Expiring = res.ExpiresIn <= v.lead
	res.Claims = claimsFrom(claims, exp.Time)
	return res
}

// ShouldRefresh reports whether credential is still valid but within lead of
// expiring.
func (v *Validator) ShouldRefresh(credential string, lead time.Duration) bool {
	res := v.Validate(credential)
	return res.Valid && res.ExpiresIn <= lead
}

// Reject marks credential as refused by the server. It stays invalid until
// its exp claim passes.
func (v *Validator) Reject(credential string) {
	claims, ok := v.decode(credential)
	if !ok {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	v.rejected.Add(credential, exp.Time)
}

func (v *Validator) decode(credential string) (jwt.MapClaims, bool) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	var err error
	if v.verifier != nil {
		// expiry is judged below against the injected clock
		_, err = jwt.ParseWithClaims(credential, claims, v.verifier.GetVerificationKey, jwt.WithoutClaimsValidation())
	} else {
		_, _, err = jwt.NewParser().ParseUnverified(credential, claims)
	}
	if err != nil {
		return nil, false
	}
	return claims, true
}

func claimsFrom(mc jwt.MapClaims, exp time.Time) Claims {
	c := Claims{ExpiresAt: exp}
	c.Subject, _ = mc.GetSubject()
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	c.Email, _ = mc["email"].(string)
	c.Name, _ = mc["name"].(string)

	if roles, ok := mc["roles"]; ok {
		c.Roles = utils.ToStringSlice(roles)
	} else if role, ok := mc["role"]; ok {
		c.Roles = utils.ToStringSlice(role)
	}
	return c
}

// ExpiresAt decodes the exp claim without checking the signature. ok is false
// for opaque credentials and for JWTs that carry no exp.
func ExpiresAt(credential string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(credential), claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
