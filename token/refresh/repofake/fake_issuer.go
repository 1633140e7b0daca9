package refreshrepofake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/internal/utils"
	"github.com/jrsteele09/go-api-client/token"
	"github.com/jrsteele09/go-api-client/token/refresh"
)

var _ refresh.Issuer = (*FakeIssuer)(nil)

// FakeIssuer is an in-memory token endpoint. Refresh tokens are single use:
// presenting one twice fails, which is how a non single-flight client loses
// its session against a rotating server.
type FakeIssuer struct {
	signer     token.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration

	lock    sync.Mutex
	subject map[string]string // refresh token to subject
	gate    chan struct{}
	err     error
	calls   atomic.Int32

	NowFunc func() time.Time
}

func NewFakeIssuer(signer token.Signer, accessTTL time.Duration) *FakeIssuer {
	return &FakeIssuer{
		signer:    signer,
		accessTTL: accessTTL,
		subject:   make(map[string]string),
		NowFunc:   refresh.NowTimeFunc,
	}
}

// WithRefreshTTL makes issued responses disclose refresh_expires_in.
func (f *FakeIssuer) WithRefreshTTL(ttl time.Duration) *FakeIssuer {
	f.refreshTTL = ttl
	return f
}

// Issue mints a fresh credential pair for subject, as a login would.
func (f *FakeIssuer) Issue(subject string, roles ...string) (*refresh.TokenResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.issueLocked(subject, roles)
}

func (f *FakeIssuer) issueLocked(subject string, roles []string) (*refresh.TokenResponse, error) {
	now := f.NowFunc()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(f.accessTTL).Unix(),
		"jti": uuid.NewString(),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	access, err := f.signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	rt := uuid.NewString()
	f.subject[rt] = subject
	return &refresh.TokenResponse{
		AccessToken:      utils.Ptr(access),
		TokenType:        "bearer",
		ExpiresIn:        int(f.accessTTL.Seconds()),
		RefreshToken:     utils.Ptr(rt),
		RefreshExpiresIn: int(f.refreshTTL.Seconds()),
	}, nil
}

func (f *FakeIssuer) Refresh(ctx context.Context, refreshToken string) (*refresh.TokenResponse, error) {
	f.calls.Add(1)

	f.lock.Lock()
	gate := f.gate
	f.lock.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	subject, ok := f.subject[refreshToken]
	if !ok {
		return nil, errors.Wrapf(errors.ErrRefreshFailed, "refresh token unknown or already used")
	}
	delete(f.subject, refreshToken)
	return f.issueLocked(subject, nil)
}

// Hold blocks every Refresh until the returned release func is called.
func (f *FakeIssuer) Hold() (release func()) {
	gate := make(chan struct{})
	f.lock.Lock()
	f.gate = gate
	f.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.lock.Lock()
			f.gate = nil
			f.lock.Unlock()
			close(gate)
		})
	}
}

// FailWith makes subsequent refreshes fail with err. nil restores normal behaviour.
func (f *FakeIssuer) FailWith(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

// Calls returns how many times Refresh reached the issuer.
func (f *FakeIssuer) Calls() int {
	return int(f.calls.Load())
}
