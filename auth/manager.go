// Package auth owns the authenticated session: it validates and refreshes
// credentials, ends the session on inactivity and tells the rest of the
// client when that happens.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-api-client/apierror"
	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/internal/utils"
	"github.com/jrsteele09/go-api-client/notify"
	"github.com/jrsteele09/go-api-client/observe"
	"github.com/jrsteele09/go-api-client/sessions"
	"github.com/jrsteele09/go-api-client/token"
	"github.com/jrsteele09/go-api-client/token/refresh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultInactivityTimeout = 30 * time.Minute
	defaultWarningLead       = 2 * time.Minute
	defaultCheckInterval     = time.Minute
	defaultRefreshLead       = time.Minute
	defaultRefreshTimeout    = 15 * time.Second

	refreshFlightKey = "refresh"
)

// Credentials is the token pair handed over at login.
type Credentials struct {
	AccessToken      string
	RefreshToken     string
	IDToken          string
	RefreshExpiresAt time.Time
}

// CredentialsFrom converts a token endpoint response received at now.
func CredentialsFrom(resp *refresh.TokenResponse, now time.Time) Credentials {
	return Credentials{
		AccessToken:      utils.Value(resp.AccessToken),
		RefreshToken:     utils.Value(resp.RefreshToken),
		IDToken:          utils.Value(resp.IdToken),
		RefreshExpiresAt: resp.RefreshExpiry(now),
	}
}

// Manager holds at most one session. All methods are safe for concurrent use.
type Manager struct {
	validator *token.Validator
	issuer    refresh.Issuer
	store     *sessions.Store
	subjects  *token.OIDCSubjects

	inactivity     time.Duration
	warningLead    time.Duration
	checkInterval  time.Duration
	refreshLead    time.Duration
	refreshTimeout time.Duration
	nowFunc        func() time.Time

	observer observe.Observer
	notifier notify.Notifier
	logger   zerolog.Logger
	hooks    []LogoutHook

	mu                sync.RWMutex
	record            *sessions.Record
	expiring          bool
	persistedActivity time.Time

	flight singleflight.Group

	monitorMu sync.Mutex
	monitor   *monitor
}

// New creates a Manager. store may be nil, in which case nothing is persisted.
func New(validator *token.Validator, issuer refresh.Issuer, store *sessions.Store, opts ...Option) *Manager {
	m := &Manager{
		validator:      validator,
		issuer:         issuer,
		store:          store,
		inactivity:     defaultInactivityTimeout,
		warningLead:    defaultWarningLead,
		checkInterval:  defaultCheckInterval,
		refreshLead:    defaultRefreshLead,
		refreshTimeout: defaultRefreshTimeout,
		nowFunc:        time.Now,
		observer:       observe.Nop(),
		notifier:       notify.Safe(nil),
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Validate never fails; see token.Validator.
func (m *Manager) Validate(credential string) token.Result {
	return m.validator.Validate(credential)
}

func (m *Manager) ShouldRefresh(credential string, lead time.Duration) bool {
	return m.validator.ShouldRefresh(credential, lead)
}

func (m *Manager) RefreshLead() time.Duration {
	return m.refreshLead
}

// Reject marks a credential the server refused so it is not attached again.
func (m *Manager) Reject(credential string) {
	m.validator.Reject(credential)
}

// Refresh obtains a new access credential. Concurrent callers share a single
// call to the token endpoint and all receive its outcome. The exchange is not
// cancelled when ctx is; ctx only bounds how long this caller waits.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(refreshFlightKey, func() (any, error) {
		return m.exchange(detached)
	})
	m.observer.Observe(observe.Event{Kind: observe.KindRefreshRequested})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) exchange(ctx context.Context) (string, error) {
	m.mu.RLock()
	rec := m.record
	m.mu.RUnlock()

	if rec == nil {
		return "", apierror.New(apierror.TypeValidation, "no active session", errors.ErrNoSession)
	}
	if rec.RefreshToken == "" {
		m.endSession(ctx, ReasonRefreshTokenInvalid, true, sameSession(rec.ID))
		return "", apierror.New(apierror.TypeValidation, "session has no refresh token", errors.ErrMissingRefreshToken)
	}
	if !m.refreshTokenUsable(*rec) {
		m.observer.Observe(observe.Event{Kind: observe.KindRefreshFailed, Reason: string(ReasonRefreshTokenInvalid), Err: errors.ErrRefreshTokenExpired})
		m.endSession(ctx, ReasonRefreshTokenInvalid, true, sameSession(rec.ID))
		return "", apierror.New(apierror.TypeRefresh, "refresh token expired", errors.ErrRefreshTokenExpired)
	}

	start := m.nowFunc()
	callCtx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	resp, err := m.issuer.Refresh(callCtx, rec.RefreshToken)
	cancel()
	if err == nil {
		err = resp.Validate()
	}
	if err == nil && !m.validator.Validate(utils.Value(resp.AccessToken)).Valid {
		err = errors.Wrapf(errors.ErrInvalidToken, "token endpoint issued an unusable access token")
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("session", rec.ID).Msg("auth: refresh failed")
		m.observer.Observe(observe.Event{Kind: observe.KindRefreshFailed, Reason: string(ReasonRefreshFailed), Duration: m.nowFunc().Sub(start), Err: err})
		m.endSession(ctx, ReasonRefreshFailed, true, sameSession(rec.ID))
		return "", apierror.New(apierror.TypeRefresh, "session refresh failed", err)
	}

	now := m.nowFunc()
	creds := CredentialsFrom(resp, now)
	next := rec.WithCredentials(creds.AccessToken, creds.RefreshToken, creds.IDToken, creds.RefreshExpiresAt)

	m.mu.Lock()
	if m.record == nil || m.record.ID != rec.ID {
		m.mu.Unlock()
		return "", apierror.New(apierror.TypeRefresh, "session ended during refresh", errors.ErrNoSession)
	}
	// keep activity recorded while the exchange was in flight
	next.LastActivity = m.record.LastActivity
	next.SessionExpiry = m.record.SessionExpiry
	m.record = &next
	m.mu.Unlock()

	m.persist(ctx, next)
	m.observer.Observe(observe.Event{Kind: observe.KindRefreshSucceeded, Duration: now.Sub(start)})
	m.logger.Debug().Str("session", rec.ID).Msg("auth: credentials refreshed")
	return creds.AccessToken, nil
}

// refreshTokenUsable checks what the client can know locally: the exp claim of
// a JWT refresh token, or the lifetime the issuer disclosed for an opaque one.
func (m *Manager) refreshTokenUsable(rec sessions.Record) bool {
	now := m.nowFunc()
	if exp, ok := token.ExpiresAt(rec.RefreshToken); ok && !now.Before(exp) {
		return false
	}
	if !rec.RefreshExpiresAt.IsZero() && !now.Before(rec.RefreshExpiresAt) {
		return false
	}
	return true
}

// Login starts a session. With no subject given it is taken from the ID token
// (when OIDC subjects are configured) or from the access token claims.
func (m *Manager) Login(ctx context.Context, creds Credentials, subject sessions.Subject) error {
	res := m.validator.Validate(creds.AccessToken)
	if res.Expired {
		return apierror.New(apierror.TypeValidation, "access token has expired", errors.ErrTokenExpired)
	}
	if !res.Valid {
		return apierror.New(apierror.TypeValidation, "access token is not valid", errors.ErrInvalidToken)
	}

	if subject.IsZero() {
		claims := res.Claims
		if creds.IDToken != "" && m.subjects != nil {
			idClaims, err := m.subjects.Subject(ctx, creds.IDToken)
			if err != nil {
				return apierror.New(apierror.TypeValidation, "ID token is not valid", err)
			}
			claims = idClaims
		}
		subject = sessions.Subject{ID: claims.Subject, Email: claims.Email, Name: claims.Name, Roles: claims.Roles}
	}

	now := m.nowFunc()
	rec := sessions.Record{
		ID:               uuid.NewString(),
		AccessToken:      creds.AccessToken,
		RefreshToken:     creds.RefreshToken,
		IDToken:          creds.IDToken,
		RefreshExpiresAt: creds.RefreshExpiresAt,
		Subject:          subject,
		CreatedAt:        now,
	}.Touch(now, m.inactivity)

	m.mu.Lock()
	if m.record != nil {
		m.logger.Debug().Str("session", m.record.ID).Msg("auth: login replaces the current session")
	}
	m.record = &rec
	m.expiring = false
	m.persistedActivity = now
	m.mu.Unlock()

	m.persist(ctx, rec)
	m.startMonitor()
	m.logger.Info().Str("session", rec.ID).Str("subject", subject.ID).Msg("auth: session started")
	return nil
}

// Bootstrap resumes a persisted session. It reports whether a session is
// current afterwards. Stored records that are inactive, corrupt or hold an
// unusable refresh token are deleted, not resumed.
func (m *Manager) Bootstrap(ctx context.Context) (bool, error) {
	if m.Authenticated() {
		return true, nil
	}
	if m.store == nil {
		return false, nil
	}

	rec, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, errors.ErrSessionNotFound):
		return false, nil
	case errors.Is(err, errors.ErrSessionCorrupt):
		m.logger.Warn().Err(err).Msg("auth: discarding unreadable stored session")
		return false, m.store.Delete(ctx)
	case err != nil:
		return false, errors.Wrapf(err, "load session")
	}

	now := m.nowFunc()
	switch {
	case rec.InactiveAt(now):
		m.logger.Info().Str("session", rec.ID).Msg("auth: stored session expired while idle")
		return false, m.store.Delete(ctx)
	case rec.RefreshToken == "" || !m.refreshTokenUsable(*rec):
		m.logger.Info().Str("session", rec.ID).Msg("auth: stored session cannot be refreshed")
		return false, m.store.Delete(ctx)
	}

	m.mu.Lock()
	if m.record != nil {
		m.mu.Unlock()
		return true, nil
	}
	m.record = rec
	m.expiring = false
	m.persistedActivity = rec.LastActivity
	m.mu.Unlock()

	m.startMonitor()
	m.logger.Info().Str("session", rec.ID).Msg("auth: session resumed")
	return true, nil
}

// Logout ends the session. It is idempotent: hooks, events and notifications
// only fire for the call that actually ended a session. The returned error
// only reports a failure to delete the stored record.
func (m *Manager) Logout(ctx context.Context, reason LogoutReason) error {
	return m.endSession(ctx, reason, true, nil)
}

// sessionMatch decides whether the current record is the session a teardown
// was decided for. nil matches any session.
type sessionMatch func(current *sessions.Record) bool

// sameSession matches the session with id, whatever its activity since.
func sameSession(id string) sessionMatch {
	return func(current *sessions.Record) bool {
		return current.ID == id
	}
}

// sameRecord matches only if the record has not been replaced since rec was read.
func sameRecord(rec *sessions.Record) sessionMatch {
	return func(current *sessions.Record) bool {
		return current == rec
	}
}

// endSession clears state; wait is false when called from the monitor itself.
// When match rejects the current record a newer session has taken over and
// nothing is torn down.
func (m *Manager) endSession(ctx context.Context, reason LogoutReason, wait bool, match sessionMatch) error {
	m.mu.Lock()
	rec := m.record
	if rec != nil && match != nil && !match(rec) {
		m.mu.Unlock()
		m.logger.Debug().Str("session", rec.ID).Str("reason", string(reason)).Msg("auth: teardown skipped, session was replaced")
		return nil
	}
	m.record = nil
	m.expiring = false
	m.mu.Unlock()

	m.stopMonitor(wait)
	if rec == nil {
		return nil
	}

	var err error
	if m.store != nil {
		if err = m.store.Delete(ctx); err != nil {
			m.logger.Warn().Err(err).Str("session", rec.ID).Msg("auth: failed to delete stored session")
		}
	}

	for _, hook := range m.hooks {
		hook(reason)
	}
	m.observer.Observe(observe.Event{Kind: observe.KindLogout, Reason: string(reason)})
	level := notify.LevelInfo
	if reason != ReasonUser {
		level = notify.LevelWarning
	}
	m.notifier.Notify(notify.Notification{Level: level, Code: "logged_out", Message: reason.message()})
	m.logger.Info().Str("session", rec.ID).Str("reason", string(reason)).Msg("auth: session ended")
	return err
}

// UpdateActivity records user activity: the inactivity window restarts and
// the expiring flag clears.
func (m *Manager) UpdateActivity() {
	now := m.nowFunc()

	m.mu.Lock()
	if m.record == nil {
		m.mu.Unlock()
		return
	}
	next := m.record.Touch(now, m.inactivity)
	m.record = &next
	m.expiring = false
	persist := now.Sub(m.persistedActivity) >= m.persistEvery()
	if persist {
		m.persistedActivity = now
	}
	m.mu.Unlock()

	if persist {
		ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
		m.persist(ctx, next)
		cancel()
	}
	m.startMonitor()
}

// persistEvery throttles activity writes; the stored LastActivity only has to
// be as precise as the monitor that would judge it.
func (m *Manager) persistEvery() time.Duration {
	if m.checkInterval > 0 {
		return m.checkInterval
	}
	return defaultCheckInterval
}

func (m *Manager) persist(ctx context.Context, rec sessions.Record) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, rec); err != nil {
		m.logger.Warn().Err(err).Str("session", rec.ID).Msg("auth: failed to persist session")
	}
}

// AccessCredential returns the current access token, or "" without a session.
func (m *Manager) AccessCredential() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return ""
	}
	return m.record.AccessToken
}

// Current returns a copy of the session record.
func (m *Manager) Current() (sessions.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return sessions.Record{}, false
	}
	return m.record.Clone(), true
}

func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record != nil
}

// SessionExpiring reports whether the inactivity deadline is within the
// warning lead.
func (m *Manager) SessionExpiring() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiring
}

func (m *Manager) HasRole(role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record != nil && m.record.HasRole(role)
}

// Close stops the monitor without ending the session.
func (m *Manager) Close() {
	m.stopMonitor(true)
}
