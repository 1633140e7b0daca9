package auth

import (
	"time"

	"github.com/jrsteele09/go-api-client/internal/config"
	"github.com/jrsteele09/go-api-client/notify"
	"github.com/jrsteele09/go-api-client/observe"
	"github.com/jrsteele09/go-api-client/token"
	"github.com/rs/zerolog"
)

// LogoutHook runs after a session has been cleared, e.g. to drop cached
// responses that belonged to the user.
type LogoutHook func(reason LogoutReason)

type Option func(*Manager)

// WithInactivityTimeout ends the session after d without UpdateActivity.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.inactivity = d
	}
}

// WithWarningLead flags the session as expiring d before the inactivity deadline.
func WithWarningLead(d time.Duration) Option {
	return func(m *Manager) {
		m.warningLead = d
	}
}

// WithCheckInterval sets the monitor tick. Zero disables the background
// monitor; CheckActivity can still be driven by hand.
func WithCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.checkInterval = d
	}
}

// WithRefreshLead is how close to expiry a credential is refreshed pre-emptively.
func WithRefreshLead(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshLead = d
	}
}

// WithRefreshTimeout bounds a single call to the token endpoint.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshTimeout = d
	}
}

func WithNowFunc(f func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = f
	}
}

func WithObserver(o observe.Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) {
		m.notifier = notify.Safe(n)
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithLogoutHook adds a hook. Hooks run in registration order.
func WithLogoutHook(h LogoutHook) Option {
	return func(m *Manager) {
		m.hooks = append(m.hooks, h)
	}
}

// WithOIDCSubjects derives the session subject from an ID token at login.
func WithOIDCSubjects(s *token.OIDCSubjects) Option {
	return func(m *Manager) {
		m.subjects = s
	}
}

// WithSessionConfig applies the timing settings from configuration.
func WithSessionConfig(cfg config.SessionConfig) Option {
	return func(m *Manager) {
		m.inactivity = cfg.GetInactivityTimeout()
		m.warningLead = cfg.GetWarningLead()
		m.checkInterval = cfg.GetCheckInterval()
		m.refreshLead = cfg.GetRefreshLead()
		m.refreshTimeout = cfg.GetRefreshTimeout()
	}
}
