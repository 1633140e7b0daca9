// Package observe carries structured events out of the session manager and
// the request pipeline. Observers must not block: they run inline on the
// request path.
package observe

import "time"

type Kind string

const (
	KindRequest          Kind = "request"
	KindRetry            Kind = "retry"
	KindCacheHit         Kind = "cache_hit"
	KindCacheMiss        Kind = "cache_miss"
	KindCacheStore       Kind = "cache_store"
	KindCacheInvalidate  Kind = "cache_invalidate"
	KindRefreshRequested Kind = "refresh_requested"
	KindRefreshSucceeded Kind = "refresh_succeeded"
	KindRefreshFailed    Kind = "refresh_failed"
	KindLogout           Kind = "logout"
	KindSessionExpiring  Kind = "session_expiring"
)

// Event is a single observation. Fields that do not apply to Kind are zero.
type Event struct {
	Kind     Kind
	Method   string
	Path     string
	Status   int
	Attempt  int
	Reason   string
	Count    int
	Duration time.Duration
	Err      error
}

type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

type nop struct{}

func (nop) Observe(Event) {}

// Nop discards every event.
func Nop() Observer {
	return nop{}
}

type multi []Observer

func (m multi) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Multi fans an event out to every non-nil observer.
func Multi(observers ...Observer) Observer {
	out := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}
