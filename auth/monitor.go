package auth

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-api-client/notify"
	"github.com/jrsteele09/go-api-client/observe"
)

type monitor struct {
	stop chan struct{}
	done chan struct{}

	// inCallback is set while the tick runs observers and notifiers, which may
	// call back into the Manager from the monitor goroutine.
	inCallback atomic.Bool
}

// startMonitor replaces any running monitor, so there is never more than one
// ticker per Manager.
func (m *Manager) startMonitor() {
	m.stopMonitor(true)
	if m.checkInterval <= 0 {
		return
	}

	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.monitor != nil {
		return
	}
	mon := &monitor{stop: make(chan struct{}), done: make(chan struct{})}
	m.monitor = mon

	go func() {
		defer close(mon.done)
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case <-mon.stop:
					return
				default:
				}
				if ended := m.checkActivity(mon); ended {
					return
				}
			case <-mon.stop:
				return
			}
		}
	}()
}

// stopMonitor must not wait when called from the monitor goroutine. A
// monitor inside its callbacks is not waited for either: the callback may be
// the caller, and the goroutine exits once the callback returns.
func (m *Manager) stopMonitor(wait bool) {
	m.monitorMu.Lock()
	mon := m.monitor
	m.monitor = nil
	m.monitorMu.Unlock()

	if mon == nil {
		return
	}
	close(mon.stop)
	if wait && !mon.inCallback.Load() {
		<-mon.done
	}
}

// CheckActivity runs one monitor tick: it ends an inactive session and
// raises the expiring flag once per activity window. It reports whether no
// session remains.
func (m *Manager) CheckActivity() bool {
	return m.checkActivity(nil)
}

// checkActivity is called with the running monitor from its own goroutine
// and with nil otherwise.
func (m *Manager) checkActivity(mon *monitor) bool {
	now := m.nowFunc()

	m.mu.Lock()
	rec := m.record
	if rec == nil {
		m.mu.Unlock()
		return true
	}
	if rec.InactiveAt(now) {
		m.mu.Unlock()
		if mon != nil {
			mon.inCallback.Store(true)
			defer mon.inCallback.Store(false)
		}
		_ = m.endSession(context.Background(), ReasonExpired, mon == nil, sameRecord(rec))
		return !m.Authenticated()
	}
	remaining := rec.SessionExpiry.Sub(now)
	raise := remaining <= m.warningLead && !m.expiring
	if raise {
		m.expiring = true
	}
	m.mu.Unlock()

	if raise {
		if mon != nil {
			mon.inCallback.Store(true)
			defer mon.inCallback.Store(false)
		}
		m.observer.Observe(observe.Event{Kind: observe.KindSessionExpiring, Duration: remaining})
		m.notifier.Notify(notify.Notification{
			Level:   notify.LevelWarning,
			Code:    "session_expiring",
			Message: "Your session will expire in " + remaining.Round(time.Second).String() + " unless you stay active.",
		})
	}
	return false
}
