// Package notify is the fire-and-forget sink for human readable status
// messages such as "session expiring" or "logged out".
package notify

import (
	"github.com/rs/zerolog"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level
	Code    string // stable identifier, e.g. "session_expiring"
	Message string
}

// Notifier receives notifications. Implementations must not block and their
// failures are never reported back to the caller.
type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

type logNotifier struct {
	logger zerolog.Logger
}

// Log writes notifications to logger.
func Log(logger zerolog.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (l *logNotifier) Notify(n Notification) {
	ev := l.logger.Info()
	switch n.Level {
	case LevelWarning:
		ev = l.logger.Warn()
	case LevelError:
		ev = l.logger.Error()
	}
	ev.Str("code", n.Code).Msg(n.Message)
}

// Safe wraps n so a panicking notifier cannot take the caller down.
func Safe(n Notifier) Notifier {
	if n == nil {
		return NotifierFunc(func(Notification) {})
	}
	return NotifierFunc(func(msg Notification) {
		defer func() { _ = recover() }()
		n.Notify(msg)
	})
}
