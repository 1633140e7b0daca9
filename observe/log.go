package observe

import (
	"github.com/rs/zerolog"
)

type logObserver struct {
	logger zerolog.Logger
}

// Log writes every event to logger. Failures log at warn, everything else at debug.
func Log(logger zerolog.Logger) Observer {
	return &logObserver{logger: logger}
}

func (l *logObserver) Observe(e Event) {
	ev := l.logger.Debug()
	if e.Err != nil || e.Kind == KindRefreshFailed || e.Kind == KindLogout {
		ev = l.logger.Warn()
	}
	if e.Method != "" {
		ev = ev.Str("method", e.Method).Str("path", e.Path)
	}
	if e.Status != 0 {
		ev = ev.Int("status", e.Status)
	}
	if e.Attempt != 0 {
		ev = ev.Int("attempt", e.Attempt)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if e.Count != 0 {
		ev = ev.Int("count", e.Count)
	}
	if e.Duration != 0 {
		ev = ev.Dur("duration", e.Duration)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Str("event", string(e.Kind)).Send()
}
