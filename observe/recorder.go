package observe

import (
	"sync"
	"time"
)

// Recorder keeps every event in memory. It is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// WaitFor blocks until at least n events of kind were recorded or timeout elapses.
func (r *Recorder) WaitFor(kind Kind, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if r.Count(kind) >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Count(kind) >= n
		}
	}
}
