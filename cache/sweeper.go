package cache

import (
	"time"
)

type sweeper struct {
	stop chan struct{}
	done chan struct{}
}

// Start runs Cleanup every CleanupInterval until Stop is called. Calling
// Start on a running store is a no-op. A zero interval disables the sweeper.
func (s *Store[V]) Start() {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if s.sweeper != nil {
		return
	}
	interval := s.Config().CleanupInterval
	if interval <= 0 {
		return
	}

	sw := &sweeper{stop: make(chan struct{}), done: make(chan struct{})}
	s.sweeper = sw
	go func() {
		defer close(sw.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Cleanup(); n > 0 {
					s.logger.Debug().Int("removed", n).Msg("cache: swept expired entries")
				}
			case <-sw.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit. It is safe to call when
// the sweeper is not running.
func (s *Store[V]) Stop() {
	s.sweepMu.Lock()
	sw := s.sweeper
	s.sweeper = nil
	s.sweepMu.Unlock()

	if sw == nil {
		return
	}
	close(sw.stop)
	<-sw.done
}
