package token

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// RejectedSet remembers credentials the server refused so they are never
// attached again, even while their exp claim still looks valid. Entries are
// kept until the credential would have expired anyway.
type RejectedSet struct {
	mu       sync.RWMutex
	rejected map[string]time.Time
	nowFunc  func() time.Time
}

func NewRejectedSet(nowFunc func() time.Time) *RejectedSet {
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &RejectedSet{
		rejected: make(map[string]time.Time),
		nowFunc:  nowFunc,
	}
}

func fingerprint(credential string) string {
	return strconv.FormatUint(xxhash.Sum64String(credential), 16)
}

// Add records a refused credential until exp.
func (s *RejectedSet) Add(credential string, exp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[fingerprint(credential)] = exp
	s.cleanupLocked()
}

func (s *RejectedSet) IsRejected(credential string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.rejected[fingerprint(credential)]
	return exists
}

func (s *RejectedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rejected)
}

// Cleanup drops entries whose credential has expired.
func (s *RejectedSet) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *RejectedSet) cleanupLocked() {
	now := s.nowFunc()
	for fp, exp := range s.rejected {
		if !now.Before(exp) {
			delete(s.rejected, fp)
		}
	}
}
