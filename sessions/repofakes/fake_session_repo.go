package fakesessionrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type FakeSessionRepo struct {
	sessions map[string][]byte
	lock     sync.RWMutex

	// Fail, when set, is returned by every call.
	Fail error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string][]byte),
	}
}

func (sr *FakeSessionRepo) Load(_ context.Context, key string) ([]byte, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	if sr.Fail != nil {
		return nil, sr.Fail
	}

	data, ok := sr.sessions[key]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return append([]byte(nil), data...), nil
}

func (sr *FakeSessionRepo) Save(_ context.Context, key string, data []byte) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.Fail != nil {
		return sr.Fail
	}

	sr.sessions[key] = append([]byte(nil), data...)
	return nil
}

func (sr *FakeSessionRepo) Delete(_ context.Context, key string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	if sr.Fail != nil {
		return sr.Fail
	}

	delete(sr.sessions, key)
	return nil
}

// Raw exposes the stored bytes so tests can inspect or corrupt them.
func (sr *FakeSessionRepo) Raw(key string) ([]byte, bool) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	data, ok := sr.sessions[key]
	return data, ok
}

func (sr *FakeSessionRepo) Put(key string, data []byte) {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.sessions[key] = data
}
