package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/internal/utils"
)

const recordVersion = 1

// DefaultKey is the storage key used when a client has a single session.
const DefaultKey = "default"

// storedRecord is the persisted shape. Credentials only appear sealed.
type storedRecord struct {
	Version          int        `json:"v"`
	ID               string     `json:"id"`
	Subject          Subject    `json:"subject"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivity     time.Time  `json:"last_activity"`
	SessionExpiry    time.Time  `json:"session_expiry"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	Credentials      []byte     `json:"credentials,omitempty"`
}

type credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
}

// Store encodes records for a Repo. Without a Sealer only the non-secret
// fields are written, so a loaded record has no credentials.
type Store struct {
	repo   Repo
	sealer *Sealer
	key    string
}

type StoreOption func(*Store)

func WithSealer(s *Sealer) StoreOption {
	return func(st *Store) {
		st.sealer = s
	}
}

func WithKey(key string) StoreOption {
	return func(st *Store) {
		st.key = key
	}
}

func NewStore(repo Repo, opts ...StoreOption) *Store {
	st := &Store{repo: repo, key: DefaultKey}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Sealed reports whether credentials are persisted.
func (s *Store) Sealed() bool {
	return s.sealer != nil
}

func (s *Store) Save(ctx context.Context, r Record) error {
	data, err := s.encode(r)
	if err != nil {
		return err
	}
	return s.repo.Save(ctx, s.key, data)
}

// Load returns errors.ErrSessionNotFound when nothing is stored and
// errors.ErrSessionCorrupt when the stored data cannot be trusted.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	data, err := s.repo.Load(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

func (s *Store) Delete(ctx context.Context) error {
	return s.repo.Delete(ctx, s.key)
}

func (s *Store) encode(r Record) ([]byte, error) {
	stored := storedRecord{
		Version:          recordVersion,
		ID:               r.ID,
		Subject:          r.Subject,
		CreatedAt:        r.CreatedAt,
		LastActivity:     r.LastActivity,
		SessionExpiry:    r.SessionExpiry,
		RefreshExpiresAt: utils.TimePtr(r.RefreshExpiresAt),
	}
	if s.sealer != nil {
		plain, err := json.Marshal(credentials{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			IDToken:      r.IDToken,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "encode credentials")
		}
		if stored.Credentials, err = s.sealer.Seal(plain, []byte(r.ID)); err != nil {
			return nil, err
		}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, errors.Wrapf(err, "encode session")
	}
	return data, nil
}

func (s *Store) decode(data []byte) (*Record, error) {
	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, errors.Wrapf(errors.ErrSessionCorrupt, "decode session: %v", err)
	}
	if stored.Version != recordVersion || stored.ID == "" {
		return nil, errors.Wrapf(errors.ErrSessionCorrupt, "unsupported session version %d", stored.Version)
	}

	r := &Record{
		ID:               stored.ID,
		Subject:          stored.Subject,
		CreatedAt:        stored.CreatedAt,
		LastActivity:     stored.LastActivity,
		SessionExpiry:    stored.SessionExpiry,
		RefreshExpiresAt: utils.Value(stored.RefreshExpiresAt),
	}
	if s.sealer == nil || len(stored.Credentials) == 0 {
		return r, nil
	}

	plain, err := s.sealer.Open(stored.Credentials, []byte(stored.ID))
	if err != nil {
		return nil, err
	}
	var creds credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, errors.Wrapf(errors.ErrSessionCorrupt, "decode credentials: %v", err)
	}
	r.AccessToken = creds.AccessToken
	r.RefreshToken = creds.RefreshToken
	r.IDToken = creds.IDToken
	return r, nil
}
