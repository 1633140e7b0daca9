package sessions_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/sessions"
	fakesessionrepo "github.com/jrsteele09/go-api-client/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

func sealKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func fixtureRecord() sessions.Record {
	return sessions.Record{
		ID:               "sess-1",
		AccessToken:      "access",
		RefreshToken:     "refresh",
		IDToken:          "id",
		RefreshExpiresAt: t0.Add(24 * time.Hour),
		Subject:          sessions.Subject{ID: "u1", Email: "u1@example.com", Roles: []string{"admin"}},
		CreatedAt:        t0,
		LastActivity:     t0,
		SessionExpiry:    t0.Add(30 * time.Minute),
	}
}

func TestSealer(t *testing.T) {
	_, err := sessions.NewSealer([]byte("short"))
	require.ErrorIs(t, err, errors.ErrInvalidRequest)

	s, err := sessions.NewSealer(sealKey())
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("secret"), []byte("ad"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "secret")

	plain, err := s.Open(sealed, []byte("ad"))
	require.NoError(t, err)
	require.Equal(t, "secret", string(plain))

	_, err = s.Open(sealed, []byte("other"))
	require.ErrorIs(t, err, errors.ErrSessionCorrupt)

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed, []byte("ad"))
	require.ErrorIs(t, err, errors.ErrSessionCorrupt)

	_, err = s.Open([]byte{1, 2, 3}, nil)
	require.ErrorIs(t, err, errors.ErrSessionCorrupt)
}

func TestStore_SealedRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := fakesessionrepo.NewFakeSessionRepo()
	sealer, err := sessions.NewSealer(sealKey())
	require.NoError(t, err)
	store := sessions.NewStore(repo, sessions.WithSealer(sealer), sessions.WithKey("work"))
	require.True(t, store.Sealed())

	rec := fixtureRecord()
	require.NoError(t, store.Save(ctx, rec))

	raw, ok := repo.Raw("work")
	require.True(t, ok)
	require.NotContains(t, string(raw), "refresh\"", "credentials are never written in clear")
	require.NotContains(t, string(raw), "access\"")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, rec, *loaded)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	require.ErrorIs(t, err, errors.ErrSessionNotFound)
}

func TestStore_Unsealed(t *testing.T) {
	ctx := context.Background()
	repo := fakesessionrepo.NewFakeSessionRepo()
	store := sessions.NewStore(repo)

	require.NoError(t, store.Save(ctx, fixtureRecord()))
	raw, _ := repo.Raw(sessions.DefaultKey)
	require.NotContains(t, string(raw), "credentials")

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded.AccessToken)
	require.Empty(t, loaded.RefreshToken)
	require.Equal(t, "u1", loaded.Subject.ID)
	require.Equal(t, t0.Add(24*time.Hour), loaded.RefreshExpiresAt)
}

func TestStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	repo := fakesessionrepo.NewFakeSessionRepo()
	sealer, err := sessions.NewSealer(sealKey())
	require.NoError(t, err)
	store := sessions.NewStore(repo, sessions.WithSealer(sealer))

	for name, data := range map[string][]byte{
		"not json":        []byte("{"),
		"unknown version": []byte(`{"v":9,"id":"x"}`),
		"missing id":      []byte(`{"v":1}`),
		"bad ciphertext":  []byte(`{"v":1,"id":"x","credentials":"AAAA"}`),
	} {
		t.Run(name, func(t *testing.T) {
			repo.Put(sessions.DefaultKey, data)
			_, err := store.Load(ctx)
			require.ErrorIs(t, err, errors.ErrSessionCorrupt)
		})
	}

	t.Run("other key", func(t *testing.T) {
		otherSealer, err := sessions.NewSealer(bytes.Repeat([]byte{9}, 32))
		require.NoError(t, err)
		require.NoError(t, sessions.NewStore(repo, sessions.WithSealer(otherSealer)).Save(ctx, fixtureRecord()))
		_, err = store.Load(ctx)
		require.ErrorIs(t, err, errors.ErrSessionCorrupt)
	})
}
