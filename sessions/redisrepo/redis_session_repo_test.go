package redisrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/sessions/redisrepo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisSessionRepo(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newRedis(t)
	repo := redisrepo.New(rdb, redisrepo.WithPrefix("test"), redisrepo.WithTTL(time.Hour))

	t.Run("missing", func(t *testing.T) {
		_, err := repo.Load(ctx, "nobody")
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "work", []byte(`{"v":1}`)))
		data, err := repo.Load(ctx, "work")
		require.NoError(t, err)
		require.Equal(t, `{"v":1}`, string(data))
		require.True(t, mr.Exists("test:work"))
		require.Equal(t, time.Hour, mr.TTL("test:work"))
	})

	t.Run("keys skips expired records", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "home", []byte(`{}`)))
		keys, err := repo.Keys(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"home", "work"}, keys)

		mr.FastForward(2 * time.Hour)
		keys, err = repo.Keys(ctx)
		require.NoError(t, err)
		require.Empty(t, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "work", []byte(`{}`)))
		require.NoError(t, repo.Delete(ctx, "work"))
		require.NoError(t, repo.Delete(ctx, "work"))
		_, err := repo.Load(ctx, "work")
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("unavailable", func(t *testing.T) {
		mr.Close()
		_, err := repo.Load(ctx, "work")
		require.ErrorIs(t, err, redisrepo.ErrRedisUnavailable)
		require.ErrorIs(t, repo.Save(ctx, "work", nil), redisrepo.ErrRedisUnavailable)
	})
}
