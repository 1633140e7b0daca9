package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/jrsteele09/go-api-client/internal/errors"
	"github.com/jrsteele09/go-api-client/sessions"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures talking to Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

const defaultPrefix = "apiclient:session"

var _ sessions.Repo = (*RedisSessionRepo)(nil)

// RedisSessionRepo keeps session records in Redis, so several processes on
// one host can share a login.
type RedisSessionRepo struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*RedisSessionRepo)

func WithPrefix(prefix string) Option {
	return func(r *RedisSessionRepo) {
		r.prefix = prefix
	}
}

// WithTTL expires stored records after ttl. Zero keeps them until deleted.
func WithTTL(ttl time.Duration) Option {
	return func(r *RedisSessionRepo) {
		r.ttl = ttl
	}
}

func New(client redis.UniversalClient, opts ...Option) *RedisSessionRepo {
	r := &RedisSessionRepo{redis: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisSessionRepo) key(key string) string {
	return r.prefix + ":" + key
}

func (r *RedisSessionRepo) indexKey() string {
	return r.prefix + ":keys"
}

func (r *RedisSessionRepo) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.redis.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, nil
}

func (r *RedisSessionRepo) Save(ctx context.Context, key string, data []byte) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), data, r.ttl)
		pipe.SAdd(ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *RedisSessionRepo) Delete(ctx context.Context, key string) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(key))
		pipe.SRem(ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Keys lists the stored session keys, dropping index entries whose record
// has expired.
func (r *RedisSessionRepo) Keys(ctx context.Context) ([]string, error) {
	members, err := r.redis.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sort.Strings(members)

	keys := make([]string, 0, len(members))
	for _, m := range members {
		n, err := r.redis.Exists(ctx, r.key(m)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if n == 0 {
			_ = r.redis.SRem(ctx, r.indexKey(), m).Err()
			continue
		}
		keys = append(keys, m)
	}
	return keys, nil
}
