package config

import "time"

type CacheConfig interface {
	GetCacheDefaultTTL() time.Duration
	GetCacheMaxEntries() int
	GetCacheMaxMemoryBytes() int64
	GetCacheCleanupInterval() time.Duration
}

type CacheSettings struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl" validate:"gt=0"`
	MaxEntries      int           `mapstructure:"max_entries" validate:"gte=0"`
	MaxMemoryBytes  int64         `mapstructure:"max_memory_bytes" validate:"gte=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
}

func defaultCacheSettings() CacheSettings {
	return CacheSettings{
		DefaultTTL:      5 * time.Minute,
		MaxEntries:      500,
		MaxMemoryBytes:  10 << 20, // 10 MiB
		CleanupInterval: time.Minute,
	}
}

func (s *Settings) GetCacheDefaultTTL() time.Duration {
	return s.Cache.DefaultTTL
}

func (s *Settings) GetCacheMaxEntries() int {
	return s.Cache.MaxEntries
}

func (s *Settings) GetCacheMaxMemoryBytes() int64 {
	return s.Cache.MaxMemoryBytes
}

func (s *Settings) GetCacheCleanupInterval() time.Duration {
	return s.Cache.CleanupInterval
}
