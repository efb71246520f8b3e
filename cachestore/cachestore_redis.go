package cachestore

import (
	"context"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// key prefix shared by all daemon instances on the same redis
var redisCachePrefix = "trustmod/cache/"

// RedisCacheStore layers a small in-process TinyLFU tier over redis, so
// repeated role checks within one daemon stay off the network entirely.
type RedisCacheStore struct {
	entries *cache.Cache
	ttl     time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(redisURL string, ttl time.Duration) (*RedisCacheStore, error) {
	ctx := context.Background()
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	entries := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, ttl),
	})
	return &RedisCacheStore{
		entries: entries,
		ttl:     ttl,
	}, nil
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.entries.Get(ctx, redisCachePrefix+cacheKey(name, key), &val)
	if err == cache.ErrCacheMiss {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.entries.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisCachePrefix + cacheKey(name, key),
		Value: val,
		TTL:   s.ttl,
	})
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.entries.Delete(ctx, redisCachePrefix+cacheKey(name, key))
	if err == cache.ErrCacheMiss {
		return nil
	}
	return err
}
