package leasestore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisLeasePrefix string = "lease/"

type RedisLeaseStore struct {
	Client *redis.Client
}

func NewRedisLeaseStore(redisURL string) (*RedisLeaseStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	rls := RedisLeaseStore{
		Client: rdb,
	}
	return &rls, nil
}

func (s *RedisLeaseStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.Client.SetNX(ctx, redisLeasePrefix+key, "1", ttl).Result()
}

func (s *RedisLeaseStore) Release(ctx context.Context, key string) error {
	return s.Client.Del(ctx, redisLeasePrefix+key).Err()
}
