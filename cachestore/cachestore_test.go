package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCacheStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(10, time.Hour)

	v, err := cs.Get(ctx, "role", "user:1/trusted")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Set(ctx, "role", "user:1/trusted", "true"))
	v, err = cs.Get(ctx, "role", "user:1/trusted")
	assert.NoError(err)
	assert.Equal("true", v)

	// namespaces are independent
	v, err = cs.Get(ctx, "meta", "user:1/trusted")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Purge(ctx, "role", "user:1/trusted"))
	v, err = cs.Get(ctx, "role", "user:1/trusted")
	assert.NoError(err)
	assert.Equal("", v)
}

func TestRoleCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	rc := RoleCache{Store: NewMemCacheStore(10, time.Hour)}

	_, ok, err := rc.GetTrusted(ctx, 7)
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(rc.SetTrusted(ctx, 7, true))
	trusted, ok, err := rc.GetTrusted(ctx, 7)
	assert.NoError(err)
	assert.True(ok)
	assert.True(trusted)

	// a cached negative is a hit, not a miss
	assert.NoError(rc.SetTrusted(ctx, 8, false))
	trusted, ok, err = rc.GetTrusted(ctx, 8)
	assert.NoError(err)
	assert.True(ok)
	assert.False(trusted)

	assert.NoError(rc.Invalidate(ctx, 7))
	_, ok, err = rc.GetTrusted(ctx, 7)
	assert.NoError(err)
	assert.False(ok)
}

func TestMemCacheStoreTTL(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(10, 10*time.Millisecond)
	assert.NoError(cs.Set(ctx, "role", "user:2/trusted", "true"))
	time.Sleep(25 * time.Millisecond)
	v, err := cs.Get(ctx, "role", "user:2/trusted")
	assert.NoError(err)
	assert.Equal("", v)
}
