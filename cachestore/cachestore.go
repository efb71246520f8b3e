// Short-TTL caching of role and account metadata lookups (as strings),
// so that hot checks like "does this user hold the trusted role" do not
// hammer the authoritative datastore.
//
// Entries are namespaced so independent concerns cannot collide on a
// key. Writers which mutate the authoritative row must Purge the
// matching entry; readers treat an empty value as a miss and fall
// through to the datastore.
package cachestore

import (
	"context"
	"strconv"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

func cacheKey(name, key string) string {
	return name + "/" + key
}

const roleNamespace = "role"

// RoleCache is the typed surface for the per-user role checks the
// scoring and detection paths run on every job. Booleans serialize as
// "true"/"false"; an absent entry reads as a miss.
type RoleCache struct {
	Store CacheStore
}

func trustedKey(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10) + "/trusted"
}

func (rc RoleCache) GetTrusted(ctx context.Context, userID uint) (trusted, ok bool, err error) {
	v, err := rc.Store.Get(ctx, roleNamespace, trustedKey(userID))
	if err != nil || v == "" {
		return false, false, err
	}
	return v == "true", true, nil
}

func (rc RoleCache) SetTrusted(ctx context.Context, userID uint, trusted bool) error {
	return rc.Store.Set(ctx, roleNamespace, trustedKey(userID), strconv.FormatBool(trusted))
}

// Invalidate drops the user's cached role entries. Must be called after
// any role mutation, so a stale grant cannot linger for a full TTL.
func (rc RoleCache) Invalidate(ctx context.Context, userID uint) error {
	return rc.Store.Purge(ctx, roleNamespace, trustedKey(userID))
}
