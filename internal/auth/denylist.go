package auth

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const denylistKeyPrefix = "fixwell:denylist:access:"

// Denylist revokes access tokens before their natural expiry. Entries live
// in Redis keyed by token ID and expire together with the token, so the set
// stays small. A nil client disables revocation checks entirely.
type Denylist struct {
	rdb *redis.Client
	now func() time.Time
}

// NewDenylist wraps the given Redis client. A nil client is allowed and
// turns Revoke and Revoked into no-ops.
func NewDenylist(rdb *redis.Client) *Denylist {
	return &Denylist{rdb: rdb, now: time.Now}
}

// Revoke stores the token ID until the token would have expired anyway.
func (d *Denylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if d == nil || d.rdb == nil || tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, denylistKeyPrefix+tokenID, "1", ttl).Err()
}

// Revoked reports whether the token ID has been revoked. Transport errors
// propagate so the caller can decide how to degrade.
func (d *Denylist) Revoked(ctx context.Context, tokenID string) (bool, error) {
	if d == nil || d.rdb == nil || tokenID == "" {
		return false, nil
	}
	_, err := d.rdb.Get(ctx, denylistKeyPrefix+tokenID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
