// Package revocation tracks token IDs that must no longer be accepted even
// though their signature and expiry are still valid.
package revocation

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token IDs until the token would have expired anyway
type Denylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// MarkSpent atomically revokes tokenID and reports whether this call
	// was the one that did it. Single-use tokens are claimed this way.
	MarkSpent(ctx context.Context, tokenID string, until time.Time) (bool, error)

	// Release undoes a MarkSpent whose operation failed
	Release(ctx context.Context, tokenID string) error
}

// minSpentTTL keeps a claim alive for tokens that are about to expire
const minSpentTTL = time.Second

func spentTTL(until, now time.Time) time.Duration {
	ttl := until.Sub(now)
	if ttl < minSpentTTL {
		return minSpentTTL
	}
	return ttl
}

// MemoryDenylist keeps revoked IDs in process memory. Entries vanish on
// restart, which reopens the window for tokens revoked before it.
type MemoryDenylist struct {
	cache *gocache.Cache
	now   func() time.Time
}

// NewMemoryDenylist creates an in-process denylist
func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{
		cache: gocache.New(gocache.NoExpiration, 10*time.Minute),
		now:   time.Now,
	}
}

// Revoke marks tokenID as revoked until the given time
func (d *MemoryDenylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	d.cache.Set(tokenID, struct{}{}, ttl)
	return nil
}

// IsRevoked reports whether tokenID has been revoked
func (d *MemoryDenylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, found := d.cache.Get(tokenID)
	return found, nil
}

// MarkSpent claims tokenID. Only the first caller gets true.
func (d *MemoryDenylist) MarkSpent(_ context.Context, tokenID string, until time.Time) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	if err := d.cache.Add(tokenID, struct{}{}, spentTTL(until, d.now())); err != nil {
		return false, nil
	}
	return true, nil
}

// Release removes a claim made by MarkSpent
func (d *MemoryDenylist) Release(_ context.Context, tokenID string) error {
	d.cache.Delete(tokenID)
	return nil
}

// RedisDenylist shares revoked IDs across instances
type RedisDenylist struct {
	client *redis.Client
	prefix string
}

// NewRedisDenylist creates a Redis-backed denylist
func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "revoked:"
	}
	return &RedisDenylist{client: client, prefix: prefix}
}

// Revoke marks tokenID as revoked until the given time
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}

// MarkSpent claims tokenID with SET NX. Only the first caller across all
// instances gets true.
func (d *RedisDenylist) MarkSpent(ctx context.Context, tokenID string, until time.Time) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	ok, err := d.client.SetNX(ctx, d.prefix+tokenID, 1, spentTTL(until, time.Now())).Result()
	if err != nil {
		return false, fmt.Errorf("mark token spent: %w", err)
	}
	return ok, nil
}

// Release removes a claim made by MarkSpent
func (d *RedisDenylist) Release(ctx context.Context, tokenID string) error {
	if err := d.client.Del(ctx, d.prefix+tokenID).Err(); err != nil {
		return fmt.Errorf("release token: %w", err)
	}
	return nil
}
