package comments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/FACorreiaa/go-comment-suggestions/internal/types"
)

// Cooldown rate limits identical regenerations. Acquire reports false while
// a previous acquisition of key is still live.
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var (
	_ Cooldown = (*RedisCooldown)(nil)
	_ Cooldown = (*MemoryCooldown)(nil)
)

// RedisCooldown shares cooldowns across instances.
type RedisCooldown struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCooldown(client redis.UniversalClient) *RedisCooldown {
	return &RedisCooldown{client: client, prefix: "comments:cooldown:"}
}

func (c *RedisCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// MemoryCooldown is the single-instance fallback used when no redis address
// is configured.
type MemoryCooldown struct {
	store *cache.Cache
}

func NewMemoryCooldown(cleanup time.Duration) *MemoryCooldown {
	return &MemoryCooldown{store: cache.New(cache.NoExpiration, cleanup)}
}

func (c *MemoryCooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := c.store.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// cooldownKey identifies a regeneration: same user, same inputs.
func cooldownKey(userID uuid.UUID, post string, platform types.Platform, tone types.Tone, maxLength int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", post, platform, tone, maxLength)
	return userID.String() + ":" + hex.EncodeToString(h.Sum(nil))
}
