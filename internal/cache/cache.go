// Package cache wraps Redis for the two hot paths that need it: short-lived
// response caching for repeated prompts and idempotency claims for the
// feedback loop. A nil client disables both, the callers degrade silently.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mensajemagico/backend/internal/types"
)

const claimTTL = 24 * time.Hour

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a cache over an already-connected client. client may be nil.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Connect dials Redis from a URL. An empty URL returns a nil client, which
// New accepts as "caching off".
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// ResponseKey derives a deterministic cache key from everything that shapes
// the generated text: the request plus the relational snapshot it was composed
// with. A guardian write changes the snapshot and with it the key, so a cached
// entry can never outlive the state it was built from.
func ResponseKey(req types.GenerationRequest, mem types.RelationalContext, avoidTopics []string) string {
	payload, _ := json.Marshal(struct {
		Request types.GenerationRequest `json:"request"`
		Memory  types.RelationalContext `json:"memory"`
		Avoid   []string                `json:"avoid"`
	}{req, mem, avoidTopics})
	sum := sha256.Sum256(payload)
	return "magic:resp:" + hex.EncodeToString(sum[:])
}

// GetResponse returns a cached generation, if any. Errors count as misses.
func (c *Cache) GetResponse(ctx context.Context, req types.GenerationRequest, mem types.RelationalContext, avoidTopics []string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	value, err := c.client.Get(ctx, ResponseKey(req, mem, avoidTopics)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("response cache read failed", "error", err)
		return "", false
	}
	return value, true
}

// SetResponse stores a generation under the composite key for the cache TTL.
func (c *Cache) SetResponse(ctx context.Context, req types.GenerationRequest, mem types.RelationalContext, avoidTopics []string, text string) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, ResponseKey(req, mem, avoidTopics), text, c.ttl).Err(); err != nil {
		c.logger.Warn("response cache write failed", "error", err)
	}
}

// Claim reserves an idempotency key, returning false when another call
// already holds it. Satisfies guardian.Claimer.
func (c *Cache) Claim(ctx context.Context, key string) (bool, error) {
	if c.client == nil {
		return true, nil
	}
	return c.client.SetNX(ctx, key, "1", claimTTL).Result()
}
