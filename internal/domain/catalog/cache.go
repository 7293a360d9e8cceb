package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/ehr/claims/internal/platform/db"
)

// Cache holds charge items in front of the repository. A miss reports
// ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, code string) (ci *ChargeItem, ok bool, err error)
	Set(ctx context.Context, ci *ChargeItem) error
	Delete(ctx context.Context, code string) error
}

// NoCache always misses.
type NoCache struct{}

func (NoCache) Get(context.Context, string) (*ChargeItem, bool, error) { return nil, false, nil }
func (NoCache) Set(context.Context, *ChargeItem) error                 { return nil }
func (NoCache) Delete(context.Context, string) error                   { return nil }

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// key scopes entries by tenant since codes are only unique within one.
func (c *RedisCache) key(ctx context.Context, code string) string {
	return c.prefix + db.TenantFromContext(ctx) + ":catalog:" + code
}

func (c *RedisCache) Get(ctx context.Context, code string) (*ChargeItem, bool, error) {
	data, err := c.client.Get(ctx, c.key(ctx, code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var ci ChargeItem
	if err := json.Unmarshal(data, &ci); err != nil {
		return nil, false, err
	}
	return &ci, true, nil
}

func (c *RedisCache) Set(ctx context.Context, ci *ChargeItem) error {
	data, err := json.Marshal(ci)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(ctx, ci.Code), data, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, c.key(ctx, code)).Err()
}
