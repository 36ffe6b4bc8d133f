package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const activeSetTTL = 5 * time.Minute

// CachedRegistry wraps a Registry with a per-tenant Redis read-through cache
// of the active module set. Module permission surfaces change rarely and are
// served straight from the store.
type CachedRegistry struct {
	inner  Registry
	client *redis.Client
	logger *slog.Logger
}

// NewCachedRegistry constructs the cache wrapper.
func NewCachedRegistry(inner Registry, client *redis.Client, logger *slog.Logger) *CachedRegistry {
	return &CachedRegistry{inner: inner, client: client, logger: logger}
}

func activeSetKey(orgID int64) string {
	return fmt.Sprintf("helios:modules:active:%d", orgID)
}

// Active serves the tenant's active set from Redis when present. Cache
// failures degrade to the backing store, never to a denial.
func (c *CachedRegistry) Active(ctx context.Context, orgID int64) ([]string, error) {
	key := activeSetKey(orgID)
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var names []string
		if err := json.Unmarshal([]byte(raw), &names); err == nil {
			return names, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("modules: cache read", slog.Int64("org_id", orgID), slog.Any("error", err))
	}

	names, err := c.inner.Active(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(names); err == nil {
		if err := c.client.Set(ctx, key, encoded, activeSetTTL).Err(); err != nil {
			c.logger.Warn("modules: cache write", slog.Int64("org_id", orgID), slog.Any("error", err))
		}
	}
	return names, nil
}

// IsActive answers from the cached active set.
func (c *CachedRegistry) IsActive(ctx context.Context, orgID int64, module string) (bool, error) {
	names, err := c.Active(ctx, orgID)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == module {
			return true, nil
		}
	}
	return false, nil
}

// Permissions passes through to the backing store.
func (c *CachedRegistry) Permissions(ctx context.Context, module string) ([]string, error) {
	return c.inner.Permissions(ctx, module)
}

// Forget drops the tenant's cached active set. Called on activation changes.
func (c *CachedRegistry) Forget(ctx context.Context, orgID int64) {
	if err := c.client.Del(ctx, activeSetKey(orgID)).Err(); err != nil {
		c.logger.Warn("modules: cache invalidate", slog.Int64("org_id", orgID), slog.Any("error", err))
	}
}
