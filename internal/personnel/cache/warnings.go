package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"prismid/internal/personnel/service"
	"prismid/internal/platform/redis"
)

const warningsKey = "prismid:intern_warnings"

// WarningCache stores the upcoming-expiry warning list in Redis so dashboards
// can read it without scanning the records table. The cache is advisory: the
// sweep succeeds even when Redis is down.
type WarningCache struct {
	client *redis.Client
}

func NewWarningCache(client *redis.Client) *WarningCache {
	return &WarningCache{client: client}
}

func (c *WarningCache) StoreWarnings(ctx context.Context, warnings []service.ExpiryWarning, ttl time.Duration) error {
	payload, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	if err := c.client.Set(ctx, warningsKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store warnings: %w", err)
	}
	return nil
}

// Warnings returns the cached list, or nil when the cache is empty or
// expired.
func (c *WarningCache) Warnings(ctx context.Context) ([]service.ExpiryWarning, error) {
	raw, err := c.client.Get(ctx, warningsKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read warnings: %w", err)
	}
	var warnings []service.ExpiryWarning
	if err := json.Unmarshal(raw, &warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	return warnings, nil
}
