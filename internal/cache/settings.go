package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const settingsKeyPrefix = "procura:org_settings"

// OrgSettingsCache holds organization settings maps between database reads.
// Writers must call Invalidate after persisting new settings.
type OrgSettingsCache interface {
	Get(ctx context.Context, orgID snowflake.ID) (map[string]any, bool)
	Set(ctx context.Context, orgID snowflake.ID, settings map[string]any)
	Invalidate(ctx context.Context, orgID snowflake.ID)
}

type memorySettingsCache struct {
	entries Cache[string, map[string]any]
	ttl     time.Duration
}

func NewMemorySettingsCache(ttl time.Duration) OrgSettingsCache {
	return &memorySettingsCache{
		entries: NewTTLCache[string, map[string]any](),
		ttl:     ttl,
	}
}

func (c *memorySettingsCache) Get(_ context.Context, orgID snowflake.ID) (map[string]any, bool) {
	settings, ok := c.entries.Get(cacheKey(settingsKeyPrefix, orgID.String()))
	if !ok {
		return nil, false
	}
	return cloneSettings(settings), true
}

func (c *memorySettingsCache) Set(_ context.Context, orgID snowflake.ID, settings map[string]any) {
	c.entries.Set(cacheKey(settingsKeyPrefix, orgID.String()), cloneSettings(settings), c.ttl)
}

func (c *memorySettingsCache) Invalidate(_ context.Context, orgID snowflake.ID) {
	c.entries.Delete(cacheKey(settingsKeyPrefix, orgID.String()))
}

// redisSettingsCache shares settings between replicas. Failures degrade to a
// miss so the caller falls back to the database.
type redisSettingsCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisSettingsCache(client *redis.Client, ttl time.Duration, log *zap.Logger) OrgSettingsCache {
	return &redisSettingsCache{client: client, ttl: ttl, log: log.Named("cache.org_settings")}
}

func (c *redisSettingsCache) Get(ctx context.Context, orgID snowflake.ID) (map[string]any, bool) {
	raw, err := c.client.Get(ctx, cacheKey(settingsKeyPrefix, orgID.String())).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("settings cache read failed", zap.String("org_id", orgID.String()), zap.Error(err))
		}
		return nil, false
	}

	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		c.log.Warn("settings cache entry corrupt", zap.String("org_id", orgID.String()), zap.Error(err))
		return nil, false
	}
	return settings, true
}

func (c *redisSettingsCache) Set(ctx context.Context, orgID snowflake.ID, settings map[string]any) {
	raw, err := json.Marshal(settings)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(settingsKeyPrefix, orgID.String()), raw, c.ttl).Err(); err != nil {
		c.log.Warn("settings cache write failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}

func (c *redisSettingsCache) Invalidate(ctx context.Context, orgID snowflake.ID) {
	if err := c.client.Del(ctx, cacheKey(settingsKeyPrefix, orgID.String())).Err(); err != nil {
		c.log.Warn("settings cache invalidate failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}

func cloneSettings(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
