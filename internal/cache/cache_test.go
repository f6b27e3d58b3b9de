package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTime struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func TestTTLCacheExpires(t *testing.T) {
	clock := &manualTime{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTTLCache[string, int](clock.Now)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.advance(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheNoTTLKeepsEntry(t *testing.T) {
	clock := &manualTime{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTTLCache[string, string](clock.Now)

	c.Set("a", "x", 0)
	clock.advance(24 * time.Hour)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestMemorySettingsCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemorySettingsCache(time.Hour)
	orgID := snowflake.ID(7)

	c.Set(ctx, orgID, map[string]any{"approval_levels_count": 3})
	got, ok := c.Get(ctx, orgID)
	require.True(t, ok)
	assert.Equal(t, 3, got["approval_levels_count"])

	// callers cannot mutate the cached entry through the returned map
	got["approval_levels_count"] = 9
	again, _ := c.Get(ctx, orgID)
	assert.Equal(t, 3, again["approval_levels_count"])

	c.Invalidate(ctx, orgID)
	_, ok = c.Get(ctx, orgID)
	assert.False(t, ok)
}
