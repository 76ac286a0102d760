package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalCacheExpiresWithInjectedClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cm := NewCacheManager(nil).WithClock(func() time.Time { return now })
	defer cm.Stop()

	ctx := context.Background()
	require.NoError(t, cm.Set(ctx, "affiliate:1:orders", 42, time.Minute))

	var got int
	require.NoError(t, cm.Get(ctx, "affiliate:1:orders", &got))
	require.Equal(t, 42, got)

	now = now.Add(time.Minute)
	require.ErrorIs(t, cm.Get(ctx, "affiliate:1:orders", &got), ErrCacheMiss)
}

func TestDeleteAndDisable(t *testing.T) {
	cm := NewCacheManager(nil)
	defer cm.Stop()

	ctx := context.Background()
	require.NoError(t, cm.Set(ctx, "k", "v", time.Hour))
	require.NoError(t, cm.Delete(ctx, "k"))

	var got string
	require.ErrorIs(t, cm.Get(ctx, "k", &got), ErrCacheMiss)

	require.NoError(t, cm.Set(ctx, "k", "v", time.Hour))
	cm.Disable()
	require.ErrorIs(t, cm.Get(ctx, "k", &got), ErrCacheMiss)
	cm.Enable()
	require.NoError(t, cm.Get(ctx, "k", &got))
	require.Equal(t, "v", got)
}
