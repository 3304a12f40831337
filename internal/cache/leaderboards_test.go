package cache

import (
	"context"
	"testing"

	"github.com/kenku-bot/crowevents/internal/models"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "crowevents:lb:season:7", SeasonKey(7))
	require.Equal(t, "crowevents:lb:event:42", EventKey(42))
	require.NotEqual(t, SeasonKey(1), EventKey(1))
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_, ok, err := c.Get(ctx, EventKey(1))
	require.NoError(t, err)
	require.False(t, ok)

	want := []models.Score{{UserID: 111, Score: 76}, {UserID: 222, Score: -1}}
	require.NoError(t, c.Set(ctx, EventKey(1), want))
	require.NoError(t, c.Set(ctx, SeasonKey(1), nil))

	got, ok, err := c.Get(ctx, EventKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	empty, ok, err := c.Get(ctx, SeasonKey(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, empty)

	require.NoError(t, c.Delete(ctx, EventKey(1), SeasonKey(1)))
	require.Equal(t, 0, c.Len())
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Leaderboards = Nop{}
	require.NoError(t, c.Set(ctx, "k", []models.Score{{UserID: 1, Score: 1}}))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
