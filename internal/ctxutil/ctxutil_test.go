package ctxutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	ctx := WithOp(context.Background(), "set_points")
	ctx = WithGuildID(ctx, 10)
	ctx = WithChannelID(ctx, 20)

	fields := Fields(ctx)
	require.Len(t, fields, 3)
	require.Equal(t, "op", fields[0].Key)
	require.Equal(t, "guild_id", fields[1].Key)
	require.Equal(t, int64(20), fields[2].Integer)

	require.Empty(t, Fields(context.Background()))
}

func TestWithDBTimeout_KeepsShorterParentDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	want, _ := parent.Deadline()

	ctx, cancel2 := WithDBTimeout(parent)
	defer cancel2()
	got, ok := ctx.Deadline()
	require.True(t, ok)
	require.Equal(t, want, got)

	ctx3, cancel3 := WithDBTimeout(context.Background())
	defer cancel3()
	dl, ok := ctx3.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(DefaultDBTimeout), dl, time.Second)
}
