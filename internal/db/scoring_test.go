package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/kenku-bot/crowevents/internal/models"
)

func TestTallyScores(t *testing.T) {
	const art, music = 10, 20
	points := []pointFact{
		{UserID: 111, ChannelID: art, PointValue: 2, Multiplier: 3},
		{UserID: 111, ChannelID: music, PointValue: 5, Multiplier: 1},
		{UserID: 222, ChannelID: music, PointValue: 5, Multiplier: 2},
	}
	adjs := []adjustmentFact{
		{UserID: 111, ChannelID: art, Adjustment: 50},
		{UserID: 111, ChannelID: art, Adjustment: 20},
		{UserID: 222, ChannelID: art, Adjustment: -1},
	}

	season, event := tallyScores(points, adjs, art)
	if diff := cmp.Diff(map[int64]int64{111: 6 + 5 + 70, 222: 10 - 1}, season); diff != "" {
		t.Fatalf("season (-want +got):\n%s", diff)
	}
	// корректировки не умножаются на point_value
	if diff := cmp.Diff(map[int64]int64{111: 76, 222: -1}, event); diff != "" {
		t.Fatalf("event (-want +got):\n%s", diff)
	}

	_, other := tallyScores(points, adjs, 999)
	require.Empty(t, other)
}

func TestTallyScores_NoOverflowOnLargeProducts(t *testing.T) {
	points := []pointFact{{UserID: 1, ChannelID: 1, PointValue: 1 << 30, Multiplier: 4}}
	season, _ := tallyScores(points, nil, 1)
	require.Equal(t, int64(1)<<32, season[1])
}

func TestSortedScores_TiesByUserID(t *testing.T) {
	got := sortedScores(map[int64]int64{30: 5, 10: 5, 20: 7, 40: -2})
	want := []models.Score{{UserID: 20, Score: 7}, {UserID: 10, Score: 5}, {UserID: 30, Score: 5}, {UserID: 40, Score: -2}}
	require.Equal(t, want, got)
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("23505")))
	require.False(t, IsUniqueViolation(nil))
}

func TestMigrationsCoverEveryVersion(t *testing.T) {
	for v := int64(2); v <= SchemaVersion; v++ {
		step, ok := migrations[v]
		require.Truef(t, ok, "no step to version %d", v)
		require.NotEmpty(t, step.statements)
	}
	require.NotContains(t, migrations, int64(1))
}
