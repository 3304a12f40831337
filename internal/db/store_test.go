//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/models"
	"github.com/kenku-bot/crowevents/internal/testutil/testdb"
)

const guild = int64(900)

func start(t *testing.T) *testdb.DBHandle {
	t.Helper()
	h, err := testdb.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return h
}

func mustSeason(t *testing.T, h *testdb.DBHandle, name string) int64 {
	t.Helper()
	s, _, err := db.CreateSeason(context.Background(), h.DB, name, guild, time.Now())
	require.NoError(t, err)
	return s.ID
}

func scoreMap(scores []models.Score) map[int64]int64 {
	out := make(map[int64]int64, len(scores))
	for _, s := range scores {
		out[s.UserID] = s.Score
	}
	return out
}

func point(msg, user, channel int64, mult int) models.Point {
	return models.Point{MessageID: msg, UserID: user, ChannelID: channel, Multiplier: mult, SentAt: time.Now()}
}

func TestCreateSeason_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	h := start(t)

	first, created, err := db.CreateSeason(ctx, h.DB, "Season 1", guild, time.Now())
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := db.CreateSeason(ctx, h.DB, "Season 1", guild, time.Now())
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)

	other, created, err := db.CreateSeason(ctx, h.DB, "Season 1", guild+1, time.Now())
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, other.ID)

	seasons, err := db.GetSeasons(ctx, h.DB, guild)
	require.NoError(t, err)
	require.Len(t, seasons, 1)

	missing, err := db.GetSeason(ctx, h.DB, 12345)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCreateSeason_Parallel(t *testing.T) {
	ctx := context.Background()
	h := start(t)

	ids := make([]int64, 20)
	var createdCount int
	var mu sync.Mutex
	wg := sync.WaitGroup{}
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, created, err := db.CreateSeason(ctx, h.DB, "Season 1", guild, time.Now())
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = s.ID
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, createdCount)
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestScoresFollowFacts(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	season := mustSeason(t, h, "Season 1")
	const art, music = int64(55), int64(56)

	require.NoError(t, db.ConfigureChannel(ctx, h.DB, art, season, 2))
	require.NoError(t, db.ConfigureChannel(ctx, h.DB, music, season, 1))

	require.NoError(t, db.RecordPoint(ctx, h.DB, season, point(1, 111, art, 3)))
	require.NoError(t, db.RecordPoint(ctx, h.DB, season, point(2, 222, art, 1)))
	require.NoError(t, db.RecordPoint(ctx, h.DB, season, point(3, 111, music, 2)))

	// повторная оценка того же сообщения заменяет multiplier
	require.NoError(t, db.RecordPoint(ctx, h.DB, season, point(1, 111, art, 1)))

	require.NoError(t, db.ReplaceAdjustments(ctx, h.DB, season, art, []models.Adjustment{
		{ChannelID: art, UserID: 111, Amount: 50},
		{ChannelID: art, UserID: 111, Amount: 20},
		{ChannelID: art, UserID: 222, Amount: -1},
	}))

	ev, err := db.GetEventScores(ctx, h.DB, art)
	require.NoError(t, err)
	require.Equal(t, []models.Score{{UserID: 111, Score: 72}, {UserID: 222, Score: 1}}, ev)

	ss, err := db.GetSeasonScores(ctx, h.DB, season)
	require.NoError(t, err)
	require.Equal(t, map[int64]int64{111: 74, 222: 1}, scoreMap(ss))

	// цена канала действует ретроактивно
	require.NoError(t, db.ConfigureChannel(ctx, h.DB, art, season, 5))
	ev, err = db.GetEventScores(ctx, h.DB, art)
	require.NoError(t, err)
	require.Equal(t, map[int64]int64{111: 75, 222: 4}, scoreMap(ev))

	perChannel, err := db.GetUserSeasonScores(ctx, h.DB, season, 111)
	require.NoError(t, err)
	require.Equal(t, []models.ChannelScore{{ChannelID: music, Score: 2}, {ChannelID: art, Score: 75}}, perChannel)

	total, err := db.GetUserSeasonScore(ctx, h.DB, season, 111)
	require.NoError(t, err)
	require.Equal(t, int64(77), total)

	// снятие очка
	require.NoError(t, db.RemovePoint(ctx, h.DB, 3, 111, season, music))
	total, err = db.GetUserSeasonScore(ctx, h.DB, season, 111)
	require.NoError(t, err)
	require.Equal(t, int64(75), total)

	// канал вне конкурса не участвует в сезоне, очки остаются
	require.NoError(t, db.RemoveChannel(ctx, h.DB, art, season))
	ev, err = db.GetEventScores(ctx, h.DB, art)
	require.NoError(t, err)
	require.Empty(t, ev)
	ss, err = db.GetSeasonScores(ctx, h.DB, season)
	require.NoError(t, err)
	for _, s := range ss {
		require.Zero(t, s.Score)
	}
	p, err := db.GetPoint(ctx, h.DB, 1)
	require.NoError(t, err)
	require.NotNil(t, p)

	nobody, err := db.GetUserSeasonScore(ctx, h.DB, season, 999)
	require.NoError(t, err)
	require.Zero(t, nobody)
}

func TestRecordPoint_RejectsNonPositiveMultiplier(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	season := mustSeason(t, h, "Season 1")
	require.NoError(t, db.ConfigureChannel(ctx, h.DB, 55, season, 1))

	require.Error(t, db.RecordPoint(ctx, h.DB, season, point(1, 111, 55, 0)))
	require.Error(t, db.InsertPoint(ctx, h.DB, point(1, 111, 55, -2)))
	p, err := db.GetPoint(ctx, h.DB, 1)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestAdjustmentsAndNames(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	season := mustSeason(t, h, "Season 1")
	require.NoError(t, db.ConfigureChannel(ctx, h.DB, 55, season, 1))
	require.NoError(t, db.UpdateSnowflakes(ctx, h.DB, map[int64]string{111: "crow#0001", 55: "art"}))
	require.NoError(t, db.UpdateSnowflake(ctx, h.DB, 111, "crow#0002"))

	note := "bonus"
	require.NoError(t, db.ReplaceAdjustments(ctx, h.DB, season, 55, []models.Adjustment{
		{ChannelID: 55, UserID: 111, Amount: 10, Note: &note},
		{ChannelID: 55, UserID: 222, Amount: 3},
	}))

	rows, err := db.GetAdjustments(ctx, h.DB, 55)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "crow#0002", rows[0].UserName)
	require.Equal(t, "bonus", *rows[0].Note)
	require.Empty(t, rows[1].UserName)
	require.Nil(t, rows[1].Note)

	ids, err := db.FindSnowflakesByName(ctx, h.DB, "crow#0002")
	require.NoError(t, err)
	require.Equal(t, []int64{111}, ids)

	names, err := db.GetSnowflakeNames(ctx, h.DB, []int64{111, 55, 404})
	require.NoError(t, err)
	require.Equal(t, map[int64]string{111: "crow#0002", 55: "art"}, names)

	// пустая замена удаляет всё
	require.NoError(t, db.ReplaceAdjustments(ctx, h.DB, season, 55, nil))
	rows, err = db.GetAdjustments(ctx, h.DB, 55)
	require.NoError(t, err)
	require.Empty(t, rows)
	ev, err := db.GetEventScores(ctx, h.DB, 55)
	require.NoError(t, err)
	require.Empty(t, ev)
}

func TestExportPoints(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	season := mustSeason(t, h, "Season 1")
	otherGuild, _, err := db.CreateSeason(ctx, h.DB, "Season 1", guild+1, time.Now())
	require.NoError(t, err)

	require.NoError(t, db.ConfigureChannel(ctx, h.DB, 55, season, 2))
	require.NoError(t, db.ConfigureChannel(ctx, h.DB, 77, otherGuild.ID, 1))
	require.NoError(t, db.UpdateSnowflakes(ctx, h.DB, map[int64]string{111: "crow", 55: "art"}))
	require.NoError(t, db.RecordPoint(ctx, h.DB, season, point(1, 111, 55, 1)))
	require.NoError(t, db.RecordPoint(ctx, h.DB, otherGuild.ID, point(2, 111, 77, 1)))

	rows, err := db.ExportPoints(ctx, h.DB, guild)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	r := rows[0]
	require.Equal(t, int64(1), r.MessageID)
	require.Equal(t, season, *r.SeasonID)
	require.Equal(t, "Season 1", r.SeasonName)
	require.Equal(t, "art", r.ChannelName)
	require.Equal(t, "crow", r.UserName)
	require.Equal(t, 2, *r.PointValue)
}

func TestRecordPoint_Parallel(t *testing.T) {
	ctx := context.Background()
	h := start(t)
	season := mustSeason(t, h, "Season 1")
	const art, music = int64(55), int64(56)
	require.NoError(t, db.ConfigureChannel(ctx, h.DB, art, season, 2))
	require.NoError(t, db.ConfigureChannel(ctx, h.DB, music, season, 3))

	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int64) {
			defer wg.Done()
			if err := db.RecordPoint(ctx, h.DB, season, point(1000+i, 111, art, 1)); err != nil {
				t.Error(err)
			}
		}(int64(i))
		go func(i int64) {
			defer wg.Done()
			if err := db.RecordPoint(ctx, h.DB, season, point(2000+i, 111, music, 2)); err != nil {
				t.Error(err)
			}
		}(int64(i))
		go func(i int64) {
			defer wg.Done()
			if err := db.RecordPoint(ctx, h.DB, season, point(3000+i, 222, art, 1)); err != nil {
				t.Error(err)
			}
		}(int64(i))
	}
	// полный пересчёт посреди точечных
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := db.RecalculateChannel(ctx, h.DB, season, art); err != nil {
			t.Error(err)
		}
	}()
	wg.Wait()

	ss, err := db.GetSeasonScores(ctx, h.DB, season)
	require.NoError(t, err)
	require.Equal(t, map[int64]int64{111: 50*2 + 50*6, 222: 50 * 2}, scoreMap(ss))

	ev, err := db.GetEventScores(ctx, h.DB, art)
	require.NoError(t, err)
	require.Equal(t, map[int64]int64{111: 100, 222: 100}, scoreMap(ev))

	ev, err = db.GetEventScores(ctx, h.DB, music)
	require.NoError(t, err)
	require.Equal(t, []models.Score{{UserID: 111, Score: 300}}, ev)
}
