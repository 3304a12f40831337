//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"testing"
	"time"

	goosedb "github.com/pressly/goose/v3/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/testutil/testdb"
)

func startEmpty(t *testing.T) *testdb.DBHandle {
	t.Helper()
	h, err := testdb.StartEmpty(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return h
}

func schemaVersion(t *testing.T, h *testdb.DBHandle) int64 {
	t.Helper()
	store, err := goosedb.NewStore(goosedb.DialectPostgres, db.VersionTable)
	require.NoError(t, err)
	v, err := db.CurrentVersion(context.Background(), h.DB, store)
	require.NoError(t, err)
	return v
}

func TestMigrate_FreshDatabase(t *testing.T) {
	ctx := context.Background()
	h := startEmpty(t)

	require.NoError(t, db.Migrate(ctx, h.DB, zap.NewNop()))
	require.Equal(t, int64(db.SchemaVersion), schemaVersion(t, h))

	// повторный запуск ничего не делает
	require.NoError(t, db.Migrate(ctx, h.DB, zap.NewNop()))
	require.Equal(t, int64(db.SchemaVersion), schemaVersion(t, h))

	for _, table := range []string{"seasons", "season_scores", "event_channels", "event_points",
		"event_adjustments", "event_scores", "snowflakes"} {
		var ok bool
		require.NoError(t, h.DB.QueryRow(`SELECT to_regclass($1) IS NOT NULL`, table).Scan(&ok))
		require.Truef(t, ok, "table %s is missing", table)
	}
}

func TestMigrate_FromLegacyEventPoints(t *testing.T) {
	ctx := context.Background()
	h := startEmpty(t)

	// база первой версии: только очки, с season_id и без multiplier
	_, err := h.DB.Exec(`
		CREATE TABLE event_points (
			message_id BIGINT PRIMARY KEY,
			season_id  BIGINT NOT NULL,
			user_id    BIGINT NOT NULL,
			channel_id BIGINT NOT NULL,
			sent_at    TIMESTAMPTZ NOT NULL
		)`)
	require.NoError(t, err)
	sent := time.Date(2021, 10, 31, 18, 0, 0, 0, time.UTC)
	_, err = h.DB.Exec(`
		INSERT INTO event_points (message_id, season_id, user_id, channel_id, sent_at)
		VALUES (1, 7, 111, 55, $1), (2, 7, 222, 55, $1)`, sent)
	require.NoError(t, err)

	store, err := goosedb.NewStore(goosedb.DialectPostgres, db.VersionTable)
	require.NoError(t, err)
	require.Equal(t, int64(0), schemaVersion(t, h))
	require.NoError(t, store.Insert(ctx, h.DB, goosedb.InsertRequest{Version: 1}))

	require.NoError(t, db.Migrate(ctx, h.DB, zap.NewNop()))
	require.Equal(t, int64(db.SchemaVersion), schemaVersion(t, h))

	var cols []string
	rows, err := h.DB.Query(`
		SELECT column_name FROM information_schema.columns
		WHERE table_name = 'event_points' ORDER BY ordinal_position`)
	require.NoError(t, err)
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		cols = append(cols, c)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	require.Equal(t, []string{"message_id", "user_id", "channel_id", "multiplier", "sent_at"}, cols)

	p, err := db.GetPoint(ctx, h.DB, 2)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, int64(222), p.UserID)
	require.Equal(t, 1, p.Multiplier)
	require.True(t, sent.Equal(p.SentAt))
}

func TestMigrate_NewerSchemaLeftAlone(t *testing.T) {
	ctx := context.Background()
	h := startEmpty(t)
	require.NoError(t, db.Migrate(ctx, h.DB, zap.NewNop()))

	store, err := goosedb.NewStore(goosedb.DialectPostgres, db.VersionTable)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, h.DB, goosedb.InsertRequest{Version: db.SchemaVersion + 1}))

	require.NoError(t, db.Migrate(ctx, h.DB, zap.NewNop()))
	require.Equal(t, int64(db.SchemaVersion+1), schemaVersion(t, h))
}
