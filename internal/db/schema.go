package db

// SchemaVersion: версия схемы, которую ожидает текущий код.
const SchemaVersion = 4

// schemaStatements: полный набор DDL. Всё через IF NOT EXISTS, поэтому
// набор можно применять повторно на любой версии.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS seasons (
		id        BIGSERIAL PRIMARY KEY,
		name      TEXT        NOT NULL,
		guild_id  BIGINT      NOT NULL,
		start_at  TIMESTAMPTZ NOT NULL,
		end_at    TIMESTAMPTZ,
		UNIQUE (name, guild_id)
	)`,

	`CREATE TABLE IF NOT EXISTS season_scores (
		season_id BIGINT NOT NULL,
		user_id   BIGINT NOT NULL,
		score     BIGINT NOT NULL,
		PRIMARY KEY (season_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_high_scores ON season_scores (season_id, score DESC, user_id)`,

	`CREATE TABLE IF NOT EXISTS event_channels (
		channel_id  BIGINT  PRIMARY KEY,
		season_id   BIGINT  NOT NULL,
		point_value INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_channels_season ON event_channels (season_id)`,

	eventPointsTable,
	`CREATE INDEX IF NOT EXISTS idx_event_points_user ON event_points (user_id, channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_points_channel ON event_points (channel_id)`,

	`CREATE TABLE IF NOT EXISTS event_adjustments (
		id         BIGSERIAL PRIMARY KEY,
		channel_id BIGINT  NOT NULL,
		user_id    BIGINT  NOT NULL,
		adjustment INTEGER NOT NULL,
		note       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_adjustments_channel ON event_adjustments (channel_id, user_id)`,

	`CREATE TABLE IF NOT EXISTS event_scores (
		channel_id BIGINT NOT NULL,
		user_id    BIGINT NOT NULL,
		score      BIGINT NOT NULL,
		PRIMARY KEY (channel_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_high_scores ON event_scores (channel_id, score DESC, user_id)`,

	`CREATE TABLE IF NOT EXISTS snowflakes (
		id        BIGINT      PRIMARY KEY,
		name      TEXT,
		cached_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snowflakes_name ON snowflakes (name)`,
}

const eventPointsTable = `CREATE TABLE IF NOT EXISTS event_points (
		message_id BIGINT      PRIMARY KEY,
		user_id    BIGINT      NOT NULL,
		channel_id BIGINT      NOT NULL,
		multiplier INTEGER     NOT NULL DEFAULT 1,
		sent_at    TIMESTAMPTZ NOT NULL
	)`

// rebuildEventPoints пересобирает event_points под текущий набор колонок:
// старые версии хранили season_id и не знали про multiplier.
var rebuildEventPoints = []string{
	`ALTER TABLE event_points ADD COLUMN IF NOT EXISTS multiplier INTEGER`,
	`CREATE TEMPORARY TABLE event_points_backup ON COMMIT DROP AS
		SELECT message_id, user_id, channel_id, COALESCE(multiplier, 1) AS multiplier, sent_at
		FROM event_points`,
	`DROP TABLE event_points`,
	eventPointsTable,
	`INSERT INTO event_points (message_id, user_id, channel_id, multiplier, sent_at)
		SELECT message_id, user_id, channel_id, multiplier, sent_at FROM event_points_backup`,
	`CREATE INDEX IF NOT EXISTS idx_event_points_user ON event_points (user_id, channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_points_channel ON event_points (channel_id)`,
}
