package models

import "time"

// Season: соревновательный период внутри одной гильдии.
// Уникален по паре (Name, GuildID); после создания меняется только EndAt.
type Season struct {
	ID      int64      `db:"id"`
	Name    string     `db:"name"`
	GuildID int64      `db:"guild_id"`
	StartAt time.Time  `db:"start_at"`
	EndAt   *time.Time `db:"end_at"`
}

// Channel: канал, включённый в конкурс сезона.
type Channel struct {
	ChannelID  int64 `db:"channel_id"`
	SeasonID   int64 `db:"season_id"`
	PointValue int   `db:"point_value"`
}

// Snowflake: кэш отображаемого имени пользователя/канала.
type Snowflake struct {
	ID       int64     `db:"id"`
	Name     string    `db:"name"`
	CachedAt time.Time `db:"cached_at"`
}
