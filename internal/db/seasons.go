package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/kenku-bot/crowevents/internal/ctxutil"
	"github.com/kenku-bot/crowevents/internal/models"
)

// GetSeasons: сезоны гильдии в порядке создания.
func GetSeasons(ctx context.Context, database *sql.DB, guildID int64) ([]models.Season, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT id, name, guild_id, start_at, end_at
		FROM seasons
		WHERE guild_id = $1
		ORDER BY id
	`, guildID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Season
	for rows.Next() {
		var s models.Season
		if err := rows.Scan(&s.ID, &s.Name, &s.GuildID, &s.StartAt, &s.EndAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSeason: сезон по id; nil, если такого нет.
func GetSeason(ctx context.Context, database *sql.DB, seasonID int64) (*models.Season, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var s models.Season
	err := database.QueryRowContext(ctx, `
		SELECT id, name, guild_id, start_at, end_at FROM seasons WHERE id = $1
	`, seasonID).Scan(&s.ID, &s.Name, &s.GuildID, &s.StartAt, &s.EndAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSeason: get-or-create по (name, guild_id). Конфликт уникальности
// не ошибка: возвращается уже существующий сезон, created=false.
func CreateSeason(ctx context.Context, database *sql.DB, name string, guildID int64, startAt time.Time) (*models.Season, bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var s models.Season
	err := database.QueryRowContext(ctx, `
		INSERT INTO seasons (name, guild_id, start_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, guild_id) DO NOTHING
		RETURNING id, name, guild_id, start_at, end_at
	`, name, guildID, startAt).Scan(&s.ID, &s.Name, &s.GuildID, &s.StartAt, &s.EndAt)
	switch {
	case err == nil:
		return &s, true, nil
	case err != sql.ErrNoRows && !IsUniqueViolation(err):
		return nil, false, err
	}

	// кто-то успел раньше, перечитываем
	err = database.QueryRowContext(ctx, `
		SELECT id, name, guild_id, start_at, end_at
		FROM seasons WHERE name = $1 AND guild_id = $2
	`, name, guildID).Scan(&s.ID, &s.Name, &s.GuildID, &s.StartAt, &s.EndAt)
	if err != nil {
		return nil, false, err
	}
	return &s, false, nil
}
