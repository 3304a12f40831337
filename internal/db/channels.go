package db

import (
	"context"
	"database/sql"

	"github.com/kenku-bot/crowevents/internal/models"
)

// GetChannel: настройка канала; nil, если канал не участвует в конкурсе.
func GetChannel(ctx context.Context, q Queryer, channelID int64) (*models.Channel, error) {
	var c models.Channel
	err := q.QueryRowContext(ctx, `
		SELECT channel_id, season_id, point_value FROM event_channels WHERE channel_id = $1
	`, channelID).Scan(&c.ChannelID, &c.SeasonID, &c.PointValue)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetSeasonChannels: все каналы сезона.
func GetSeasonChannels(ctx context.Context, q Queryer, seasonID int64) ([]models.Channel, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT channel_id, season_id, point_value
		FROM event_channels
		WHERE season_id = $1
		ORDER BY channel_id
	`, seasonID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.Channel, 0)
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ChannelID, &c.SeasonID, &c.PointValue); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConfigureChannel делает upsert канала и полный пересчёт, point_value
// действует ретроактивно на все прошлые очки канала.
func ConfigureChannel(ctx context.Context, database *sql.DB, channelID, seasonID int64, pointValue int) error {
	return withTx(ctx, database, func(tx *sql.Tx) error {
		if err := lockSeasonExclusive(ctx, tx, seasonID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_channels (channel_id, season_id, point_value)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id) DO UPDATE SET point_value = EXCLUDED.point_value
		`, channelID, seasonID, pointValue); err != nil {
			return err
		}
		return RecalculateEventScores(ctx, tx, seasonID, channelID)
	})
}

// RemoveChannel: канал выходит из конкурса, его вклад пропадает из итогов.
// Сами очки не удаляются, их отсекает join.
func RemoveChannel(ctx context.Context, database *sql.DB, channelID, seasonID int64) error {
	return withTx(ctx, database, func(tx *sql.Tx) error {
		if err := lockSeasonExclusive(ctx, tx, seasonID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_channels WHERE channel_id = $1`, channelID); err != nil {
			return err
		}
		return RecalculateEventScores(ctx, tx, seasonID, channelID)
	})
}

// RecalculateChannel: полный пересчёт канала отдельной транзакцией
// (конец rescan, сверка по расписанию).
func RecalculateChannel(ctx context.Context, database *sql.DB, seasonID, channelID int64) error {
	return withTx(ctx, database, func(tx *sql.Tx) error {
		if err := lockSeasonExclusive(ctx, tx, seasonID); err != nil {
			return err
		}
		return RecalculateEventScores(ctx, tx, seasonID, channelID)
	})
}

// ListAllChannels: каналы всех сезонов (для сверки итогов).
func ListAllChannels(ctx context.Context, database *sql.DB) ([]models.Channel, error) {
	rows, err := database.QueryContext(ctx, `
		SELECT channel_id, season_id, point_value FROM event_channels ORDER BY season_id, channel_id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Channel
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ChannelID, &c.SeasonID, &c.PointValue); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
