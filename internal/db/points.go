package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kenku-bot/crowevents/internal/models"
)

const upsertPoint = `
	INSERT INTO event_points (message_id, user_id, channel_id, multiplier, sent_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (message_id) DO UPDATE SET multiplier = EXCLUDED.multiplier
`

// RecordPoint: upsert по message_id (повторная оценка меняет multiplier,
// а не добавляет очко) и точечный пересчёт автора.
func RecordPoint(ctx context.Context, database *sql.DB, seasonID int64, p models.Point) error {
	if p.Multiplier <= 0 {
		return fmt.Errorf("record point %d: multiplier must be positive, got %d", p.MessageID, p.Multiplier)
	}
	return withTx(ctx, database, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, seasonID, p.UserID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertPoint,
			p.MessageID, p.UserID, p.ChannelID, p.Multiplier, p.SentAt); err != nil {
			return err
		}
		return RecalculateUserScores(ctx, tx, seasonID, p.ChannelID, p.UserID)
	})
}

// InsertPoint делает upsert без пересчёта. Только для rescan, итоги канала
// пересчитываются один раз в конце.
func InsertPoint(ctx context.Context, database *sql.DB, p models.Point) error {
	if p.Multiplier <= 0 {
		return fmt.Errorf("insert point %d: multiplier must be positive, got %d", p.MessageID, p.Multiplier)
	}
	_, err := database.ExecContext(ctx, upsertPoint,
		p.MessageID, p.UserID, p.ChannelID, p.Multiplier, p.SentAt)
	return err
}

// RemovePoint: удаляет очко сообщения и пересчитывает автора.
// Отсутствующее очко не ошибка.
func RemovePoint(ctx context.Context, database *sql.DB, messageID, userID, seasonID, channelID int64) error {
	return withTx(ctx, database, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, seasonID, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_points WHERE message_id = $1`, messageID); err != nil {
			return err
		}
		return RecalculateUserScores(ctx, tx, seasonID, channelID, userID)
	})
}

// ClearChannelPoints удаляет все очки канала без пересчёта итогов.
func ClearChannelPoints(ctx context.Context, database *sql.DB, channelID int64) (int64, error) {
	res, err := database.ExecContext(ctx, `DELETE FROM event_points WHERE channel_id = $1`, channelID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetEventPointsForUser: очки участника в канале с текущей ценой канала.
func GetEventPointsForUser(ctx context.Context, q Queryer, channelID, userID int64) ([]models.UserPoint, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.message_id, p.user_id, p.channel_id, p.multiplier, p.sent_at, c.point_value
		FROM event_points p
		JOIN event_channels c ON c.channel_id = p.channel_id
		WHERE p.channel_id = $1 AND p.user_id = $2
		ORDER BY p.sent_at, p.message_id
	`, channelID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.UserPoint, 0)
	for rows.Next() {
		var p models.UserPoint
		if err := rows.Scan(&p.MessageID, &p.UserID, &p.ChannelID, &p.Multiplier, &p.SentAt, &p.PointValue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPoint: очко сообщения; nil, если сообщение не засчитано.
func GetPoint(ctx context.Context, q Queryer, messageID int64) (*models.Point, error) {
	var p models.Point
	err := q.QueryRowContext(ctx, `
		SELECT message_id, user_id, channel_id, multiplier, sent_at
		FROM event_points WHERE message_id = $1
	`, messageID).Scan(&p.MessageID, &p.UserID, &p.ChannelID, &p.Multiplier, &p.SentAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
