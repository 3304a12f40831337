package db

import (
	"context"
	"database/sql"

	"github.com/kenku-bot/crowevents/internal/models"
)

// GetAdjustments: корректировки канала с именами из кэша, в порядке ввода.
func GetAdjustments(ctx context.Context, q Queryer, channelID int64) ([]models.AdjustmentRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.id, a.channel_id, a.user_id, a.adjustment, a.note, COALESCE(s.name, '')
		FROM event_adjustments a
		LEFT JOIN snowflakes s ON s.id = a.user_id
		WHERE a.channel_id = $1
		ORDER BY a.id
	`, channelID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.AdjustmentRow, 0)
	for rows.Next() {
		var a models.AdjustmentRow
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.UserID, &a.Amount, &a.Note, &a.UserName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetEventAdjustmentsForUser: корректировки участника в канале.
func GetEventAdjustmentsForUser(ctx context.Context, q Queryer, channelID, userID int64) ([]models.Adjustment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, channel_id, user_id, adjustment, note
		FROM event_adjustments
		WHERE channel_id = $1 AND user_id = $2
		ORDER BY id
	`, channelID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.Adjustment, 0)
	for rows.Next() {
		var a models.Adjustment
		if err := rows.Scan(&a.ID, &a.ChannelID, &a.UserID, &a.Amount, &a.Note); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAdjustments: корректировки канала заменяются целиком
// (delete-all + insert) и в той же транзакции пересчитывается сезон.
func ReplaceAdjustments(ctx context.Context, database *sql.DB, seasonID, channelID int64, adjustments []models.Adjustment) error {
	return withTx(ctx, database, func(tx *sql.Tx) error {
		if err := lockSeasonExclusive(ctx, tx, seasonID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_adjustments WHERE channel_id = $1`, channelID); err != nil {
			return err
		}

		if len(adjustments) > 0 {
			stmt, err := tx.PrepareContext(ctx, `
				INSERT INTO event_adjustments (channel_id, user_id, adjustment, note)
				VALUES ($1, $2, $3, $4)
			`)
			if err != nil {
				return err
			}
			defer func() { _ = stmt.Close() }()

			for _, a := range adjustments {
				if _, err := stmt.ExecContext(ctx, channelID, a.UserID, a.Amount, a.Note); err != nil {
					return err
				}
			}
		}
		return RecalculateEventScores(ctx, tx, seasonID, channelID)
	})
}
