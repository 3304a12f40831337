package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/kenku-bot/crowevents/internal/models"
	"github.com/lib/pq"
)

// pointFact: факт очка вместе с ценой канала (канал обязан быть настроен).
type pointFact struct {
	UserID     int64
	ChannelID  int64
	PointValue int
	Multiplier int
}

type adjustmentFact struct {
	UserID     int64
	ChannelID  int64
	Adjustment int
}

// tallyScores сворачивает факты сезона в итоги: по сезону (все каналы)
// и по одному каналу channelID. Корректировки не умножаются на point_value.
func tallyScores(points []pointFact, adjustments []adjustmentFact, channelID int64) (season, event map[int64]int64) {
	season = make(map[int64]int64)
	event = make(map[int64]int64)
	for _, p := range points {
		v := int64(p.PointValue) * int64(p.Multiplier)
		season[p.UserID] += v
		if p.ChannelID == channelID {
			event[p.UserID] += v
		}
	}
	for _, a := range adjustments {
		season[a.UserID] += int64(a.Adjustment)
		if a.ChannelID == channelID {
			event[a.UserID] += int64(a.Adjustment)
		}
	}
	return season, event
}

// sortedScores упорядочивает по убыванию счёта, затем по user_id.
func sortedScores(totals map[int64]int64) []models.Score {
	out := make([]models.Score, 0, len(totals))
	for uid, s := range totals {
		out = append(out, models.Score{UserID: uid, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// RecalculateEventScores делает полный пересчёт: все SeasonScore сезона и все
// EventScore канала заменяются целиком. Вызывать внутри транзакции,
// держащей эксклюзивную блокировку сезона.
func RecalculateEventScores(ctx context.Context, q Queryer, seasonID, channelID int64) error {
	points, err := seasonPointFacts(ctx, q, seasonID, nil)
	if err != nil {
		return err
	}
	adjs, err := seasonAdjustmentFacts(ctx, q, seasonID, nil)
	if err != nil {
		return err
	}
	season, event := tallyScores(points, adjs, channelID)

	if _, err := q.ExecContext(ctx, `DELETE FROM season_scores WHERE season_id = $1`, seasonID); err != nil {
		return fmt.Errorf("clear season scores: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM event_scores WHERE channel_id = $1`, channelID); err != nil {
		return fmt.Errorf("clear event scores: %w", err)
	}

	if len(season) > 0 {
		uids, scores := splitScores(sortedScores(season))
		if _, err := q.ExecContext(ctx, `
			INSERT INTO season_scores (season_id, user_id, score)
			SELECT $1, t.user_id, t.score
			FROM unnest($2::bigint[], $3::bigint[]) AS t(user_id, score)
		`, seasonID, pq.Array(uids), pq.Array(scores)); err != nil {
			return fmt.Errorf("insert season scores: %w", err)
		}
	}
	if len(event) > 0 {
		uids, scores := splitScores(sortedScores(event))
		if _, err := q.ExecContext(ctx, `
			INSERT INTO event_scores (channel_id, user_id, score)
			SELECT $1, t.user_id, t.score
			FROM unnest($2::bigint[], $3::bigint[]) AS t(user_id, score)
		`, channelID, pq.Array(uids), pq.Array(scores)); err != nil {
			return fmt.Errorf("insert event scores: %w", err)
		}
	}
	return nil
}

// RecalculateUserScores делает точечный пересчёт одного участника: ровно две
// строки (сезон и канал) через upsert или delete. Стоимость: O(факты участника).
func RecalculateUserScores(ctx context.Context, q Queryer, seasonID, channelID, userID int64) error {
	points, err := seasonPointFacts(ctx, q, seasonID, &userID)
	if err != nil {
		return err
	}
	adjs, err := seasonAdjustmentFacts(ctx, q, seasonID, &userID)
	if err != nil {
		return err
	}
	season, event := tallyScores(points, adjs, channelID)

	// без фактов строки быть не должно, как и после полного пересчёта
	if total, ok := season[userID]; ok {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO season_scores (season_id, user_id, score)
			VALUES ($1, $2, $3)
			ON CONFLICT (season_id, user_id) DO UPDATE SET score = EXCLUDED.score
		`, seasonID, userID, total); err != nil {
			return fmt.Errorf("upsert season score: %w", err)
		}
	} else if _, err := q.ExecContext(ctx,
		`DELETE FROM season_scores WHERE season_id = $1 AND user_id = $2`, seasonID, userID); err != nil {
		return fmt.Errorf("delete season score: %w", err)
	}

	if total, ok := event[userID]; ok {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO event_scores (channel_id, user_id, score)
			VALUES ($1, $2, $3)
			ON CONFLICT (channel_id, user_id) DO UPDATE SET score = EXCLUDED.score
		`, channelID, userID, total); err != nil {
			return fmt.Errorf("upsert event score: %w", err)
		}
	} else if _, err := q.ExecContext(ctx,
		`DELETE FROM event_scores WHERE channel_id = $1 AND user_id = $2`, channelID, userID); err != nil {
		return fmt.Errorf("delete event score: %w", err)
	}
	return nil
}

func splitScores(scores []models.Score) ([]int64, []int64) {
	uids := make([]int64, len(scores))
	vals := make([]int64, len(scores))
	for i, s := range scores {
		uids[i] = s.UserID
		vals[i] = s.Score
	}
	return uids, vals
}

// seasonPointFacts: очки в настроенных каналах сезона; userID сужает выборку.
func seasonPointFacts(ctx context.Context, q Queryer, seasonID int64, userID *int64) ([]pointFact, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.user_id, p.channel_id, c.point_value, p.multiplier
		FROM event_points p
		JOIN event_channels c ON c.channel_id = p.channel_id
		WHERE c.season_id = $1
		  AND ($2::bigint IS NULL OR p.user_id = $2)
	`, seasonID, nullableID(userID))
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []pointFact
	for rows.Next() {
		var f pointFact
		if err := rows.Scan(&f.UserID, &f.ChannelID, &f.PointValue, &f.Multiplier); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func seasonAdjustmentFacts(ctx context.Context, q Queryer, seasonID int64, userID *int64) ([]adjustmentFact, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.user_id, a.channel_id, a.adjustment
		FROM event_adjustments a
		JOIN event_channels c ON c.channel_id = a.channel_id
		WHERE c.season_id = $1
		  AND ($2::bigint IS NULL OR a.user_id = $2)
	`, seasonID, nullableID(userID))
	if err != nil {
		return nil, fmt.Errorf("load adjustments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []adjustmentFact
	for rows.Next() {
		var f adjustmentFact
		if err := rows.Scan(&f.UserID, &f.ChannelID, &f.Adjustment); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// GetSeasonScores: таблица лидеров сезона.
func GetSeasonScores(ctx context.Context, q Queryer, seasonID int64) ([]models.Score, error) {
	return queryScores(ctx, q, `
		SELECT user_id, score FROM season_scores
		WHERE season_id = $1
		ORDER BY score DESC, user_id
	`, seasonID)
}

// GetEventScores: таблица лидеров одного канала.
func GetEventScores(ctx context.Context, q Queryer, channelID int64) ([]models.Score, error) {
	return queryScores(ctx, q, `
		SELECT user_id, score FROM event_scores
		WHERE channel_id = $1
		ORDER BY score DESC, user_id
	`, channelID)
}

func queryScores(ctx context.Context, q Queryer, query string, id int64) ([]models.Score, error) {
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.Score, 0)
	for rows.Next() {
		var s models.Score
		if err := rows.Scan(&s.UserID, &s.Score); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetUserSeasonScores: разбивка счёта участника по каналам сезона.
func GetUserSeasonScores(ctx context.Context, q Queryer, seasonID, userID int64) ([]models.ChannelScore, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.channel_id, s.score
		FROM event_scores s
		JOIN event_channels c ON c.channel_id = s.channel_id
		WHERE c.season_id = $1 AND s.user_id = $2
		ORDER BY s.channel_id DESC
	`, seasonID, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.ChannelScore, 0)
	for rows.Next() {
		var s models.ChannelScore
		if err := rows.Scan(&s.ChannelID, &s.Score); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetUserSeasonScore: итог участника за сезон; 0, если строки нет.
func GetUserSeasonScore(ctx context.Context, q Queryer, seasonID, userID int64) (int64, error) {
	var score int64
	err := q.QueryRowContext(ctx, `
		SELECT score FROM season_scores WHERE season_id = $1 AND user_id = $2
	`, seasonID, userID).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return score, err
}
