package events

import (
	"context"
	"fmt"
	"io"

	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/export"
)

// ExportPoints пишет все очки гильдии в CSV и возвращает число строк.
func (m *Manager) ExportPoints(ctx context.Context, guildID int64, w io.Writer) (int, error) {
	rows, err := db.ExportPoints(ctx, m.db, guildID)
	if err != nil {
		return 0, fmt.Errorf("db.ExportPoints: %w", err)
	}
	return len(rows), WriteExport(w, rows)
}

// ExportPointsXLSX: та же выгрузка книгой Excel плюс лист с таблицей лидеров сезона.
func (m *Manager) ExportPointsXLSX(ctx context.Context, guildID int64, w io.Writer) error {
	rows, err := db.ExportPoints(ctx, m.db, guildID)
	if err != nil {
		return fmt.Errorf("db.ExportPoints: %w", err)
	}
	_, board, err := m.GetSeasonLeaderboard(ctx, guildID)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(board))
	for _, s := range board {
		ids = append(ids, s.UserID)
	}
	names, err := db.GetSnowflakeNames(ctx, m.db, ids)
	if err != nil {
		return fmt.Errorf("db.GetSnowflakeNames: %w", err)
	}

	wb, err := export.NewPointsWorkbook(rows, board, names)
	if err != nil {
		return err
	}
	defer func() { _ = wb.Close() }()
	return wb.Write(w)
}
