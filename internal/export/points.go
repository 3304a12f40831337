package export

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kenku-bot/crowevents/internal/models"
)

var pointsHeader = []string{"message_id", "season_id", "season_name", "channel_id", "channel_name",
	"user_id", "user_name", "point_value", "sent_at"}

// NewPointsWorkbook: лист Points (те же колонки, что в CSV-выгрузке)
// и лист Leaderboard сезона. names: имена участников из кэша.
func NewPointsWorkbook(points []models.ExportRow, leaderboard []models.Score, names map[int64]string) (*Workbook, error) {
	pointRows := make([][]any, 0, len(points))
	for _, p := range points {
		var seasonID, pointValue any = "", ""
		if p.SeasonID != nil {
			seasonID = *p.SeasonID
		}
		if p.PointValue != nil {
			pointValue = *p.PointValue
		}
		pointRows = append(pointRows, []any{
			idText(p.MessageID), seasonID, p.SeasonName, idText(p.ChannelID), p.ChannelName,
			idText(p.UserID), p.UserName, pointValue, p.SentAt.UTC().Format(time.RFC3339),
		})
	}

	boardRows := make([][]any, 0, len(leaderboard))
	for i, s := range leaderboard {
		boardRows = append(boardRows, []any{i + 1, idText(s.UserID), names[s.UserID], s.Score})
	}

	return NewWorkbook([]SheetSpec{
		{Title: "Points", Header: pointsHeader, Rows: pointRows},
		{Title: "Leaderboard", Header: []string{"rank", "user_id", "user_name", "score"}, Rows: boardRows},
	})
}

// snowflake длиннее 15 знаков, числом Excel его округлит
func idText(id int64) string {
	return strconv.FormatInt(id, 10)
}

var invalidFileRe = regexp.MustCompile(`[\\/:*?"<>|]+`)

// PointsFilename: имя файла выгрузки, безопасное для любой ФС.
func PointsFilename(guildName string, at time.Time) string {
	base := strings.TrimSpace(guildName)
	if base == "" {
		base = "guild"
	}
	base = strings.Join(strings.Fields(base), " ")
	base = invalidFileRe.ReplaceAllString(base, "_")
	return base + " points " + at.Format("2006-01-02") + ".xlsx"
}
