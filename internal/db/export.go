package db

import (
	"context"
	"database/sql"

	"github.com/kenku-bot/crowevents/internal/models"
)

// ExportPoints: все очки гильдии с именами из кэша. Отсутствующие имена
// остаются пустыми строками.
func ExportPoints(ctx context.Context, q Queryer, guildID int64) ([]models.ExportRow, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.message_id, s.id, s.name, p.channel_id, cs.name,
		       p.user_id, us.name, c.point_value, p.sent_at
		FROM event_points p
		LEFT JOIN event_channels c ON c.channel_id = p.channel_id
		LEFT JOIN seasons s ON s.id = c.season_id
		LEFT JOIN snowflakes cs ON cs.id = p.channel_id
		LEFT JOIN snowflakes us ON us.id = p.user_id
		WHERE s.guild_id = $1
		ORDER BY p.sent_at, p.message_id
	`, guildID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.ExportRow, 0)
	for rows.Next() {
		var (
			r                               models.ExportRow
			seasonID                        sql.NullInt64
			pointValue                      sql.NullInt32
			seasonName, channelName, userNm sql.NullString
		)
		if err := rows.Scan(&r.MessageID, &seasonID, &seasonName, &r.ChannelID, &channelName,
			&r.UserID, &userNm, &pointValue, &r.SentAt); err != nil {
			return nil, err
		}
		if seasonID.Valid {
			r.SeasonID = &seasonID.Int64
		}
		if pointValue.Valid {
			v := int(pointValue.Int32)
			r.PointValue = &v
		}
		r.SeasonName = seasonName.String
		r.ChannelName = channelName.String
		r.UserName = userNm.String
		out = append(out, r)
	}
	return out, rows.Err()
}
