package models

import "time"

// Point: засчитанное сообщение. Один message_id даёт не больше одного Point.
type Point struct {
	MessageID  int64     `db:"message_id"`
	UserID     int64     `db:"user_id"`
	ChannelID  int64     `db:"channel_id"`
	Multiplier int       `db:"multiplier"`
	SentAt     time.Time `db:"sent_at"`
}

// UserPoint: Point вместе с ценой канала, как его видит участник.
type UserPoint struct {
	Point
	PointValue int `db:"point_value"`
}

// Value возвращает вклад сообщения в счёт, point_value × multiplier.
func (p UserPoint) Value() int64 {
	return int64(p.PointValue) * int64(p.Multiplier)
}

// Adjustment: ручная корректировка счёта в канале. Note может отсутствовать.
type Adjustment struct {
	ID        int64   `db:"id"`
	ChannelID int64   `db:"channel_id"`
	UserID    int64   `db:"user_id"`
	Amount    int     `db:"adjustment"`
	Note      *string `db:"note"`
}

// AdjustmentRow: корректировка с именем из кэша (для выгрузки в CSV).
type AdjustmentRow struct {
	Adjustment
	UserName string `db:"user_name"`
}

// Score: строка таблицы лидеров.
type Score struct {
	UserID int64 `db:"user_id" json:"user_id"`
	Score  int64 `db:"score" json:"score"`
}

// ChannelScore: счёт участника в одном канале сезона.
type ChannelScore struct {
	ChannelID int64 `db:"channel_id" json:"channel_id"`
	Score     int64 `db:"score" json:"score"`
}

// ExportRow: строка выгрузки всех очков гильдии.
// Имена и сезон могут быть пустыми, если в кэше нет записи.
type ExportRow struct {
	MessageID   int64
	SeasonID    *int64
	SeasonName  string
	ChannelID   int64
	ChannelName string
	UserID      int64
	UserName    string
	PointValue  *int
	SentAt      time.Time
}
