package events

import (
	"context"
	"time"
)

// Message: то, что ядру нужно знать о сообщении платформы.
type Message struct {
	ID          int64
	AuthorID    int64
	AuthorName  string // "name#discriminator" или отображаемое имя
	ChannelID   int64
	ChannelName string
	GuildID     int64
	SentAt      time.Time
}

// ChannelRef: канал платформы.
type ChannelRef struct {
	ID      int64
	Name    string
	GuildID int64
}

// User: найденный пользователь платформы.
type User struct {
	ID   int64
	Name string
}

// UserResolver ищет пользователей гильдии. Ошибка означает «не нашли».
type UserResolver interface {
	ResolveUser(ctx context.Context, guildID int64, name string) (User, error)
	LookupUser(ctx context.Context, guildID, userID int64) (User, error)
}

// History: итератор истории канала, от новых сообщений к старым.
// Scan останавливается на первой ошибке fn или ctx.
type History interface {
	Scan(ctx context.Context, limit int, fn func(Message) error) error
}

// ScoreFunc возвращает multiplier сообщения (0: не засчитывать).
type ScoreFunc func(ctx context.Context, msg Message) (int, error)
