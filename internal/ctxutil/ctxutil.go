package ctxutil

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// приватные ключи, чтобы исключить коллизии
type key int

const (
	keyGuildID key = iota
	keyChannelID
	keyOpName
)

// WithGuildID /GuildID: гильдия, в контексте которой идёт операция
func WithGuildID(ctx context.Context, guildID int64) context.Context {
	return context.WithValue(ctx, keyGuildID, guildID)
}

func GuildID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(keyGuildID).(int64)
	return id, ok
}

// WithChannelID /ChannelID: канал события
func WithChannelID(ctx context.Context, channelID int64) context.Context {
	return context.WithValue(ctx, keyChannelID, channelID)
}

func ChannelID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(keyChannelID).(int64)
	return id, ok
}

// WithOp /Op: имя операции (для логов)
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(keyOpName).(string)
	return s, ok
}

// Fields собирает из контекста поля для zap.
func Fields(ctx context.Context) []zap.Field {
	var out []zap.Field
	if op, ok := Op(ctx); ok {
		out = append(out, zap.String("op", op))
	}
	if id, ok := GuildID(ctx); ok {
		out = append(out, zap.Int64("guild_id", id))
	}
	if id, ok := ChannelID(ctx); ok {
		out = append(out, zap.Int64("channel_id", id))
	}
	return out
}

var (
	DefaultDBTimeout = 5 * time.Second
	// полный пересчёт сезона может идти заметно дольше точечного
	RecalcTimeout = 2 * time.Minute
)

// WithTimeout оборачивает context.WithTimeout; при d<=0 таймаута нет.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout: стандартный таймаут для БД; если у родителя осталось
// меньше, берём остаток.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok && time.Until(dl) < DefaultDBTimeout {
		return context.WithDeadline(parent, dl)
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}
