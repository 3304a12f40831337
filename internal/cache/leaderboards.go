// Package cache хранит готовые таблицы лидеров между запросами.
// Источник истины всегда Postgres; кэш можно потерять в любой момент.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kenku-bot/crowevents/internal/models"
	"github.com/redis/go-redis/v9"
)

type Leaderboards interface {
	Get(ctx context.Context, key string) ([]models.Score, bool, error)
	Set(ctx context.Context, key string, scores []models.Score) error
	Delete(ctx context.Context, keys ...string) error
}

const keyPrefix = "crowevents:lb:"

func SeasonKey(seasonID int64) string { return fmt.Sprintf("%sseason:%d", keyPrefix, seasonID) }

func EventKey(channelID int64) string { return fmt.Sprintf("%sevent:%d", keyPrefix, channelID) }

// Nop: кэш выключен.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]models.Score, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []models.Score) error         { return nil }
func (Nop) Delete(context.Context, ...string) error                   { return nil }

// Redis: JSON-снимок таблицы под ключом с TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]models.Score, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	scores, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return scores, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, scores []models.Score) error {
	raw, err := encode(scores)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, r.ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error { return r.client.Close() }

// Memory: кэш в памяти процесса, без TTL.
type Memory struct {
	mu sync.Mutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (c *Memory) Get(_ context.Context, key string) ([]models.Score, bool, error) {
	c.mu.Lock()
	raw, ok := c.m[key]
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	scores, err := decode(raw)
	return scores, err == nil, err
}

func (c *Memory) Set(_ context.Context, key string, scores []models.Score) error {
	raw, err := encode(scores)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.m[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *Memory) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.m, k)
	}
	c.mu.Unlock()
	return nil
}

// Len: сколько ключей сейчас в кэше.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func encode(scores []models.Score) ([]byte, error) {
	if scores == nil {
		scores = []models.Score{}
	}
	return json.Marshal(scores)
}

func decode(raw []byte) ([]models.Score, error) {
	var out []models.Score
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	return out, nil
}
