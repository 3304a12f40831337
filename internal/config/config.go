package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	RedisURL    string // пусто: без кэша лидербордов
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string

	RescanLimit    int           // сколько последних сообщений смотрит rescan
	RescanBatch    int           // прогресс и пауза каждые N сообщений
	RescanPause    time.Duration // пауза между пачками
	ReconcileEvery time.Duration // 0: сверка итогов выключена
	LeaderboardTTL time.Duration

	WeightsFile string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("ENV", "dev"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		WeightsFile: os.Getenv("REACTION_WEIGHTS_FILE"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL: required")
	}

	var err error
	if cfg.RescanLimit, err = getInt("RESCAN_LIMIT", 1000); err != nil {
		return nil, err
	}
	if cfg.RescanBatch, err = getInt("RESCAN_BATCH", 100); err != nil {
		return nil, err
	}
	if cfg.RescanPause, err = getDuration("RESCAN_PAUSE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileEvery, err = getDuration("RECONCILE_EVERY", time.Hour); err != nil {
		return nil, err
	}
	if cfg.LeaderboardTTL, err = getDuration("LEADERBOARD_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RescanLimit <= 0 || cfg.RescanBatch <= 0 {
		return nil, fmt.Errorf("RESCAN_LIMIT and RESCAN_BATCH must be positive")
	}
	return cfg, nil
}

// LoadWeights читает YAML вида
//
//	weights:
//	  "🧩": 1
//	  "🍒": 2
func LoadWeights(path string) (map[string]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("weights file: %w", err)
	}
	var doc struct {
		Weights map[string]int `yaml:"weights"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("weights file %s: %w", path, err)
	}
	if len(doc.Weights) == 0 {
		return nil, fmt.Errorf("weights file %s: no weights", path)
	}
	for name, w := range doc.Weights {
		if w < 0 {
			return nil, fmt.Errorf("weights file %s: negative weight for %q", path, name)
		}
	}
	return doc.Weights, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
