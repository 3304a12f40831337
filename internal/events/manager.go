// Package events содержит доменный слой конкурса: сезон гильдии, каналы-события,
// запись очков, таблицы лидеров, корректировки из CSV и пересканирование канала.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kenku-bot/crowevents/internal/cache"
	"github.com/kenku-bot/crowevents/internal/ctxutil"
	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/metrics"
	"github.com/kenku-bot/crowevents/internal/models"
)

// DefaultSeasonName: имя единственного сезона гильдии.
const DefaultSeasonName = "Season 1"

type Manager struct {
	db      *sql.DB
	log     *zap.Logger
	cache   cache.Leaderboards
	now     func() time.Time
	rescan  RescanOptions
	weights Weights

	seasons singleflight.Group

	mu     sync.Mutex
	active *RescanTask
}

type Option func(*Manager)

func WithCache(c cache.Leaderboards) Option {
	return func(m *Manager) {
		if c != nil {
			m.cache = c
		}
	}
}

func WithRescanOptions(o RescanOptions) Option {
	return func(m *Manager) { m.rescan = o.withDefaults() }
}

// WithWeights задаёт веса реакций; пустой набор оставляет DefaultWeights.
func WithWeights(w Weights) Option {
	return func(m *Manager) {
		if len(w) > 0 {
			m.weights = w.clone()
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(database *sql.DB, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		db:      database,
		log:     log,
		cache:   cache.Nop{},
		now:     time.Now,
		rescan:  RescanOptions{}.withDefaults(),
		weights: DefaultWeights(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// DefaultSeason возвращает сезон гильдии, при первом обращении создаёт "Season 1".
// Параллельные вызовы в процессе схлопываются, между процессами гонку
// разруливает уникальный ключ (name, guild_id).
func (m *Manager) DefaultSeason(ctx context.Context, guildID int64) (*models.Season, error) {
	v, err, _ := m.seasons.Do(strconv.FormatInt(guildID, 10), func() (any, error) {
		// результат общий для всех ждущих, поэтому отмена первого вызова его не прерывает
		ctx, cancel := ctxutil.WithDBTimeout(context.WithoutCancel(ctx))
		defer cancel()

		seasons, err := db.GetSeasons(ctx, m.db, guildID)
		if err != nil {
			return nil, err
		}
		if len(seasons) > 0 {
			return &seasons[0], nil
		}
		s, created, err := db.CreateSeason(ctx, m.db, DefaultSeasonName, guildID, m.now().UTC())
		if err != nil {
			return nil, err
		}
		if created {
			m.log.Info("season created", zap.Int64("guild_id", guildID), zap.Int64("season_id", s.ID))
		}
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("default season for guild %d: %w", guildID, err)
	}
	s := *v.(*models.Season)
	return &s, nil
}

// FindSeason: сезон гильдии без создания; nil, если его ещё нет.
func (m *Manager) FindSeason(ctx context.Context, guildID int64) (*models.Season, error) {
	seasons, err := db.GetSeasons(ctx, m.db, guildID)
	if err != nil {
		return nil, fmt.Errorf("db.GetSeasons: %w", err)
	}
	if len(seasons) == 0 {
		return nil, nil
	}
	return &seasons[0], nil
}

// ConfigureChannel включает канал в конкурс с ценой pointValue или, при 0,
// выключает. Любое изменение пересчитывает итоги канала и сезона.
func (m *Manager) ConfigureChannel(ctx context.Context, ch ChannelRef, pointValue int) error {
	if pointValue < 0 {
		return fmt.Errorf("configure channel %d: point value must not be negative", ch.ID)
	}
	ctx = ctxutil.WithChannelID(ctxutil.WithOp(ctx, "configure_channel"), ch.ID)

	seasonID, err := m.channelSeason(ctx, ch.ID, ch.GuildID)
	if err != nil {
		return err
	}

	ctx, cancel := ctxutil.WithTimeout(ctx, ctxutil.RecalcTimeout)
	defer cancel()
	defer metrics.ObserveRecalc("full", time.Now())

	if pointValue == 0 {
		if err := db.RemoveChannel(ctx, m.db, ch.ID, seasonID); err != nil {
			return fmt.Errorf("db.RemoveChannel: %w", err)
		}
		m.log.Info("channel removed", ctxutil.Fields(ctx)...)
	} else {
		if err := db.ConfigureChannel(ctx, m.db, ch.ID, seasonID, pointValue); err != nil {
			return fmt.Errorf("db.ConfigureChannel: %w", err)
		}
		m.log.Info("channel configured", append(ctxutil.Fields(ctx), zap.Int("point_value", pointValue))...)
		m.rememberNames(ctx, map[int64]string{ch.ID: ch.Name})
	}
	m.invalidate(ctx, seasonID, ch.ID)
	return nil
}

// channelSeason: сезон, к которому уже привязан канал, иначе сезон гильдии.
func (m *Manager) channelSeason(ctx context.Context, channelID, guildID int64) (int64, error) {
	existing, err := db.GetChannel(ctx, m.db, channelID)
	if err != nil {
		return 0, fmt.Errorf("db.GetChannel: %w", err)
	}
	if existing != nil {
		return existing.SeasonID, nil
	}
	season, err := m.DefaultSeason(ctx, guildID)
	if err != nil {
		return 0, err
	}
	return season.ID, nil
}

// GetChannel: настройка канала; nil, если канал не событие.
func (m *Manager) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	return db.GetChannel(ctx, m.db, channelID)
}

// GetSeasonChannels: сезон гильдии и его каналы.
func (m *Manager) GetSeasonChannels(ctx context.Context, guildID int64) (*models.Season, []models.Channel, error) {
	season, err := m.DefaultSeason(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	channels, err := db.GetSeasonChannels(ctx, m.db, season.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("db.GetSeasonChannels: %w", err)
	}
	return season, channels, nil
}

// ClearChannelPoints удаляет очки канала без пересчёта. Обычно вместо этого
// нужен StartRescan, который сам чистит и пересчитывает.
func (m *Manager) ClearChannelPoints(ctx context.Context, channelID int64) (int64, error) {
	n, err := db.ClearChannelPoints(ctx, m.db, channelID)
	if err != nil {
		return 0, fmt.Errorf("db.ClearChannelPoints: %w", err)
	}
	return n, nil
}

// SetPoints записывает оценку сообщения. score=0 снимает очко; ненулевая
// оценка в канале, который не является событием, игнорируется.
// true: только если очко записано.
func (m *Manager) SetPoints(ctx context.Context, msg Message, score int) (bool, error) {
	if score < 0 {
		return false, ErrNegativeScore
	}
	ctx = ctxutil.WithChannelID(ctxutil.WithGuildID(ctxutil.WithOp(ctx, "set_points"), msg.GuildID), msg.ChannelID)

	ch, err := db.GetChannel(ctx, m.db, msg.ChannelID)
	if err != nil {
		return false, fmt.Errorf("db.GetChannel: %w", err)
	}

	if score == 0 {
		var seasonID int64
		if ch != nil {
			seasonID = ch.SeasonID
		} else {
			season, err := m.DefaultSeason(ctx, msg.GuildID)
			if err != nil {
				return false, err
			}
			seasonID = season.ID
		}
		start := time.Now()
		if err := db.RemovePoint(ctx, m.db, msg.ID, msg.AuthorID, seasonID, msg.ChannelID); err != nil {
			return false, fmt.Errorf("db.RemovePoint: %w", err)
		}
		metrics.ObserveRecalc("user", start)
		metrics.PointWrites.WithLabelValues("remove").Inc()
		m.invalidate(ctx, seasonID, msg.ChannelID)
		return false, nil
	}

	if ch == nil {
		metrics.PointWrites.WithLabelValues("skip").Inc()
		m.log.Debug("message in a non-event channel", append(ctxutil.Fields(ctx), zap.Int64("message_id", msg.ID))...)
		return false, nil
	}

	start := time.Now()
	err = db.RecordPoint(ctx, m.db, ch.SeasonID, models.Point{
		MessageID:  msg.ID,
		UserID:     msg.AuthorID,
		ChannelID:  msg.ChannelID,
		Multiplier: score,
		SentAt:     msg.SentAt,
	})
	if err != nil {
		return false, fmt.Errorf("db.RecordPoint: %w", err)
	}
	metrics.ObserveRecalc("user", start)
	metrics.PointWrites.WithLabelValues("record").Inc()

	m.rememberNames(ctx, map[int64]string{msg.AuthorID: msg.AuthorName, msg.ChannelID: msg.ChannelName})
	m.invalidate(ctx, ch.SeasonID, msg.ChannelID)
	return true, nil
}

// GetSeasonLeaderboard: сезон гильдии и его таблица лидеров.
func (m *Manager) GetSeasonLeaderboard(ctx context.Context, guildID int64) (*models.Season, []models.Score, error) {
	season, err := m.DefaultSeason(ctx, guildID)
	if err != nil {
		return nil, nil, err
	}
	scores, err := m.cachedScores(ctx, cache.SeasonKey(season.ID), func() ([]models.Score, error) {
		return db.GetSeasonScores(ctx, m.db, season.ID)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("db.GetSeasonScores: %w", err)
	}
	return season, scores, nil
}

// GetEventLeaderboard: таблица лидеров канала; ok=false, если канал не событие.
func (m *Manager) GetEventLeaderboard(ctx context.Context, channelID int64) ([]models.Score, bool, error) {
	ch, err := db.GetChannel(ctx, m.db, channelID)
	if err != nil {
		return nil, false, fmt.Errorf("db.GetChannel: %w", err)
	}
	if ch == nil {
		return nil, false, nil
	}
	scores, err := m.cachedScores(ctx, cache.EventKey(channelID), func() ([]models.Score, error) {
		return db.GetEventScores(ctx, m.db, channelID)
	})
	if err != nil {
		return nil, false, fmt.Errorf("db.GetEventScores: %w", err)
	}
	return scores, true, nil
}

// UserSeasonInfo: вклад участника по каналам сезона.
type UserSeasonInfo struct {
	Season   *models.Season
	Channels []models.ChannelScore
	Total    int64
}

func (m *Manager) UserInfo(ctx context.Context, guildID, userID int64) (*UserSeasonInfo, error) {
	season, err := m.DefaultSeason(ctx, guildID)
	if err != nil {
		return nil, err
	}
	channels, err := db.GetUserSeasonScores(ctx, m.db, season.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("db.GetUserSeasonScores: %w", err)
	}
	total, err := db.GetUserSeasonScore(ctx, m.db, season.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("db.GetUserSeasonScore: %w", err)
	}
	return &UserSeasonInfo{Season: season, Channels: channels, Total: total}, nil
}

// UserEventInfo: из чего сложился счёт участника в канале.
type UserEventInfo struct {
	Points      []models.UserPoint
	Adjustments []models.Adjustment
	Total       int64
}

// UserEventInfo: ok=false, если канал не событие.
func (m *Manager) UserEventInfo(ctx context.Context, channelID, userID int64) (*UserEventInfo, bool, error) {
	ch, err := db.GetChannel(ctx, m.db, channelID)
	if err != nil {
		return nil, false, fmt.Errorf("db.GetChannel: %w", err)
	}
	if ch == nil {
		return nil, false, nil
	}
	points, err := db.GetEventPointsForUser(ctx, m.db, channelID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("db.GetEventPointsForUser: %w", err)
	}
	adjs, err := db.GetEventAdjustmentsForUser(ctx, m.db, channelID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("db.GetEventAdjustmentsForUser: %w", err)
	}
	info := &UserEventInfo{Points: points, Adjustments: adjs}
	for _, p := range points {
		info.Total += p.Value()
	}
	for _, a := range adjs {
		info.Total += int64(a.Amount)
	}
	return info, true, nil
}

// RecalculateAll: полный пересчёт всех каналов всех сезонов. Сводит итоги
// к фактам, даже если rescan был прерван падением процесса.
func (m *Manager) RecalculateAll(ctx context.Context) error {
	ctx = ctxutil.WithOp(ctx, "recalculate_all")
	channels, err := db.ListAllChannels(ctx, m.db)
	if err != nil {
		return fmt.Errorf("db.ListAllChannels: %w", err)
	}
	var errs []error
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		rctx, cancel := ctxutil.WithTimeout(ctx, ctxutil.RecalcTimeout)
		err := db.RecalculateChannel(rctx, m.db, ch.SeasonID, ch.ChannelID)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", ch.ChannelID, err))
			continue
		}
		metrics.ObserveRecalc("full", start)
		m.invalidate(ctx, ch.SeasonID, ch.ChannelID)
	}
	m.log.Debug("recalculated", zap.Int("channels", len(channels)), zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

func (m *Manager) cachedScores(ctx context.Context, key string, load func() ([]models.Score, error)) ([]models.Score, error) {
	scores, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		m.log.Warn("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return scores, nil
	}
	scores, err = load()
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, key, scores); err != nil {
		m.log.Warn("leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
	return scores, nil
}

func (m *Manager) invalidate(ctx context.Context, seasonID int64, channelIDs ...int64) {
	keys := []string{cache.SeasonKey(seasonID)}
	for _, id := range channelIDs {
		keys = append(keys, cache.EventKey(id))
	}
	if err := m.cache.Delete(context.WithoutCancel(ctx), keys...); err != nil {
		m.log.Warn("leaderboard cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// rememberNames обновляет кэш имён. Ошибки не мешают начислению.
func (m *Manager) rememberNames(ctx context.Context, names map[int64]string) {
	for id, n := range names {
		if n == "" || id == 0 {
			delete(names, id)
		}
	}
	if err := db.UpdateSnowflakes(ctx, m.db, names); err != nil {
		m.log.Warn("name cache update failed", append(ctxutil.Fields(ctx), zap.Error(err))...)
	}
}
