package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kenku-bot/crowevents/internal/ctxutil"
	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/metrics"
	"github.com/kenku-bot/crowevents/internal/models"
	"github.com/kenku-bot/crowevents/internal/observability"
)

type RescanOptions struct {
	Limit int           // сколько последних сообщений смотреть
	Batch int           // прогресс каждые Batch сообщений
	Pause time.Duration // пауза на каждые Batch сообщений; 0: без ограничения
}

func (o RescanOptions) withDefaults() RescanOptions {
	if o.Limit <= 0 {
		o.Limit = 1000
	}
	if o.Batch <= 0 {
		o.Batch = 100
	}
	if o.Pause < 0 {
		o.Pause = 0
	}
	return o
}

func (o RescanOptions) limiter() *rate.Limiter {
	if o.Pause == 0 {
		return rate.NewLimiter(rate.Inf, o.Batch)
	}
	return rate.NewLimiter(rate.Every(o.Pause/time.Duration(o.Batch)), o.Batch)
}

type RescanState int

const (
	RescanIdle RescanState = iota
	RescanClearing
	RescanIngesting
	RescanRecomputing
	RescanDone
)

func (s RescanState) String() string {
	switch s {
	case RescanClearing:
		return "clearing"
	case RescanIngesting:
		return "ingesting"
	case RescanRecomputing:
		return "recomputing"
	case RescanDone:
		return "done"
	default:
		return "idle"
	}
}

// RescanProgress: снимок состояния rescan для колбэка прогресса.
type RescanProgress struct {
	TaskID    uuid.UUID
	ChannelID int64
	State     RescanState
	Cleared   int64 // сколько очков удалено перед сканом
	Scanned   int
	Scored    int
	Failed    int
}

// RescanTask: хэндл запущенного rescan.
type RescanTask struct {
	ID        uuid.UUID
	ChannelID int64

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	progress RescanProgress
	err      error
}

// Cancel прерывает приём сообщений; итоговый пересчёт всё равно выполняется.
func (t *RescanTask) Cancel() { t.cancel() }

func (t *RescanTask) Done() <-chan struct{} { return t.done }

// Wait ждёт окончания rescan и возвращает итог.
func (t *RescanTask) Wait(ctx context.Context) (RescanProgress, error) {
	select {
	case <-ctx.Done():
		return t.Progress(), ctx.Err()
	case <-t.done:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress, t.err
}

func (t *RescanTask) Progress() RescanProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *RescanTask) update(fn func(p *RescanProgress)) RescanProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.progress)
	return t.progress
}

// ActiveRescan: текущий rescan или nil.
func (m *Manager) ActiveRescan() *RescanTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// StartRescan заново выводит очки канала из истории сообщений:
// очки канала удаляются, каждое сообщение из history оценивается score,
// в конце итоги канала и сезона пересчитываются один раз. Одновременно
// идёт не больше одного rescan на Manager, второй получает ErrRescanInProgress.
// onProgress (может быть nil) вызывается при смене состояния и каждые Batch сообщений.
func (m *Manager) StartRescan(ctx context.Context, ch ChannelRef, history History, score ScoreFunc, onProgress func(RescanProgress)) (*RescanTask, error) {
	if history == nil || score == nil {
		return nil, errors.New("rescan: history and score are required")
	}
	conf, err := db.GetChannel(ctx, m.db, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("db.GetChannel: %w", err)
	}
	if conf == nil {
		return nil, ErrNotConfigured
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil, ErrRescanInProgress
	}
	// задача живёт дольше запроса, который её запустил
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := &RescanTask{
		ID:        uuid.New(),
		ChannelID: ch.ID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	task.progress = RescanProgress{TaskID: task.ID, ChannelID: ch.ID, State: RescanIdle}
	m.active = task
	m.mu.Unlock()

	if onProgress == nil {
		onProgress = func(RescanProgress) {}
	}
	metrics.RescansActive.Inc()
	go m.runRescan(runCtx, task, *conf, ch, history, score, onProgress)
	return task, nil
}

func (m *Manager) runRescan(ctx context.Context, task *RescanTask, conf models.Channel, ch ChannelRef,
	history History, score ScoreFunc, onProgress func(RescanProgress)) {
	log := m.log.With(zap.String("task_id", task.ID.String()), zap.Int64("channel_id", ch.ID))
	ctx = ctxutil.WithChannelID(ctxutil.WithOp(ctx, "rescan"), ch.ID)

	var runErr error
	defer func() {
		task.cancel()
		task.mu.Lock()
		task.err = runErr
		task.progress.State = RescanDone
		final := task.progress
		task.mu.Unlock()

		m.mu.Lock()
		m.active = nil
		m.mu.Unlock()
		metrics.RescansActive.Dec()
		onProgress(final)
		close(task.done)
		log.Info("rescan finished", zap.Int("scanned", final.Scanned), zap.Int("scored", final.Scored),
			zap.Int("failed", final.Failed), zap.Error(runErr))
	}()

	onProgress(task.update(func(p *RescanProgress) { p.State = RescanClearing }))
	cleared, err := db.ClearChannelPoints(ctx, m.db, ch.ID)
	if err != nil {
		runErr = fmt.Errorf("clear channel points: %w", err)
		return
	}
	onProgress(task.update(func(p *RescanProgress) {
		p.Cleared = cleared
		p.State = RescanIngesting
	}))

	limiter := m.rescan.limiter()
	ingestErr := history.Scan(ctx, m.rescan.Limit, func(msg Message) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		msg.ChannelID = ch.ID
		scored, err := m.ingest(ctx, msg, score)
		p := task.update(func(p *RescanProgress) {
			p.Scanned++
			switch {
			case err != nil:
				p.Failed++
			case scored:
				p.Scored++
			}
		})
		if err != nil {
			metrics.RescanMessages.WithLabelValues("failed").Inc()
			log.Warn("rescan message failed", zap.Int64("message_id", msg.ID), zap.Error(err))
			observability.CaptureWithTags(err, map[string]string{"op": "rescan", "channel_id": fmt.Sprint(ch.ID)})
		} else if scored {
			metrics.RescanMessages.WithLabelValues("scored").Inc()
		} else {
			metrics.RescanMessages.WithLabelValues("skipped").Inc()
		}
		if p.Scanned%m.rescan.Batch == 0 {
			onProgress(p)
		}
		return nil
	})
	if ingestErr != nil {
		runErr = fmt.Errorf("scan history: %w", ingestErr)
	}

	// пересчёт выполняется всегда: после отмены или ошибки часть очков уже
	// удалена или записана, итоги должны им соответствовать
	onProgress(task.update(func(p *RescanProgress) { p.State = RescanRecomputing }))
	rctx, cancel := ctxutil.WithTimeout(context.WithoutCancel(ctx), ctxutil.RecalcTimeout)
	defer cancel()
	start := time.Now()
	if err := db.RecalculateChannel(rctx, m.db, conf.SeasonID, ch.ID); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("recalculate channel: %w", err))
		observability.CaptureWithTags(err, map[string]string{"op": "rescan_recalc"})
		return
	}
	metrics.ObserveRecalc("full", start)
	m.invalidate(rctx, conf.SeasonID, ch.ID)
}

// ingest оценивает одно сообщение и пишет очко без пересчёта итогов.
func (m *Manager) ingest(ctx context.Context, msg Message, score ScoreFunc) (bool, error) {
	mult, err := score(ctx, msg)
	if err != nil {
		return false, err
	}
	if mult <= 0 {
		return false, nil
	}
	if err := db.InsertPoint(ctx, m.db, models.Point{
		MessageID:  msg.ID,
		UserID:     msg.AuthorID,
		ChannelID:  msg.ChannelID,
		Multiplier: mult,
		SentAt:     msg.SentAt,
	}); err != nil {
		return false, fmt.Errorf("db.InsertPoint: %w", err)
	}
	m.rememberNames(ctx, map[int64]string{msg.AuthorID: msg.AuthorName})
	return true, nil
}
