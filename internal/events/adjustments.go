package events

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kenku-bot/crowevents/internal/ctxutil"
	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/metrics"
	"github.com/kenku-bot/crowevents/internal/models"
)

// GetAdjustments пишет корректировки канала в CSV и возвращает их число.
// Если корректировок нет, пишется одна строка-пример для sampleUser.
func (m *Manager) GetAdjustments(ctx context.Context, channelID int64, sampleUser string, w io.Writer) (int, error) {
	rows, err := db.GetAdjustments(ctx, m.db, channelID)
	if err != nil {
		return 0, fmt.Errorf("db.GetAdjustments: %w", err)
	}
	if len(rows) == 0 {
		return 0, WriteAdjustments(w, []AdjustmentRecord{SampleAdjustment(sampleUser)})
	}
	recs := make([]AdjustmentRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, AdjustmentRecord{
			UserID:     r.UserID,
			UserName:   r.UserName,
			Adjustment: r.Amount,
			Note:       r.Note,
		})
	}
	return len(rows), WriteAdjustments(w, recs)
}

// ReplaceAdjustments заменяет все корректировки канала содержимым CSV.
// Строки без user_id ищутся через resolver по имени; если хоть одно имя
// не нашлось, ничего не меняется и возвращается *ValidationError со всеми
// такими именами.
func (m *Manager) ReplaceAdjustments(ctx context.Context, guildID, channelID int64, r io.Reader, resolver UserResolver) (int, error) {
	ctx = ctxutil.WithChannelID(ctxutil.WithGuildID(ctxutil.WithOp(ctx, "replace_adjustments"), guildID), channelID)

	records, err := ParseAdjustments(r)
	if err != nil {
		return 0, err
	}

	names := make(map[int64]string, len(records))
	adjs := make([]models.Adjustment, 0, len(records))
	var unresolved []string
	seenBad := make(map[string]bool)
	for _, rec := range records {
		uid := rec.UserID
		if uid == 0 {
			u, err := resolveByName(ctx, resolver, guildID, rec.UserName)
			if err != nil {
				if !seenBad[rec.UserName] {
					seenBad[rec.UserName] = true
					unresolved = append(unresolved, rec.UserName)
				}
				continue
			}
			uid = u.ID
			names[uid] = firstNonEmpty(u.Name, rec.UserName)
		} else {
			names[uid] = rec.UserName
			if resolver != nil {
				if u, err := resolver.LookupUser(ctx, guildID, uid); err == nil {
					names[uid] = firstNonEmpty(u.Name, rec.UserName)
				}
			}
		}
		adjs = append(adjs, models.Adjustment{
			ChannelID: channelID,
			UserID:    uid,
			Amount:    rec.Adjustment,
			Note:      rec.Note,
		})
	}
	if len(unresolved) > 0 {
		return 0, &ValidationError{Names: unresolved}
	}

	seasonID, err := m.channelSeason(ctx, channelID, guildID)
	if err != nil {
		return 0, err
	}
	m.rememberNames(ctx, names)

	rctx, cancel := ctxutil.WithTimeout(ctx, ctxutil.RecalcTimeout)
	defer cancel()
	start := time.Now()
	if err := db.ReplaceAdjustments(rctx, m.db, seasonID, channelID, adjs); err != nil {
		return 0, fmt.Errorf("db.ReplaceAdjustments: %w", err)
	}
	metrics.ObserveRecalc("full", start)
	m.invalidate(ctx, seasonID, channelID)
	m.log.Info("adjustments replaced", append(ctxutil.Fields(ctx), zap.Int("rows", len(adjs)))...)
	return len(adjs), nil
}

func resolveByName(ctx context.Context, resolver UserResolver, guildID int64, name string) (User, error) {
	if resolver == nil {
		return User{}, fmt.Errorf("no resolver for %q", name)
	}
	u, err := resolver.ResolveUser(ctx, guildID, name)
	if err != nil {
		return User{}, err
	}
	if u.ID == 0 {
		return User{}, fmt.Errorf("user %q resolved without id", name)
	}
	return u, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
