package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kenku-bot/crowevents/internal/events"
	"github.com/kenku-bot/crowevents/internal/export"
	"github.com/kenku-bot/crowevents/internal/metrics"
	"github.com/kenku-bot/crowevents/internal/models"
)

// Events: операции менеджера, которые отдаёт HTTP API.
type Events interface {
	FindSeason(ctx context.Context, guildID int64) (*models.Season, error)
	GetSeasonLeaderboard(ctx context.Context, guildID int64) (*models.Season, []models.Score, error)
	GetEventLeaderboard(ctx context.Context, channelID int64) ([]models.Score, bool, error)
	UserInfo(ctx context.Context, guildID, userID int64) (*events.UserSeasonInfo, error)
	ExportPoints(ctx context.Context, guildID int64, w io.Writer) (int, error)
	ExportPointsXLSX(ctx context.Context, guildID int64, w io.Writer) error
	GetAdjustments(ctx context.Context, channelID int64, sampleUser string, w io.Writer) (int, error)
}

type apiHandlers struct {
	ev  Events
	log *zap.Logger
}

type seasonView struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	StartAt time.Time `json:"start_at"`
}

type leaderboardResponse struct {
	Season *seasonView    `json:"season,omitempty"`
	Scores []models.Score `json:"scores"`
}

func (h *apiHandlers) seasonLeaderboard(w http.ResponseWriter, r *http.Request) {
	guildID, ok := idParam(w, r, "guildID")
	if !ok {
		return
	}
	if !h.hasSeason(w, r, guildID) {
		return
	}
	season, scores, err := h.ev.GetSeasonLeaderboard(r.Context(), guildID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Season: &seasonView{ID: season.ID, Name: season.Name, StartAt: season.StartAt},
		Scores: scores,
	})
}

func (h *apiHandlers) eventLeaderboard(w http.ResponseWriter, r *http.Request) {
	channelID, ok := idParam(w, r, "channelID")
	if !ok {
		return
	}
	scores, configured, err := h.ev.GetEventLeaderboard(r.Context(), channelID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !configured {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": events.ErrNotConfigured.Error()})
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Scores: scores})
}

func (h *apiHandlers) userInfo(w http.ResponseWriter, r *http.Request) {
	guildID, ok := idParam(w, r, "guildID")
	if !ok {
		return
	}
	if !h.hasSeason(w, r, guildID) {
		return
	}
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	info, err := h.ev.UserInfo(r.Context(), guildID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"season":   seasonView{ID: info.Season.ID, Name: info.Season.Name, StartAt: info.Season.StartAt},
		"total":    info.Total,
		"channels": info.Channels,
	})
}

func (h *apiHandlers) pointsCSV(w http.ResponseWriter, r *http.Request) {
	guildID, ok := idParam(w, r, "guildID")
	if !ok {
		return
	}
	if !h.hasSeason(w, r, guildID) {
		return
	}
	var buf bytes.Buffer
	if _, err := h.ev.ExportPoints(r.Context(), guildID, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="points-%d.csv"`, guildID))
	_, _ = w.Write(buf.Bytes())
}

func (h *apiHandlers) pointsXLSX(w http.ResponseWriter, r *http.Request) {
	guildID, ok := idParam(w, r, "guildID")
	if !ok {
		return
	}
	if !h.hasSeason(w, r, guildID) {
		return
	}
	var buf bytes.Buffer
	if err := h.ev.ExportPointsXLSX(r.Context(), guildID, &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	name := export.PointsFilename(strconv.FormatInt(guildID, 10), time.Now())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	_, _ = w.Write(buf.Bytes())
}

func (h *apiHandlers) adjustmentsCSV(w http.ResponseWriter, r *http.Request) {
	channelID, ok := idParam(w, r, "channelID")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if _, err := h.ev.GetAdjustments(r.Context(), channelID, r.URL.Query().Get("sample_user"), &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// hasSeason: GET-запросы не создают сезон, для гильдии без сезона отвечаем 404.
func (h *apiHandlers) hasSeason(w http.ResponseWriter, r *http.Request, guildID int64) bool {
	season, err := h.ev.FindSeason(r.Context(), guildID)
	if err != nil {
		h.fail(w, r, err)
		return false
	}
	if season == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "guild has no season"})
		return false
	}
	return true
}

func (h *apiHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	metrics.HandlerErrors.Inc()
	h.log.Error("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad " + name})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
