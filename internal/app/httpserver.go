package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kenku-bot/crowevents/internal/metrics"
)

type HTTPServer struct {
	srv *http.Server
}

// Pinger: то, что нужно /healthz от базы.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter: служебные /healthz и /metrics плюс API только для чтения.
func NewRouter(db Pinger, ev Events, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
		defer cancel()
		t0 := time.Now()
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "db not ok: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		metrics.ObserveDBPing(time.Since(t0))
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	h := &apiHandlers{ev: ev, log: log}
	r.Route("/guilds/{guildID}", func(r chi.Router) {
		r.Get("/leaderboard", h.seasonLeaderboard)
		r.Get("/users/{userID}", h.userInfo)
		r.Get("/points.csv", h.pointsCSV)
		r.Get("/points.xlsx", h.pointsXLSX)
	})
	r.Route("/channels/{channelID}", func(r chi.Router) {
		r.Get("/leaderboard", h.eventLeaderboard)
		r.Get("/adjustments.csv", h.adjustmentsCSV)
	})
	return r
}

func StartHTTP(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) *HTTPServer {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// закрываем аккуратно при Shutdown
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	log.Info("http server listening", zap.String("addr", addr))
	return &HTTPServer{srv: srv}
}
