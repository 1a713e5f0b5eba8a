package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kibalert/internal/metrics"
	"kibalert/internal/notifier"
	"kibalert/internal/schedule"
)

// ScheduleSource exposes the run-tracker state.
type ScheduleSource interface {
	Snapshot() schedule.State
}

type Server struct {
	metrics  *metrics.Metrics
	schedule ScheduleSource
	notify   notifier.Notifier
	log      *slog.Logger

	ready    atomic.Bool
	lastIter atomic.Int64
}

func NewServer(m *metrics.Metrics, sched ScheduleSource, n notifier.Notifier, logger *slog.Logger) *Server {
	return &Server{metrics: m, schedule: sched, notify: n, log: logger}
}

// MarkIteration records a completed polling iteration; /readyz turns
// healthy after the first one.
func (s *Server) MarkIteration(t time.Time) {
	s.lastIter.Store(t.Unix())
	s.ready.Store(true)
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logMiddleware(s.log))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/schedule", s.handleSchedule)
		r.Post("/notify/test", s.handleTestNotify)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "first iteration not finished", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeJSON(w, map[string]any{"windows": schedule.State{}})
		return
	}
	resp := map[string]any{"windows": s.schedule.Snapshot()}
	if ts := s.lastIter.Load(); ts > 0 {
		resp["last_iteration"] = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	writeJSON(w, resp)
}

func (s *Server) handleTestNotify(w http.ResponseWriter, r *http.Request) {
	if s.notify == nil {
		http.Error(w, "no notifier configured", http.StatusServiceUnavailable)
		return
	}
	s.notify.SendBrief(r.Context(), "kibalert test alert: notification channel is working")
	writeJSON(w, map[string]string{"status": "sent"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
