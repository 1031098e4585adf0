package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/trendcast/internal/forecast"
	"github.com/lazypower/trendcast/internal/store"
)

// Server is the trendcast HTTP API server.
type Server struct {
	db         *store.DB
	forecaster *forecast.Forecaster
	gatherer   prometheus.Gatherer
	router     chi.Router
	version    string
	started    time.Time
}

// New creates a new Server. forecaster may be nil, in which case passes
// cannot be triggered over HTTP. gatherer may be nil to disable /metrics.
func New(db *store.DB, forecaster *forecast.Forecaster, gatherer prometheus.Gatherer, version string) *Server {
	s := &Server{
		db:         db,
		forecaster: forecaster,
		gatherer:   gatherer,
		version:    version,
		started:    time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/run", s.handleRun)
		r.Get("/snapshots/latest", s.handleLatestSnapshot)
		r.Get("/alerts", s.handleAlerts)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"db":       s.db.PingContext(r.Context()) == nil,
		"db_path":  s.db.Path,
		"last_run": nil,
	}
	if s.forecaster != nil {
		if st, ok := s.forecaster.LastRun(); ok {
			body["last_run"] = map[string]any{
				"finished_at": st.FinishedAt.UTC().Format(time.RFC3339),
				"fetched":     st.Fetched,
				"alerts":      st.Alerts,
				"failures":    st.Failures,
				"snapshot":    st.Snapshot,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
