package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lazypower/trendcast/internal/forecast"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 200
)

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.forecaster == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "forecaster not configured"})
		return
	}

	// A pass runs to completion even if the client goes away.
	report := s.forecaster.Run(context.WithoutCancel(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summarize(report))
}

// summarize flattens a pass report into its JSON response.
func summarize(r forecast.Report) map[string]any {
	alerts := r.Alerts()
	if alerts == nil {
		alerts = []forecast.Alert{}
	}
	out := map[string]any{
		"fetched":     len(r.Fetch.Memes),
		"updated":     len(r.Updates),
		"alerts":      alerts,
		"failures":    r.Failures(),
		"duration_ms": r.Duration.Milliseconds(),
		"snapshot":    nil,
	}
	if r.Fetch.Err != nil {
		out["fetch_error"] = r.Fetch.Err.Error()
	}
	if r.Snapshot.Written {
		out["snapshot"] = map[string]any{
			"id":        r.Snapshot.ID,
			"timestamp": r.Snapshot.Snapshot.Timestamp,
			"memes":     r.Snapshot.Snapshot.Memes,
		}
	} else if r.Snapshot.Err != nil && !errors.Is(r.Snapshot.Err, forecast.ErrEmptyBatch) {
		out["snapshot_error"] = r.Snapshot.Err.Error()
	}
	return out
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	docs, err := s.db.Recent(r.Context(), forecast.CollectionSnapshots, 1)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(docs) == 0 {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no snapshots yet"})
		return
	}

	body := docs[0].Fields
	body["id"] = docs[0].ID
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	docs, err := s.db.Recent(r.Context(), forecast.CollectionAlerts, limit)
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	alerts := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		a := d.Fields
		a["id"] = d.ID
		alerts = append(alerts, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
