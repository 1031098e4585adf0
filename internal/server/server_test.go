package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lazypower/trendcast/internal/forecast"
	"github.com/lazypower/trendcast/internal/metrics"
	"github.com/lazypower/trendcast/internal/store"
)

var testNow = time.Unix(1_700_000_000, 0)

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	fc := forecast.New(db, forecast.DefaultOptions())
	fc.SetClock(func() time.Time { return testNow })
	fc.SetMetrics(metrics.New(reg))

	return New(db, fc, reg, "test-version"), db
}

func seedMeme(t *testing.T, db *store.DB, id string, age time.Duration, fields map[string]any) {
	t.Helper()
	fields["created_utc"] = float64(testNow.Add(-age).Unix())
	if err := db.Put(context.Background(), forecast.CollectionMemes, id, fields); err != nil {
		t.Fatalf("Put %s: %v", id, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
}

func TestRunEndpoint(t *testing.T) {
	srv, db := testServer(t)
	seedMeme(t, db, "hot", time.Hour, map[string]any{"upvotes": 100, "comments": 10, "forecastScore": 40.0, "title": "hot"})
	seedMeme(t, db, "mild", time.Hour, map[string]any{"upvotes": 5})

	req := httptest.NewRequest("POST", "/api/run", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var body struct {
		Fetched  int `json:"fetched"`
		Updated  int `json:"updated"`
		Failures int `json:"failures"`
		Alerts   []struct {
			MemeID string `json:"memeId"`
			Reason string `json:"reason"`
		} `json:"alerts"`
		Snapshot struct {
			ID    string `json:"id"`
			Memes []struct {
				ID            string  `json:"id"`
				ForecastScore float64 `json:"forecastScore"`
			} `json:"memes"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body.Fetched != 2 || body.Updated != 2 || body.Failures != 0 {
		t.Errorf("fetched=%d updated=%d failures=%d", body.Fetched, body.Updated, body.Failures)
	}
	if len(body.Alerts) != 1 || body.Alerts[0].Reason != "Forecast score spiked 40 → 120" {
		t.Errorf("alerts = %+v", body.Alerts)
	}
	if body.Snapshot.ID == "" || len(body.Snapshot.Memes) != 2 || body.Snapshot.Memes[0].ID != "hot" {
		t.Errorf("snapshot = %+v", body.Snapshot)
	}
}

func TestRunEndpointEmpty(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest("POST", "/api/run", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["fetched"] != 0.0 {
		t.Errorf("fetched = %v, want 0", body["fetched"])
	}
	if body["snapshot"] != nil {
		t.Errorf("snapshot = %v, want null for empty batch", body["snapshot"])
	}
	if alerts, ok := body["alerts"].([]any); !ok || len(alerts) != 0 {
		t.Errorf("alerts = %v, want empty list", body["alerts"])
	}
}

func TestRunWithoutForecaster(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	srv := New(db, nil, nil, "v")

	req := httptest.NewRequest("POST", "/api/run", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404 without a gatherer", w.Code)
	}
}

func TestLatestSnapshot(t *testing.T) {
	srv, db := testServer(t)

	req := httptest.NewRequest("GET", "/api/snapshots/latest", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before any snapshot", w.Code)
	}

	ctx := context.Background()
	db.Add(ctx, forecast.CollectionSnapshots, map[string]any{"timestamp": "t1", "memes": []any{}})
	db.Add(ctx, forecast.CollectionSnapshots, map[string]any{"timestamp": "t2", "memes": []any{}})

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/snapshots/latest", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["timestamp"] != "t2" {
		t.Errorf("timestamp = %v, want t2", body["timestamp"])
	}
	if body["id"] == "" || body["id"] == nil {
		t.Error("expected snapshot id")
	}
}

func TestAlertsEndpoint(t *testing.T) {
	srv, db := testServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		db.Add(ctx, forecast.CollectionAlerts, map[string]any{"memeId": "m", "reason": "r", "timestamp": "t"})
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/alerts?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Alerts []map[string]any `json:"alerts"`
		Count  int              `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Count != 2 || len(body.Alerts) != 2 {
		t.Errorf("count = %d, alerts = %d, want 2", body.Count, len(body.Alerts))
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/alerts?limit=junk", nil))
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Count != 3 {
		t.Errorf("invalid limit should fall back to default, count = %d", body.Count)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, db := testServer(t)
	seedMeme(t, db, "m1", time.Hour, map[string]any{"upvotes": 10})

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/run", nil))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "trendcast_memes_fetched_total 1") {
		t.Errorf("metrics output missing fetched counter:\n%s", w.Body.String())
	}
}

// cancelingStore cancels the request context after the first score update,
// as a client disconnecting mid-pass would.
type cancelingStore struct {
	*store.DB
	cancel  context.CancelFunc
	updates int
}

func (c *cancelingStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	err := c.DB.Update(ctx, collection, id, fields)
	c.updates++
	if c.updates == 1 {
		c.cancel()
	}
	return err
}

func TestRunSurvivesClientCancel(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	for _, id := range []string{"a", "b", "c"} {
		seedMeme(t, db, id, time.Hour, map[string]any{"upvotes": 10})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cs := &cancelingStore{DB: db, cancel: cancel}

	fc := forecast.New(cs, forecast.DefaultOptions())
	fc.SetClock(func() time.Time { return testNow })
	srv := New(db, fc, nil, "v")

	req := httptest.NewRequest("POST", "/api/run", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["failures"] != 0.0 {
		t.Errorf("failures = %v, want 0", body["failures"])
	}
	if body["snapshot"] == nil {
		t.Error("snapshot should be written after the client cancels")
	}

	bg := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		doc, _ := db.Get(bg, forecast.CollectionMemes, id)
		if doc.Fields["forecastScore"] != 10.0 {
			t.Errorf("%s forecastScore = %v, want 10", id, doc.Fields["forecastScore"])
		}
	}
	if n, _ := db.Count(bg, forecast.CollectionSnapshots); n != 1 {
		t.Errorf("snapshots written = %d, want 1", n)
	}
}

func TestHealthReportsLastRun(t *testing.T) {
	srv, db := testServer(t)
	seedMeme(t, db, "m1", time.Hour, map[string]any{"upvotes": 80})

	var body map[string]any
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["last_run"] != nil {
		t.Errorf("last_run = %v, want null before any pass", body["last_run"])
	}

	srv.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/run", nil))

	body = nil
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/health", nil))
	json.Unmarshal(w.Body.Bytes(), &body)

	last, ok := body["last_run"].(map[string]any)
	if !ok {
		t.Fatalf("last_run = %v, want object", body["last_run"])
	}
	if last["finished_at"] != "2023-11-14T22:13:20Z" {
		t.Errorf("finished_at = %v", last["finished_at"])
	}
	if last["fetched"] != 1.0 || last["alerts"] != 1.0 || last["snapshot"] != true {
		t.Errorf("last_run = %v", last)
	}
}
