package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/trendcast/internal/store"
)

var testNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return testNow }

// ago returns the epoch-seconds timestamp d before testNow.
func ago(d time.Duration) float64 {
	return epochSeconds(testNow.Add(-d))
}

type fakeAdd struct {
	collection string
	fields     map[string]any
}

type fakeUpdate struct {
	collection string
	id         string
	fields     map[string]any
}

type fakeQuery struct {
	collection string
	field      string
	op         string
	value      any
}

// fakeStore records every call. Errors can be injected per operation.
type fakeStore struct {
	docs []store.Document

	queryErr  error
	updateErr map[string]error // by meme id
	addErr    map[string]error // by collection

	queries []fakeQuery
	updates []fakeUpdate
	adds    []fakeAdd
	calls   []string
}

func (s *fakeStore) Query(ctx context.Context, collection, field, op string, value any) ([]store.Document, error) {
	s.queries = append(s.queries, fakeQuery{collection, field, op, value})
	s.calls = append(s.calls, "query:"+collection)
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.docs, nil
}

func (s *fakeStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.calls = append(s.calls, "update:"+collection+"/"+id)
	if err := s.updateErr[id]; err != nil {
		return err
	}
	s.updates = append(s.updates, fakeUpdate{collection, id, fields})
	return nil
}

func (s *fakeStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	s.calls = append(s.calls, "add:"+collection)
	if err := s.addErr[collection]; err != nil {
		return "", err
	}
	s.adds = append(s.adds, fakeAdd{collection, fields})
	return fmt.Sprintf("%s-%d", collection, len(s.adds)), nil
}

func (s *fakeStore) addsTo(collection string) []fakeAdd {
	var out []fakeAdd
	for _, a := range s.adds {
		if a.collection == collection {
			out = append(out, a)
		}
	}
	return out
}

type fakeNotifier struct {
	err    error
	alerts []Alert
}

func (n *fakeNotifier) Notify(ctx context.Context, a Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func newTestForecaster(st Store) *Forecaster {
	f := New(st, DefaultOptions())
	f.SetClock(fixedClock)
	return f
}

// syncStore guards fakeStore for use from the timer goroutine.
type syncStore struct {
	mu sync.Mutex
	fakeStore
}

func (s *syncStore) Query(ctx context.Context, collection, field, op string, value any) ([]store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fakeStore.Query(ctx, collection, field, op, value)
}

func (s *syncStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fakeStore.Update(ctx, collection, id, fields)
}

func (s *syncStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fakeStore.Add(ctx, collection, fields)
}

func (s *syncStore) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}
