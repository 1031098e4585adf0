package forecast

import (
	"context"
	"log"
	"sort"
	"time"
)

// SnapshotEntry is a denormalized view of one ranked meme.
type SnapshotEntry struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	ForecastScore float64 `json:"forecastScore"`
	LulzScore     any     `json:"lulzScore"`
	VibeShift     any     `json:"vibeShift"`
	ImageURL      any     `json:"image_url"`
	Link          any     `json:"link"`
}

// Snapshot is a point-in-time ranking of the top forecast memes.
type Snapshot struct {
	Timestamp string          `json:"timestamp"`
	Memes     []SnapshotEntry `json:"memes"`
}

// Fields returns the stored representation of the snapshot.
func (s Snapshot) Fields() map[string]any {
	memes := make([]any, 0, len(s.Memes))
	for _, e := range s.Memes {
		memes = append(memes, map[string]any{
			"id":            e.ID,
			"title":         e.Title,
			"forecastScore": e.ForecastScore,
			"lulzScore":     e.LulzScore,
			"vibeShift":     e.VibeShift,
			"image_url":     e.ImageURL,
			"link":          e.Link,
		})
	}
	return map[string]any{
		"timestamp": s.Timestamp,
		"memes":     memes,
	}
}

// SnapshotResult is the outcome of SnapshotTop. Written is false for an
// empty batch (Err is ErrEmptyBatch) and when the store write fails.
type SnapshotResult struct {
	ID       string
	Snapshot *Snapshot
	Written  bool
	Err      error
}

// BuildSnapshot ranks memes by their score at now, highest first, keeping
// fetch order among equal scores, and keeps the first n. A non-positive n
// means DefaultTopN.
func BuildSnapshot(memes []Meme, n int, now time.Time) Snapshot {
	if n <= 0 {
		n = DefaultTopN
	}

	type ranked struct {
		meme  Meme
		score float64
	}
	rs := make([]ranked, len(memes))
	for i, m := range memes {
		rs[i] = ranked{meme: m, score: Score(m, now)}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].score > rs[j].score
	})
	if len(rs) > n {
		rs = rs[:n]
	}

	s := Snapshot{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Memes:     make([]SnapshotEntry, 0, len(rs)),
	}
	for _, r := range rs {
		s.Memes = append(s.Memes, SnapshotEntry{
			ID:            r.meme.ID,
			Title:         r.meme.Label(),
			ForecastScore: r.score,
			LulzScore:     r.meme.LulzScore,
			VibeShift:     r.meme.VibeShift,
			ImageURL:      r.meme.ImageURL,
			Link:          r.meme.Link,
		})
	}
	return s
}

// SnapshotTop builds and appends one snapshot of the top n memes. An empty
// batch writes nothing.
func (f *Forecaster) SnapshotTop(ctx context.Context, memes []Meme, n int) SnapshotResult {
	if len(memes) == 0 {
		log.Printf("snapshot: no memes to snapshot")
		return SnapshotResult{Err: ErrEmptyBatch}
	}

	s := BuildSnapshot(memes, n, f.now())
	res := SnapshotResult{Snapshot: &s}

	id, err := f.store.Add(ctx, CollectionSnapshots, s.Fields())
	if err != nil {
		log.Printf("snapshot: failed to save snapshot: %v", err)
		f.metrics.WriteFailed("snapshot")
		res.Err = err
		return res
	}

	res.ID = id
	res.Written = true
	f.metrics.SnapshotWritten(s.Memes[0].ForecastScore)
	log.Printf("snapshot: saved with top %d forecast memes", len(s.Memes))
	return res
}
