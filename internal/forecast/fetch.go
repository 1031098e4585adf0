package forecast

import (
	"context"
	"log"
)

// FetchResult is the outcome of a trending window query. On failure Memes is
// empty and Err is set.
type FetchResult struct {
	Hours  float64
	Cutoff float64 // epoch seconds; memes created strictly after are included
	Memes  []Meme
	Err    error
}

// FetchTrending returns every meme created within the last hours hours.
// A failed query yields an empty batch rather than an error return.
func (f *Forecaster) FetchTrending(ctx context.Context, hours float64) FetchResult {
	res := FetchResult{Hours: hours}
	if hours <= 0 {
		log.Printf("fetch: invalid window %v hours", hours)
		res.Err = ErrInvalidWindow
		return res
	}

	res.Cutoff = epochSeconds(f.now()) - hours*3600

	docs, err := f.store.Query(ctx, CollectionMemes, "created_utc", ">", res.Cutoff)
	if err != nil {
		log.Printf("fetch: error fetching memes: %v", err)
		f.metrics.FetchFailed()
		res.Err = err
		return res
	}

	res.Memes = make([]Meme, 0, len(docs))
	for _, d := range docs {
		res.Memes = append(res.Memes, FromDocument(d))
	}
	f.metrics.Fetched(len(res.Memes))
	log.Printf("fetch: fetched %d memes from the last %v hours", len(res.Memes), hours)
	return res
}
