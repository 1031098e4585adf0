package forecast

import (
	"context"
	"fmt"
	"log"
	"time"
)

// AlertKind names the rule that raised an alert.
type AlertKind string

const (
	AlertNone      AlertKind = ""
	AlertSpike     AlertKind = "spike"
	AlertThreshold AlertKind = "threshold"
)

// Alert is an append-only record that a meme's score moved notably.
type Alert struct {
	ID        string    `json:"id,omitempty"`
	Timestamp string    `json:"timestamp"`
	MemeID    string    `json:"memeId"`
	Reason    string    `json:"reason"`
	Kind      AlertKind `json:"kind,omitempty"`
}

// Fields returns the stored representation of the alert.
func (a Alert) Fields() map[string]any {
	return map[string]any{
		"timestamp": a.Timestamp,
		"memeId":    a.MemeID,
		"reason":    a.Reason,
	}
}

// Decision is the outcome of comparing a new score against the previous one.
type Decision struct {
	Kind   AlertKind
	Reason string
}

// Decide applies the alert rules in order, first match wins:
// a relative rise of at least opts.SpikeRatio over a positive previous score
// is a spike; otherwise a score above opts.AlertThreshold crosses the
// threshold.
func Decide(prev, score float64, opts Options) Decision {
	if prev > 0 && (score-prev)/prev >= opts.SpikeRatio {
		return Decision{
			Kind:   AlertSpike,
			Reason: fmt.Sprintf("Forecast score spiked %s → %s", formatNumber(prev), formatNumber(score)),
		}
	}
	if score > opts.AlertThreshold {
		return Decision{
			Kind:   AlertThreshold,
			Reason: fmt.Sprintf("Forecast score exceeded %s: %s", formatNumber(opts.AlertThreshold), formatNumber(score)),
		}
	}
	return Decision{Kind: AlertNone}
}

// UpdateResult is the outcome of updating one meme. Alert is set whenever
// an alert was raised, even if writing it failed.
type UpdateResult struct {
	MemeID    string
	Previous  float64
	Score     float64
	Alert     *Alert
	AlertErr  error
	NotifyErr error
	ScoreErr  error
}

// UpdateForecast persists score as the meme's forecastScore and raises at
// most one alert against the previously stored score. The alert is written
// first; its failure does not prevent the score update.
func (f *Forecaster) UpdateForecast(ctx context.Context, memeID string, score float64, m Meme) UpdateResult {
	res := UpdateResult{MemeID: memeID, Previous: m.ForecastScore, Score: score}

	if d := Decide(m.ForecastScore, score, f.opts); d.Kind != AlertNone {
		a := Alert{
			Timestamp: f.now().UTC().Format(time.RFC3339Nano),
			MemeID:    memeID,
			Reason:    d.Reason,
			Kind:      d.Kind,
		}
		res.Alert = &a
		f.metrics.Alert(string(d.Kind))
		res.AlertErr, res.NotifyErr = f.pushAlert(ctx, res.Alert)
	}

	if err := f.store.Update(ctx, CollectionMemes, memeID, map[string]any{"forecastScore": score}); err != nil {
		log.Printf("update: failed to update meme %s: %v", memeID, err)
		f.metrics.WriteFailed("score")
		res.ScoreErr = err
	}
	return res
}

// pushAlert appends the alert and, once stored, hands it to the notifier.
func (f *Forecaster) pushAlert(ctx context.Context, a *Alert) (storeErr, notifyErr error) {
	id, err := f.store.Add(ctx, CollectionAlerts, a.Fields())
	if err != nil {
		log.Printf("alert: failed to push alert for %s: %v", a.MemeID, err)
		f.metrics.WriteFailed("alert")
		return err, nil
	}
	a.ID = id
	log.Printf("alert: %s: %s", a.MemeID, a.Reason)

	if f.notifier == nil {
		return nil, nil
	}
	if err := f.notifier.Notify(ctx, *a); err != nil {
		log.Printf("alert: notify %s: %v", a.MemeID, err)
		f.metrics.WriteFailed("notify")
		return nil, err
	}
	return nil, nil
}
