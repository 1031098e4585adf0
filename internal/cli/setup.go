package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lazypower/trendcast/internal/config"
	"github.com/lazypower/trendcast/internal/forecast"
	"github.com/lazypower/trendcast/internal/metrics"
	"github.com/lazypower/trendcast/internal/notify"
	"github.com/lazypower/trendcast/internal/store"
)

// Compile-time pass defaults, overridable by config and run flags.
const (
	defaultWindowHours = forecast.DefaultWindowHours
	defaultTopN        = forecast.DefaultTopN
)

// openDB opens the database named by cfg, falling back to the default path.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	return store.Open(dbPath)
}

// forecastOptions maps configuration onto pass options.
func forecastOptions(cfg config.Config) forecast.Options {
	return forecast.Options{
		WindowHours:    cfg.Forecast.WindowHours,
		TopN:           cfg.Forecast.TopN,
		AlertThreshold: cfg.Forecast.AlertThreshold,
		SpikeRatio:     cfg.Forecast.SpikeRatio,
	}
}

// newForecaster wires a Forecaster with metrics registered on reg and, when
// enabled, a Kafka alert sink. The returned closer releases the sink.
func newForecaster(cfg config.Config, db *store.DB, reg prometheus.Registerer) (*forecast.Forecaster, io.Closer, error) {
	fc := forecast.New(db, forecastOptions(cfg))
	if reg != nil {
		fc.SetMetrics(metrics.New(reg))
	}

	if !cfg.Kafka.Enabled {
		return fc, nopCloser{}, nil
	}
	kn, err := notify.NewKafka(notify.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Acks:    cfg.Kafka.Acks,
	})
	if err != nil {
		return nil, nil, err
	}
	fc.SetNotifier(kn)
	fmt.Fprintf(os.Stderr, "  alerts: kafka topic %s\n", cfg.Kafka.Topic)
	return fc, kn, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
