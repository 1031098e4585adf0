package forecast

import (
	"context"
	"log"
	"time"
)

// StartTimer runs a pass every interval in the background until Stop is
// called. Passes never overlap.
func (f *Forecaster) StartTimer(interval time.Duration) {
	f.stopCh = make(chan struct{})
	stop := f.stopCh

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r := f.Run(context.Background())
				log.Printf("timer: pass done, %d memes, %d alerts, %d failures",
					len(r.Fetch.Memes), len(r.Alerts()), r.Failures())
			case <-stop:
				return
			}
		}
	}()
}

// Stop shuts down the background timer, if running.
func (f *Forecaster) Stop() {
	if f.stopCh != nil {
		close(f.stopCh)
		f.stopCh = nil
	}
}
