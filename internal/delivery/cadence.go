package delivery

import (
	"context"
	"time"
)

// Run periodically sweeps SENT messages past the delivery timeout into
// DELIVERED_ASSUMED and republishes the statistics snapshot, bounding the
// publish cadence to the configured interval even when no new events
// arrive (§4.6: "published at fixed cadence (default 2s)"). It returns
// when ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.SweepAssumedDelivered(now)
			t.PublishStats()
		}
	}
}
