package reconcile

import (
	"context"
	"time"
)

// DefaultInterval is how often the sweeps run when no interval is configured.
const DefaultInterval = 10 * time.Minute

// Loop runs both sweeps on a fixed interval until the context is cancelled.
// The first pass runs immediately so a restart does not wait a full interval
// to pick up stuck targets.
func (b *Babysitter) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Babysitter) sweepOnce(ctx context.Context) {
	if err := b.SweepBuilds(ctx); err != nil {
		b.logger.Error("build sweep failed", "error", err)
	}
	if err := b.SweepTests(ctx); err != nil {
		b.logger.Error("test sweep failed", "error", err)
	}
}
