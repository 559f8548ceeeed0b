package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/calldispatch/internal/infra/storage"
)

// Pruner deletes journal entries older than the retention period.
type Pruner struct {
	retention time.Duration
	journal   storage.JournalRepository
	clock     clockwork.Clock
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, journal storage.JournalRepository, clock clockwork.Clock) *Pruner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pruner{
		retention: retention,
		journal:   journal,
		clock:     clock,
		log:       slog.Default().With("component", "pruner"),
	}
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// 10% of retention, between one minute and one hour
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	threshold := p.clock.Now().Add(-p.retention)

	n, err := p.journal.PurgeBefore(ctx, threshold)
	if err != nil {
		p.log.Error("Failed to prune journal", "before", threshold, "error", err)
		return
	}
	if n > 0 {
		p.log.Info("Pruned journal entries", "count", n, "before", threshold)
	}
}
