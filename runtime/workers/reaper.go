package workers

import (
	"context"
	"log/slog"
	"time"
)

type unauthenticatedReaper interface {
	ReapUnauthenticated(ctx context.Context, now time.Time) int
}

// ConnectionReaper closes the connections that never authenticated.
type ConnectionReaper struct {
	log         *slog.Logger
	connections unauthenticatedReaper
	interval    time.Duration
}

func NewConnectionReaper(log *slog.Logger, connections unauthenticatedReaper, interval time.Duration) *ConnectionReaper {
	return &ConnectionReaper{log: log, connections: connections, interval: interval}
}

func (w *ConnectionReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := w.connections.ReapUnauthenticated(ctx, now); n > 0 {
				w.log.Info("Unauthenticated connections closed", "count", n)
			}
		}
	}
}

type tombstonePruner interface {
	PruneTombstones(now time.Time) int
}

// CallReaper forgets the ended calls once their retention window is over.
type CallReaper struct {
	log      *slog.Logger
	calls    tombstonePruner
	interval time.Duration
}

func NewCallReaper(log *slog.Logger, calls tombstonePruner, interval time.Duration) *CallReaper {
	return &CallReaper{log: log, calls: calls, interval: interval}
}

func (w *CallReaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := w.calls.PruneTombstones(now); n > 0 {
				w.log.Debug("Call tombstones pruned", "count", n)
			}
		}
	}
}
