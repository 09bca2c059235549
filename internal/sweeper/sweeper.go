// Package sweeper revokes sessions once they pass their expiry.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Expirer revokes expired sessions and reports how many were revoked.
type Expirer interface {
	ExpireSessions(ctx context.Context) (int, error)
}

// Sweeper periodically expires sessions so that connected clients are told
// about sign-outs they did not initiate.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
}

// New creates a new Sweeper.
func New(expirer Expirer, interval time.Duration) *Sweeper {
	return &Sweeper{
		expirer:  expirer,
		interval: interval,
	}
}

// Start begins the sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireSessions(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("sweeper: failed to expire sessions", "error", err)
		return
	}
	if n > 0 {
		slog.Info("sweeper: sessions expired", "count", n)
	}
}
