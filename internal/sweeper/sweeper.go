// Package sweeper reclaims expired, non-persistent endpoints on a fixed
// cadence. Requests go with their endpoint via the store's cascade, so a
// sweep never leaves orphaned captures behind.
package sweeper

import (
	"context"
	"time"

	"github.com/hookbin/hookbin/internal/logger"
	"github.com/hookbin/hookbin/internal/store"
)

type Sweeper struct {
	store    store.Store
	log      *logger.Logger
	interval time.Duration
}

func New(st store.Store, log *logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    st,
		log:      log,
		interval: interval,
	}
}

// Run ticks until the context is cancelled. A failed pass only logs; the
// next tick naturally picks up anything it missed.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ticker.C:
			if _, _, err := s.Sweep(ctx); err != nil {
				s.log.Error("sweep failed", "error", err.Error())
			}
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		}
	}
}

// Sweep runs one pass and reports the volume removed.
func (s *Sweeper) Sweep(ctx context.Context) (endpoints int, requests int, err error) {
	endpoints, requests, err = s.store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, 0, err
	}

	if endpoints == 0 {
		s.log.Info("sweep: no expired endpoints")
		return 0, 0, nil
	}

	s.log.Info("sweep: removed expired endpoints",
		"endpoints", endpoints,
		"requests", requests,
	)
	return endpoints, requests, nil
}
