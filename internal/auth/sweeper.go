package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"orgdesk.org/internal/obs"
)

const defaultSweepInterval = time.Hour

// Sweeper periodically purges expired blacklist entries.
type Sweeper struct {
	store    RevocationStore
	interval time.Duration
	log      *zerolog.Logger
}

func NewSweeper(store RevocationStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, log: obs.Component("sweeper")}
}

// SweepOnce runs a single purge.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		obs.RevokedTokensPurged.Add(float64(n))
		s.log.Info().Int64("purged", n).Msg("expired tokens purged")
	}
	return n, nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("purge expired tokens")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
