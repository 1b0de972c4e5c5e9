package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Purger runs the retention-expiry sweep on a fixed interval. It may run
// concurrently with new writes; the sweep only ever deletes records
// strictly older than the cutoff.
type Purger struct {
	svc      *Service
	interval time.Duration
	logger   zerolog.Logger
}

// NewPurger creates a Purger that sweeps every interval.
func NewPurger(svc *Service, interval time.Duration, logger zerolog.Logger) *Purger {
	return &Purger{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("component", "audit-purger").Logger(),
	}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (p *Purger) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := p.svc.PurgeExpired(ctx, now); err != nil {
				p.logger.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}
