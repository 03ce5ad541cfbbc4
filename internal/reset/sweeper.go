package reset

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"resetd/internal/interfaces"
)

// DefaultSweepInterval matches the token TTL so no entry outlives two windows.
const DefaultSweepInterval = 15 * time.Minute

// Sweeper periodically clears reset entries that are past their expiry.
type Sweeper struct {
	purger interfaces.ExpiredResetPurger
	every  time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewSweeper(purger interfaces.ExpiredResetPurger, every time.Duration, log zerolog.Logger) *Sweeper {
	if every <= 0 {
		every = DefaultSweepInterval
	}
	return &Sweeper{purger: purger, every: every, now: time.Now, log: log}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("reset sweep failed")
				continue
			}
			if n > 0 {
				s.log.Info().Int("purged", n).Msg("expired reset entries purged")
			}
		}
	}
}

// RunOnce performs a single sweep. A panicking store is reported as an error.
func (s *Sweeper) RunOnce(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reset sweep panic: %v", r)
		}
	}()
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return s.purger.PurgeExpiredResets(ctx, s.now().UTC())
}
