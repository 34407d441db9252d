package expirycontroller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sweeper clears every trigger and master deadline that has passed.
type Sweeper interface {
	Sweep(ctx context.Context)
}

// RunExpiryController sweeps expired deadlines every interval until ctx is
// done. The engine's own deadline timers normally fire first; this loop
// catches anything a timer missed, such as a wall clock jump.
func RunExpiryController(ctx context.Context, sweeper Sweeper, clk clockwork.Clock, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := clk.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		log.Info().Dur("interval", interval).Msg("Starting expiry controller")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Expiry controller stopped")
				return
			case <-ticker.Chan():
				sweeper.Sweep(ctx)
			}
		}
	}()

	return done
}
