package snapshotcontroller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/automation-presence/internal/model"
)

type StateSource interface {
	GetState() *model.State
}

// Sink receives a copy of the whole tree on every report.
type Sink interface {
	Snapshot(st *model.State)
}

// RunSnapshotController reports the current tree to every sink once per
// interval until ctx is done.
func RunSnapshotController(ctx context.Context, source StateSource, sinks []Sink, clk clockwork.Clock, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := clk.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		log.Info().Dur("interval", interval).Int("sinks", len(sinks)).Msg("Starting snapshot controller")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Snapshot controller stopped")
				return
			case <-ticker.Chan():
				report(source, sinks)
			}
		}
	}()

	return done
}

func report(source StateSource, sinks []Sink) {
	st := source.GetState()
	for _, sink := range sinks {
		sink.Snapshot(st)
	}
}
