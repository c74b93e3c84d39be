// Package scheduler runs housekeeping tasks on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"mapsharvest-engine/internal/logging"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on every tick until ctx ends.
func Every(ctx context.Context, interval time.Duration, name string, task Task) {
	log := logging.New("scheduler").With("task", name)
	t := time.NewTicker(interval)
	defer t.Stop()

	runOnce := func() {
		if err := task(ctx); err != nil {
			log.Warn("task failed", "err", err)
		}
	}
	runOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runOnce()
		}
	}
}
