package loader

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// StartScheduler loads once immediately, then on every tick until ctx is done.
func StartScheduler(ctx context.Context, l *Loader, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	runOnce(ctx, l)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runOnce(ctx, l)
		}
	}
}

func runOnce(ctx context.Context, l *Loader) {
	if err := l.Load(ctx); errors.Is(err, ErrLoadInProgress) {
		log.Debug().Msg("Loader: skip tick, load in progress")
	}
}
