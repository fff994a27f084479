package registry

import (
	"context"
	"time"
)

// RunSweeper periodically evicts terminal entries older than retention,
// until ctx is canceled. It's started once by the processor at startup, the
// same "start a cleanup routine at construction" idiom used elsewhere in
// the retrieved pack for a mutex-guarded map cache.
func (r *Registry) RunSweeper(ctx context.Context, retention time.Duration, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.SweepTerminal(now.Add(-retention))
		}
	}
}
