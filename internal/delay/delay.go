// Package delay provides jittered, context-aware sleeps used to pace
// outbound traffic against target sites and mail servers.
package delay

import (
	"context"
	"math/rand"
	"time"
)

// Sleep blocks for a duration drawn uniformly from [min, max] and
// returns early with ctx.Err() when the context is cancelled.
// A non-positive duration returns immediately.
func Sleep(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min+1)))
	}
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
