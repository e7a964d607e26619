package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunksPerWorker controls load balancing: more chunks than workers lets
// fast workers pick up the slack of slow ones.
const chunksPerWorker = 4

// ParallelFor runs fn over [0, n) split into contiguous chunks on up to
// workers goroutines. workers <= 0 means one per CPU.
//
// Cancellation is cooperative: no new chunk starts once ctx is done or a
// chunk has failed, and fn receives a context it should poll inside long
// loops. The first error is returned; a cancelled ctx yields ctx.Err().
func ParallelFor(ctx context.Context, n, workers int, fn func(ctx context.Context, start, end int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := max(1, (n+workers*chunksPerWorker-1)/(workers*chunksPerWorker))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		if gctx.Err() != nil {
			break
		}
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, start, end)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
