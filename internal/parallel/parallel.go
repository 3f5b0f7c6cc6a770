// Package parallel splits the instance arena into contiguous ranges and runs
// one goroutine per range. Ranges never overlap, so the per-instance work
// inside needs no locking.
package parallel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MinChunk is the smallest range worth a goroutine.
const MinChunk = 256

// Workers resolves a configured worker count, 0 meaning GOMAXPROCS.
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// Split returns the number of chunks and the chunk length for n items.
func Split(n, workers int) (chunks, size int) {
	if n == 0 {
		return 0, 0
	}
	workers = Workers(workers)
	size = (n + workers - 1) / workers
	if size < MinChunk {
		size = MinChunk
	}
	chunks = (n + size - 1) / size
	return chunks, size
}

// For runs fn over [0, n) split into contiguous [lo, hi) ranges. chunk is the
// range's ordinal, stable for a given n and worker count, so callers can keep
// per-chunk scratch and output. A panic inside fn is returned as an error.
func For(ctx context.Context, n, workers int, fn func(chunk, lo, hi int) error) error {
	chunks, size := Split(n, workers)
	if chunks == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if chunks == 1 {
		return guard(0, 0, n, fn)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(workers))
	for c := 0; c < chunks; c++ {
		lo := c * size
		hi := min(lo+size, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return guard(c, lo, hi, fn)
		})
	}
	return g.Wait()
}

func guard(chunk, lo, hi int, fn func(chunk, lo, hi int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic in [%d, %d): %v", lo, hi, r)
		}
	}()
	return fn(chunk, lo, hi)
}
