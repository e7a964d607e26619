package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelFor_CoversRangeOnce(t *testing.T) {
	const n = 1003
	hits := make([]atomic.Int32, n)

	err := ParallelFor(context.Background(), n, 4, func(_ context.Context, start, end int) error {
		for i := start; i < end; i++ {
			hits[i].Add(1)
		}
		return nil
	})
	require.NoError(t, err)
	for i := range hits {
		require.Equal(t, int32(1), hits[i].Load(), "index %d", i)
	}
}

func TestParallelFor_Empty(t *testing.T) {
	called := false
	err := ParallelFor(context.Background(), 0, 4, func(context.Context, int, int) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestParallelFor_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")
	err := ParallelFor(context.Background(), 100, 2, func(_ context.Context, start, _ int) error {
		if start == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestParallelFor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := ParallelFor(ctx, 1000, 4, func(context.Context, int, int) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
}
