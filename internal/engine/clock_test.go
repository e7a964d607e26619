package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtZero(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(100), NewClockAt(100).Current())
}

func TestClock_NextIsStrictlyIncreasing(t *testing.T) {
	c := NewClockAt(5)
	assert.Equal(t, int64(6), c.Next())
	assert.Equal(t, int64(7), c.Next())
	assert.Equal(t, int64(7), c.Current())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const goroutines, calls = 50, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range calls {
				v := c.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), c.Current())
}
