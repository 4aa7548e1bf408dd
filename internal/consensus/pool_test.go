package consensus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(3)

	var mu sync.Mutex
	active, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Run(func() {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 3, "no more than pool-size tasks may run at once")
	assert.Positive(t, peak)
	assert.Zero(t, active)
}

func TestPoolDefaultSize(t *testing.T) {
	assert.Equal(t, 5, NewPool(0).Size(), "zero falls back to one decision pass worth of workers")
	assert.Equal(t, 40, NewPool(40).Size())
}
