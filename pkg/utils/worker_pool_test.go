package utils

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	pool := NewWorkerPool(4)
	var count atomic.Int64
	for i := 0; i < 100; i++ {
		pool.Execute(func() { count.Add(1) })
	}
	pool.Wait()
	assert.Equal(t, int64(100), count.Load())
}

func TestWorkerPoolLimitsConcurrency(t *testing.T) {
	const limit = 3
	pool := NewWorkerPool(limit)

	var mu sync.Mutex
	inflight, peak := 0, 0

	for i := 0; i < 30; i++ {
		pool.Execute(func() {
			mu.Lock()
			inflight++
			if inflight > peak {
				peak = inflight
			}
			mu.Unlock()

			mu.Lock()
			inflight--
			mu.Unlock()
		})
	}
	pool.Wait()
	assert.LessOrEqual(t, peak, limit)
}

func TestWorkerPoolPanicHandler(t *testing.T) {
	var caught atomic.Value
	pool := NewWorkerPool(2, WithPanicHandler(func(r any) {
		caught.Store(r)
	}))

	pool.Execute(func() { panic("task blew up") })
	pool.Execute(func() {})
	pool.Wait()

	assert.Equal(t, "task blew up", caught.Load())
}
