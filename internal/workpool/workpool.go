// Package workpool bounds the goroutines used to check independent
// declarations in parallel.
package workpool

import (
	"runtime"
	"sync"
)

// Pool is a soft limit on concurrently running tasks. Tasks queue until a
// slot frees up; the pool itself holds no goroutines between calls.
type Pool struct {
	// maxParallelism is the target limit of tasks running at once. Zero
	// disables parallelism (tasks run inline), negative means unlimited.
	maxParallelism int

	mu sync.Mutex
	// cond is signaled whenever numRunning decreases.
	cond       sync.Cond
	numRunning int
}

// New returns a Pool with the default parallelism of runtime.NumCPU().
func New() *Pool {
	p := &Pool{maxParallelism: runtime.NumCPU()}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// SetMaxParallelism changes the target limit: 0 disables parallelism, -1
// removes the limit. Only call before any tasks start; changing it while
// tasks run is undefined.
func (p *Pool) SetMaxParallelism(maxParallelism int) {
	p.maxParallelism = maxParallelism
}

// waitToStart blocks until a slot is free, then runs task in its own
// goroutine.
func (p *Pool) waitToStart(task func()) {
	if p.maxParallelism < 0 {
		go task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.numRunning >= p.maxParallelism {
		p.cond.Wait()
	}
	p.numRunning++
	go func() {
		task()
		p.mu.Lock()
		p.numRunning--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}

// ForEach runs task(0) .. task(n-1) and returns when all have finished. At
// most MaxParallelism tasks run at any moment; with parallelism disabled (or
// a single task) everything runs inline on the calling goroutine.
func (p *Pool) ForEach(n int, task func(ii int)) {
	if p.maxParallelism == 0 || n <= 1 {
		for ii := 0; ii < n; ii++ {
			task(ii)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for ii := 0; ii < n; ii++ {
		ii := ii
		p.waitToStart(func() {
			defer wg.Done()
			task(ii)
		})
	}
	wg.Wait()
}
