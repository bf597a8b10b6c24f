package task

import "sync"

// WorkerPool is a fixed pool of workers performing synchronous fork-join
// runs. A run dispatches one closure per worker and blocks until every
// worker returns; there are no continuations, no cancellation, and no
// timeouts.
type WorkerPool struct {
	numWorkers int
	jobs       []chan func(workerID int)
	done       chan struct{}
	wg         sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewWorkerPool starts numWorkers long-lived workers.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	p := &WorkerPool{
		numWorkers: numWorkers,
		jobs:       make([]chan func(int), numWorkers),
		done:       make(chan struct{}, numWorkers),
		stopped:    make(chan struct{}),
	}
	for w := 0; w < numWorkers; w++ {
		p.jobs[w] = make(chan func(int))
		go p.worker(w)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	for {
		select {
		case fn := <-p.jobs[id]:
			fn(id)
			p.done <- struct{}{}
		case <-p.stopped:
			return
		}
	}
}

// NumWorkers returns the pool size.
func (p *WorkerPool) NumWorkers() int { return p.numWorkers }

// Run executes fn on the first activeWorkers workers and blocks until all
// of them have returned. fn receives the pool-wide worker index.
func (p *WorkerPool) Run(activeWorkers int, fn func(workerID int)) {
	if activeWorkers < 1 {
		activeWorkers = 1
	}
	if activeWorkers > p.numWorkers {
		activeWorkers = p.numWorkers
	}
	for w := 0; w < activeWorkers; w++ {
		p.jobs[w] <- fn
	}
	for w := 0; w < activeWorkers; w++ {
		<-p.done
	}
}

// Stop shuts the pool down. Pending runs must have completed.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopped) })
}
