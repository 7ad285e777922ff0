package service

import (
	"sync"
	"time"

	metrics "github.com/sifan077/PowerLink/internal/infra/prometheus"
)

// ClickQueueOptions bounds the background work behind click recording.
type ClickQueueOptions struct {
	// Workers is the number of goroutines draining the queue.
	Workers int
	// Size is the queue capacity. Clicks arriving while it is full are
	// dropped and counted under click_record_failures_total{stage="dropped"}.
	Size int
	// Timeout bounds each job.
	Timeout time.Duration
}

const (
	defaultClickWorkers   = 8
	defaultClickQueueSize = 1024
	defaultClickTimeout   = 5 * time.Second
)

func (o ClickQueueOptions) withDefaults() ClickQueueOptions {
	if o.Workers <= 0 {
		o.Workers = defaultClickWorkers
	}
	if o.Size <= 0 {
		o.Size = defaultClickQueueSize
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultClickTimeout
	}
	return o
}

// clickQueue runs jobs on a fixed pool of workers and never blocks the caller.
type clickQueue struct {
	jobs    chan func()
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newClickQueue(workers, size int) *clickQueue {
	q := &clickQueue{jobs: make(chan func(), size)}
	q.workers.Add(workers)
	for range workers {
		go func() {
			defer q.workers.Done()
			for job := range q.jobs {
				job()
				q.pending.Done()
			}
		}()
	}
	return q
}

// submit enqueues job, or drops it when the queue is full or closed.
func (q *clickQueue) submit(job func()) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.closed {
		q.pending.Add(1)
		select {
		case q.jobs <- job:
			return true
		default:
			q.pending.Done()
		}
	}
	metrics.ClickFailures.WithLabelValues("dropped").Inc()
	return false
}

// wait blocks until every accepted job has finished.
func (q *clickQueue) wait() {
	q.pending.Wait()
}

// close stops accepting jobs, lets the workers drain what is queued and
// returns once they exit.
func (q *clickQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.workers.Wait()
}
