// fixed-size worker pool with a bounded task queue, back-pressure on submit.
//
// grounded on the teacher's internal/session.go (workerEpoll/startWorkerPool
// shape: fixed goroutine set pulling from a channel) generalized per
// original_source/pool/thread_pool.h's half-sync/half-reactive pattern —
// here the "request queue" is a Go channel rather than a std::queue guarded
// by a condition variable, which is the idiomatic Go rendering of the same
// contract.
package workerpool

import (
	"sync"

	"github.com/kfcemployee/webserver/internal/logging"
)

// Task is an opaque unit of work; it captures everything it needs to
// process one ready connection.
type Task func()

// Pool runs a fixed number of worker goroutines pulling tasks from a
// bounded channel. Submit blocks (producer back-pressure) once the queue
// is full instead of rejecting work.
type Pool struct {
	tasks  chan Task
	log    *logging.Logger
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// New starts numWorkers goroutines and a task queue capped at maxRequests.
func New(numWorkers, maxRequests int, log *logging.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if maxRequests <= 0 {
		maxRequests = 1
	}

	p := &Pool{
		tasks:  make(chan Task, maxRequests),
		log:    log,
		closed: make(chan struct{}),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task, blocking while the queue is full. Submitting to a
// stopped pool is a no-op.
func (p *Pool) Submit(t Task) {
	select {
	case <-p.closed:
		return
	default:
	}
	select {
	case p.tasks <- t:
	case <-p.closed:
	}
}

// worker pulls tasks until the pool is stopped. A task that panics is
// caught and logged; it never takes the worker down with it.
func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.runTask(t)
		case <-p.closed:
			return
		}
	}
}

func (p *Pool) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Errorf("worker task panicked: %v", r)
			}
		}
	}()
	t()
}

// Stop signals every worker to exit and waits for them to return; a task
// already running finishes first, tasks still queued may never run. Stop
// is idempotent.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}
