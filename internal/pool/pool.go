// Package pool provides the fixed-size worker pool all directory work runs
// on. Each worker is a serial executor owning its own connection cache, so
// cache state is never shared and never locked; the same connection key may
// hold distinct physical connections across workers.
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rabbitmq/rabbitmq-auth-backend-ldap/internal/ldap"
)

// DefaultSize is the worker count used when configuration does not set one.
const DefaultSize = 64

// Worker is a serial executor with its own connection cache. A task runs on
// exactly one worker from start to finish.
type Worker struct {
	id    int
	tasks chan func()
	cache *ldap.ConnCache
}

// ID returns the worker's index within the pool.
func (w *Worker) ID() int { return w.id }

// Cache returns the worker-local connection cache.
func (w *Worker) Cache() *ldap.ConnCache { return w.cache }

// Pool dispatches tasks across its workers and periodically asks each
// worker to sweep idle connections on its own queue, keeping every cache
// mutation on the owning worker.
type Pool struct {
	workers []*Worker
	next    atomic.Uint32
	wg      sync.WaitGroup

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New starts size workers (DefaultSize when size <= 0), each with a cache
// built by newCache. sweepEvery sets the idle-eviction sweep interval; zero
// disables the sweeper and leaves eviction to the lazy check on acquire.
func New(size int, newCache func() *ldap.ConnCache, sweepEvery time.Duration, log *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{workers: make([]*Worker, size)}
	for i := range p.workers {
		w := &Worker{
			id:    i,
			tasks: make(chan func(), 1),
			cache: newCache(),
		}
		p.workers[i] = w
		p.wg.Add(1)
		go p.runWorker(w)
	}

	if sweepEvery > 0 {
		p.sweepStop = make(chan struct{})
		p.sweepDone = make(chan struct{})
		go p.runSweeper(sweepEvery)
	}

	log.Debug("worker pool started", zap.Int("size", size))
	return p
}

// Run executes fn to completion on a single worker and returns its result.
// The submitting goroutine blocks for the duration; callers needing
// non-blocking semantics arrange it above the pool.
func (p *Pool) Run(fn func(*Worker) error) error {
	w := p.workers[int(p.next.Add(1))%len(p.workers)]
	done := make(chan error, 1)
	w.tasks <- func() { done <- fn(w) }
	return <-done
}

// Close stops the sweeper, drains the workers, and tears down their caches.
func (p *Pool) Close() {
	if p.sweepStop != nil {
		close(p.sweepStop)
		<-p.sweepDone
	}
	for _, w := range p.workers {
		close(w.tasks)
	}
	p.wg.Wait()
}

func (p *Pool) runWorker(w *Worker) {
	defer p.wg.Done()
	for task := range w.tasks {
		task()
	}
	w.cache.Close()
}

func (p *Pool) runSweeper(every time.Duration) {
	defer close(p.sweepDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			for _, w := range p.workers {
				// Busy workers skip a round; the acquire path evicts
				// expired connections lazily anyway.
				select {
				case w.tasks <- w.cache.Sweep:
				default:
				}
			}
		}
	}
}
