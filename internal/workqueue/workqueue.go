// Package workqueue implements the Work Queue: a dynamically-growing,
// self-terminating parallel executor over work units, with in-flight
// enqueue and cooperative cancellation.
//
// Grounded on two corpus shapes:
//   - the fan-out Operator in other_examples' quarry/runtime/fanout.go,
//     whose Run loop drains a channel with a bounded semaphore, tracks
//     in-flight workers with a sync.WaitGroup, and terminates only when the
//     queue is empty AND no worker is still running — the direct
//     structural ancestor of Run below.
//   - standardbeagle/lci's internal/indexing/concurrent_operations.go for
//     the pending/active bookkeeping style; here the pending slice and
//     active count are guarded by one mutex and a sync.Cond.
package workqueue

import (
	"context"
	"runtime"
	"sync"

	"github.com/cpscan/engine/internal/errors"
	"github.com/cpscan/engine/internal/monitor"
)

// Handle is passed to each Processor invocation; it lets a processor
// enqueue further work units discovered while processing the current one.
// Adding work from within a processor is safe and is visible to any idle
// worker.
type Handle[T any] interface {
	Add(units ...T)
}

// Processor handles one work unit. A non-nil error is reported to Run as
// a failure.
type Processor[T any] func(ctx context.Context, unit T, h Handle[T]) error

// Queue is a dynamically-growing bounded-parallel executor.
type Queue[T any] struct {
	parallelism int
	mon         *monitor.Monitor

	mu      sync.Mutex
	pending []T
	active  int // number of workers currently inside processor(); guarded by mu

	cond *sync.Cond

	errMu      sync.Mutex
	firstErr   error
	multiErr   *errors.MultiError
	enqueued   int64 // total units ever enqueued, for diagnostics
	processed  int64
	drainedRun bool
}

// Parallelism picks min(available_cpus, entries) with a lower bound of 1.
func Parallelism(entries int) int {
	n := runtime.NumCPU()
	if entries > 0 && entries < n {
		n = entries
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New creates a Queue bound to a Monitor for cooperative cancellation.
func New[T any](parallelism int, mon *monitor.Monitor) *Queue[T] {
	if parallelism < 1 {
		parallelism = 1
	}
	q := &Queue[T]{parallelism: parallelism, mon: mon}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// handle is the concrete Handle[T] given to processors; it pushes directly
// onto the queue's pending slice and wakes one waiting worker.
type handle[T any] struct {
	q *Queue[T]
}

func (h handle[T]) Add(units ...T) {
	if len(units) == 0 {
		return
	}
	h.q.mu.Lock()
	h.q.pending = append(h.q.pending, units...)
	h.q.enqueued += int64(len(units))
	h.q.cond.Broadcast()
	h.q.mu.Unlock()
}

// Run executes processor(unit, handle) for every unit in initial and for
// every unit added via the handle during processing. Returns when the
// queue is drained and all workers are idle, or when the monitor trips.
//
// Termination check ("pending == 0 && active == 0") is evaluated under the
// queue's own mutex so it is atomic with respect to concurrent Add calls.
func Run[T any](ctx context.Context, mon *monitor.Monitor, parallelism int, initial []T, processor Processor[T]) error {
	q := New[T](parallelism, mon)
	q.pending = append(q.pending, initial...)
	q.enqueued = int64(len(initial))

	var wg sync.WaitGroup
	h := handle[T]{q: q}

	worker := func() {
		defer wg.Done()
		for {
			q.mu.Lock()
			for len(q.pending) == 0 && q.active > 0 {
				if mon.Tripped() {
					q.mu.Unlock()
					return
				}
				q.cond.Wait()
			}
			if len(q.pending) == 0 {
				// No pending work and nobody active: queue is drained.
				q.cond.Broadcast() // wake any sibling stuck in the wait above
				q.mu.Unlock()
				return
			}
			if mon.Tripped() {
				// Discard remaining pending units on a tripped monitor.
				q.pending = nil
				q.mu.Unlock()
				return
			}
			unit := q.pending[0]
			q.pending = q.pending[1:]
			q.active++
			q.mu.Unlock()

			err := processor(mon.Context(), unit, h)

			q.mu.Lock()
			q.active--
			q.processed++
			q.mu.Unlock()
			q.cond.Broadcast()

			if err != nil {
				q.recordFailure(err)
				mon.Trip(err)
			}

			select {
			case <-mon.Context().Done():
				return
			default:
			}
		}
	}

	wg.Add(q.parallelism)
	for i := 0; i < q.parallelism; i++ {
		go worker()
	}
	wg.Wait()

	if mon.Tripped() {
		if cause := mon.Cause(); cause != nil {
			return cause
		}
		return errors.New(errors.KindCancelled, "", ctx.Err())
	}
	return q.firstErrorLocked()
}

// Stats pairs how many units were ever enqueued with how many were
// processed. Run does not return one; the counts stay inside the Queue.
type Stats struct {
	Enqueued  int64
	Processed int64
}

func (q *Queue[T]) recordFailure(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.firstErr == nil {
		q.firstErr = err
		q.multiErr = errors.NewMultiError(err)
		return
	}
	q.multiErr.Attach(err)
}

func (q *Queue[T]) firstErrorLocked() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	if q.multiErr == nil {
		return nil
	}
	return q.multiErr
}
