// Package task runs pure CPU work on a fixed set of workers. Tasks are
// dispatched by kind to a static registry of handlers; results come back
// through per-task futures correlated by task id, so callers on the main
// loop can poll without blocking a frame.
package task

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/syncmap"
)

var (
	ErrUnknownKind = errors.New("task: unknown task kind")
	ErrTerminated  = errors.New("task: pool terminated")
)

// Kind names a registered handler.
type Kind string

// Handler executes one task. It must be a pure function of its payload.
type Handler func(payload any) (any, error)

// Registry is the fixed set of task kinds a pool can run.
type Registry map[Kind]Handler

// Result is the outcome of a finished task.
type Result struct {
	Value any
	Err   error
}

// Pending is a handle to a submitted task.
type Pending struct {
	id   uint64
	kind Kind

	once sync.Once
	done chan Result
}

// Done returns a channel that receives exactly one Result.
func (p *Pending) Done() <-chan Result { return p.done }

// Poll returns the result without blocking. ok is false while the task is
// still in flight.
func (p *Pending) Poll() (Result, bool) {
	select {
	case res := <-p.done:
		return res, true
	default:
		return Result{}, false
	}
}

func (p *Pending) complete(res Result) {
	p.once.Do(func() {
		p.done <- res
		close(p.done)
	})
}

type worker struct {
	tasks chan *Pending
	load  atomic.Int64
}

// Pool distributes tasks across workers, picking the one with the least
// pending load at submission time.
type Pool struct {
	registry Registry
	workers  []*worker
	payloads syncmap.Map // task id -> payload
	pending  syncmap.Map // task id -> *Pending
	nextId   atomic.Uint64
	disposed atomic.Bool
	done     chan struct{} // closed by Dispose
	wg       sync.WaitGroup
}

// NewPool starts n workers over the given registry. n < 1 is clamped to 1.
func NewPool(n int, registry Registry) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{registry: registry, done: make(chan struct{})}
	for i := 0; i < n; i++ {
		w := &worker{tasks: make(chan *Pending, 64)}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go p.run(w)
	}
	return p
}

func (p *Pool) run(w *worker) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case t := <-w.tasks:
			if p.disposed.Load() {
				p.payloads.Delete(t.id)
				p.pending.Delete(t.id)
				w.load.Add(-1)
				t.complete(Result{Err: ErrTerminated})
				continue
			}
			handler := p.registry[t.kind]
			payload, _ := p.payloads.Load(t.id)
			value, err := p.invoke(handler, payload)
			p.payloads.Delete(t.id)
			p.pending.Delete(t.id)
			w.load.Add(-1)
			t.complete(Result{Value: value, Err: err})
		}
	}
}

func (p *Pool) invoke(handler Handler, payload any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task: handler panicked: %v", r)
		}
	}()
	return handler(payload)
}

// Submit queues a task on the least-loaded worker. When that worker's queue
// is full the call blocks until space frees or the pool is disposed.
func (p *Pool) Submit(kind Kind, payload any) (*Pending, error) {
	if p.disposed.Load() {
		return nil, ErrTerminated
	}
	if _, ok := p.registry[kind]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	t := &Pending{
		id:   p.nextId.Add(1),
		kind: kind,
		done: make(chan Result, 1),
	}

	var best *worker
	for _, w := range p.workers {
		if best == nil || w.load.Load() < best.load.Load() {
			best = w
		}
	}
	best.load.Add(1)
	p.payloads.Store(t.id, payload)
	p.pending.Store(t.id, t)

	// A full queue blocks rather than drops; a concurrent Dispose closes
	// done, which unblocks the send and rejects the task instead.
	select {
	case best.tasks <- t:
		return t, nil
	case <-p.done:
	}
	p.payloads.Delete(t.id)
	p.pending.Delete(t.id)
	best.load.Add(-1)
	t.complete(Result{Err: ErrTerminated})
	return t, nil
}

// PendingCount reports tasks submitted but not yet finished.
func (p *Pool) PendingCount() int {
	count := 0
	p.pending.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// Dispose stops the workers and rejects every in-flight task with
// ErrTerminated so no caller hangs on a future.
func (p *Pool) Dispose() {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	close(p.done)
	p.wg.Wait()
	p.pending.Range(func(key, value any) bool {
		value.(*Pending).complete(Result{Err: ErrTerminated})
		p.pending.Delete(key)
		p.payloads.Delete(key)
		return true
	})
}
