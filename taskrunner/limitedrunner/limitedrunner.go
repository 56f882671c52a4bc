// Package limitedrunner implements taskrunner.TaskRunner with a bounded
// number of worker go routines.
package limitedrunner

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/huangjunwen/shardsync/taskrunner"
)

const (
	// Default persistent worker go routines.
	DefaultMinWorkers = 1

	// Default maximum worker go routines. One per shard store is usually enough.
	DefaultMaxWorkers = 16

	// Default queue size.
	DefaultQueueSize = 64

	// Default idle time for on-demand worker before quit.
	DefaultIdleTime = 30 * time.Second
)

var (
	_ TaskRunner = (*LimitedRunner)(nil)
)

// LimitedRunner starts MinWorkers persistent go routines which live until Close.
// When a task is submitted and no worker is idle, an on-demand worker is started
// with it (up to MaxWorkers in total); on-demand workers exit after IdleTime
// without work. Otherwise tasks wait in a buffered channel of QueueSize.
type LimitedRunner struct {
	minWorkers int // at least 1
	maxWorkers int // at least minWorkers
	queueSize  int // at least 1
	idleTime   time.Duration
	onPanic    func(interface{})

	quotaCh chan struct{} // one token per running worker
	taskCh  chan func()
	idle    int32 // atomic: workers waiting for a task
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Must creates a LimitedRunner or panic.
func Must(opts ...Option) *LimitedRunner {
	ret, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return ret
}

// New creates a new LimitedRunner.
func New(opts ...Option) (*LimitedRunner, error) {
	r := &LimitedRunner{
		minWorkers: DefaultMinWorkers,
		maxWorkers: DefaultMaxWorkers,
		queueSize:  DefaultQueueSize,
		idleTime:   DefaultIdleTime,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if r.maxWorkers < r.minWorkers {
		return nil, badOption("MaxWorkers(%d) < MinWorkers(%d)", r.maxWorkers, r.minWorkers)
	}

	r.quotaCh = make(chan struct{}, r.maxWorkers)
	r.taskCh = make(chan func(), r.queueSize)

	for i := 0; i < r.minWorkers; i++ {
		r.quotaCh <- struct{}{}
		r.wg.Add(1)
		go r.workerLoop(true, nil)
	}

	return r, nil
}

func (r *LimitedRunner) run(task func()) {
	defer func() {
		if v := recover(); v != nil && r.onPanic != nil {
			r.onPanic(v)
		}
	}()
	task()
}

// workerLoop handles tasks until taskCh closed, or idle long enough
// for on-demand workers.
func (r *LimitedRunner) workerLoop(persistent bool, task func()) {

	defer func() {
		<-r.quotaCh
		r.wg.Done()
	}()

	// idleCh stays nil for persistent workers so they never time out.
	var idleCh <-chan time.Time
	var idleTimer *time.Timer
	if !persistent {
		idleTimer = time.NewTimer(r.idleTime)
		defer idleTimer.Stop()
	}

	for {
		if task != nil {
			r.run(task)
		}

		if idleTimer != nil {
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(r.idleTime)
			idleCh = idleTimer.C
		}

		atomic.AddInt32(&r.idle, 1)
		select {
		case t, ok := <-r.taskCh:
			atomic.AddInt32(&r.idle, -1)
			if !ok {
				return
			}
			task = t

		case <-idleCh:
			atomic.AddInt32(&r.idle, -1)
			return
		}
	}

}

// Submit implements taskrunner interface. Returns ErrTooBusy if no worker can
// be started and the queue is full at this moment.
func (r *LimitedRunner) Submit(task func()) error {
	if task == nil {
		panic(fmt.Errorf("LimitedRunner.Submit(nil)"))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}

	if atomic.LoadInt32(&r.idle) == 0 {
		select {
		case r.quotaCh <- struct{}{}:
			r.wg.Add(1)
			go r.workerLoop(false, task)
			return nil
		default:
		}
	}

	select {
	case r.taskCh <- task:
		return nil
	default:
		return ErrTooBusy
	}

}

// Close implements taskrunner interface. Returns when all submitted task finished.
func (r *LimitedRunner) Close() {

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.taskCh)
	}
	r.mu.Unlock()

	r.wg.Wait()
}
