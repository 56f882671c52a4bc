// Package monitor drives the poll -> diff -> dispatch cycle on a fixed
// interval and owns the baseline snapshot.
package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	perrors "github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/huangjunwen/shardsync/change"
	"github.com/huangjunwen/shardsync/logr"
	"github.com/huangjunwen/shardsync/metrics"
	"github.com/huangjunwen/shardsync/replicate"
	"github.com/huangjunwen/shardsync/snapshot"
)

var (
	// DefaultInterval is the default value of Options.Interval.
	DefaultInterval = 5 * time.Second

	// DefaultErrorBackoff is the default value of Options.ErrorBackoff.
	DefaultErrorBackoff = 10 * time.Second
)

// Poller captures the source table.
type Poller interface {
	Poll(ctx context.Context) (snapshot.Snapshot, error)
}

// Dispatcher applies one change event to its targets.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev change.Event) replicate.Report
}

// Target is a store handle acquired during Initializing and released on Stopped.
// *productdb.DB implements it.
type Target interface {
	Name() string
	Acquire(ctx context.Context) error
	Close() error
}

// Options is options used in New.
type Options struct {
	// Targets are every handle the loop needs: source, replica and shards.
	Targets []Target

	// Interval between two successful cycles.
	//
	// Use DefaultInterval if not set.
	Interval time.Duration

	// ErrorBackoff is the wait after a failed cycle.
	//
	// Use DefaultErrorBackoff if not set.
	ErrorBackoff time.Duration

	// Clock, use clock.WallClock if not set.
	Clock clock.Clock

	// Logger for logging.
	Logger logr.Logger

	// Metrics, may be nil.
	Metrics *metrics.Metrics
}

// Loop is the monitor state machine. A Loop runs once: after Run returns it is Stopped.
type Loop struct {
	poller     Poller
	dispatcher Dispatcher
	targets    []Target
	interval   time.Duration
	backoff    time.Duration
	clock      clock.Clock
	logger     logr.Logger
	metrics    *metrics.Metrics

	// store is only touched by the goroutine executing Run.
	store *snapshot.Store

	state   int32 // atomic State
	started int32 // atomic
}

// New creates a Loop in Initializing state.
func New(poller Poller, dispatcher Dispatcher, opts *Options) *Loop {
	if opts == nil {
		opts = &Options{}
	}
	l := &Loop{
		poller:     poller,
		dispatcher: dispatcher,
		targets:    opts.Targets,
		interval:   DefaultInterval,
		backoff:    DefaultErrorBackoff,
		clock:      opts.Clock,
		logger:     logr.OrNop(opts.Logger),
		metrics:    opts.Metrics,
		store:      snapshot.NewStore(),
	}
	if opts.Interval > 0 {
		l.interval = opts.Interval
	}
	if opts.ErrorBackoff > 0 {
		l.backoff = opts.ErrorBackoff
	}
	if l.clock == nil {
		l.clock = clock.WallClock
	}
	return l
}

// State returns the current state. Safe to call from any goroutine.
func (l *Loop) State() State {
	return State(atomic.LoadInt32(&l.state))
}

func (l *Loop) setState(s State) {
	atomic.StoreInt32(&l.state, int32(s))
	l.logger.Info("monitor state", "state", s.String())
}

// Run acquires every target, loads the baseline, then cycles until ctx is done.
// It returns nil after a clean stop, a StartupError (matching ErrStartup) if
// Initializing failed, or ErrStopped if the loop already ran. Targets are
// released before Run returns in every case.
func (l *Loop) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&l.started, 0, 1) {
		return ErrStopped
	}
	defer l.stop()

	if err := l.initialize(ctx); err != nil {
		l.logger.Error(err, "monitor failed to start")
		return err
	}
	l.setState(Running)

	for {
		if ctx.Err() != nil {
			return nil
		}

		delay := l.interval
		if _, err := l.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info("cycle abandoned on stop", "reason", err.Error())
				return nil
			}
			l.logger.Error(err, "cycle failed, snapshot kept", "backoff", l.backoff.String())
			delay = l.backoff
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.clock.After(delay):
		}
	}
}

// initialize acquires every target then loads the baseline without diffing, so
// rows already present at start-up emit no events.
func (l *Loop) initialize(ctx context.Context) error {
	for _, t := range l.targets {
		if err := t.Acquire(ctx); err != nil {
			return &StartupError{Target: t.Name(), Err: err}
		}
	}

	snap, err := l.poller.Poll(ctx)
	if err != nil {
		return &StartupError{Target: "baseline", Err: err}
	}
	l.store.Replace(snap)
	l.metrics.SetSnapshotRows(l.store.Len())
	l.logger.Info("baseline loaded", "rows", l.store.Len())
	return nil
}

// cycle polls, diffs against the baseline, dispatches every event in order,
// then replaces the baseline. On error (or panic) the baseline is untouched.
// Writes run detached from ctx so an in-flight write is never interrupted;
// cancellation is checked between events.
func (l *Loop) cycle(ctx context.Context) (n int, err error) {
	start := l.clock.Now()
	logger := l.logger.WithValues("cycle", uuid.NewV4().String())

	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("cycle panic: %v", v)
		}
		l.metrics.ObserveCycle(l.clock.Now().Sub(start), err)
	}()

	curr, err := l.poller.Poll(ctx)
	if err != nil {
		return 0, err
	}

	evs := change.Diff(l.store.Current(), curr)
	if len(evs) != 0 {
		counts := change.Count(evs)
		logger.Info("changes detected",
			"inserts", counts[change.Insert],
			"updates", counts[change.Update],
			"deletes", counts[change.Delete],
		)
	}

	writeCtx := context.WithoutCancel(ctx)
	failed := 0
	for i, ev := range evs {
		if ctx.Err() != nil {
			return i, perrors.Wrapf(ctx.Err(), "cycle abandoned after %d of %d events", i, len(evs))
		}
		l.metrics.ObserveEvent(ev.Kind.String())

		report := l.dispatcher.Dispatch(writeCtx, ev)
		l.metrics.ObserveWrite(report.Replica.Target, string(report.Replica.Status))
		l.metrics.ObserveWrite(report.Shard.Target, string(report.Shard.Status))
		if report.Failed() {
			failed++
		}
	}

	l.store.Replace(curr)
	l.metrics.SetSnapshotRows(l.store.Len())
	if len(evs) != 0 {
		logger.Info("cycle dispatched", "events", len(evs), "with_failures", failed, "rows", l.store.Len())
	}
	return len(evs), nil
}

func (l *Loop) stop() {
	for _, t := range l.targets {
		if err := t.Close(); err != nil {
			l.logger.Error(err, "close target", "target", t.Name())
		}
	}
	l.setState(Stopped)
}
