// Package replicate fans a change event out to the full replica and to the
// shard selected by the event's category.
//
// The two writes are independent units: one failing never prevents nor
// reverts the other. Delivery is at-least-once and best-effort; there is no
// atomicity across targets.
package replicate

import (
	"context"
	"fmt"

	"github.com/huangjunwen/shardsync/change"
	"github.com/huangjunwen/shardsync/logr"
	"github.com/huangjunwen/shardsync/shard"
	"github.com/huangjunwen/shardsync/target"
	"github.com/huangjunwen/shardsync/taskrunner"
)

// Status of one target write.
type Status string

const (
	// StatusApplied means the write committed.
	StatusApplied Status = "applied"

	// StatusFailed means the write was rolled back; Outcome.Err holds the *target.Error.
	StatusFailed Status = "failed"

	// StatusSkipped means the target was unready and nothing was attempted.
	StatusSkipped Status = "skipped"

	// StatusUnrouted means no shard owns the category. It is not an error.
	StatusUnrouted Status = "unrouted"
)

// Outcome of one target write.
type Outcome struct {
	Target string
	Status Status
	Err    error
}

// Report of one dispatched event.
type Report struct {
	Event   change.Event
	Replica Outcome
	Shard   Outcome
}

// Failed reports whether any target write failed (skips and misses are not failures).
func (r Report) Failed() bool {
	return r.Replica.Status == StatusFailed || r.Shard.Status == StatusFailed
}

// Options is options used in NewDispatcher.
type Options struct {
	// Runner, if not nil, runs the shard write concurrently with the replica
	// write. Dispatch still waits for both before returning.
	Runner taskrunner.TaskRunner

	// Logger for logging.
	Logger logr.Logger
}

// Dispatcher routes and applies change events.
type Dispatcher struct {
	replica target.Writer
	router  *shard.Router
	runner  taskrunner.TaskRunner
	logger  logr.Logger
}

// NewDispatcher creates a Dispatcher. replica may be nil, in which case every
// replica write is reported as skipped.
func NewDispatcher(replica target.Writer, router *shard.Router, opts *Options) *Dispatcher {
	if opts == nil {
		opts = &Options{}
	}
	return &Dispatcher{
		replica: replica,
		router:  router,
		runner:  opts.Runner,
		logger:  logr.OrNop(opts.Logger),
	}
}

// Dispatch applies ev to the full replica and to its shard, if any.
// Insert/Update route by the current category, Delete by the last known one
// carried in the event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev change.Event) Report {
	report := Report{Event: ev}
	logger := d.logger.WithValues("op", ev.Kind.String(), "id", int64(ev.ID), "category", ev.Attrs.Category)

	var shardWriter target.Writer
	if d.router != nil {
		shardWriter, _ = d.router.Route(ev.Attrs.Category)
	}

	var shardDone <-chan struct{}
	if shardWriter != nil {
		shardDone = taskrunner.Go(d.runner, func() {
			report.Shard = d.apply(ctx, logger, shardWriter, ev)
		})
	} else {
		report.Shard = Outcome{Status: StatusUnrouted}
		logger.Info("category matches no shard, shard write skipped")
	}

	if d.replica != nil {
		report.Replica = d.apply(ctx, logger, d.replica, ev)
	} else {
		report.Replica = Outcome{Status: StatusSkipped, Err: fmt.Errorf("no full replica configured")}
		logger.Info("full replica not ready, replica write skipped")
	}

	if shardDone != nil {
		<-shardDone
	}
	return report
}

func (d *Dispatcher) apply(ctx context.Context, logger logr.Logger, w target.Writer, ev change.Event) (outcome Outcome) {
	outcome.Target = w.Name()
	logger = logger.WithValues("target", w.Name())

	defer func() {
		if v := recover(); v != nil {
			outcome.Status = StatusFailed
			outcome.Err = fmt.Errorf("%s %s %d: panic: %v", w.Name(), ev.Kind, ev.ID, v)
			logger.Error(outcome.Err, "write panicked")
		}
	}()

	err := w.Apply(ctx, ev)
	switch {
	case err == nil:
		outcome.Status = StatusApplied

	case target.IsUnready(err):
		outcome.Status = StatusSkipped
		outcome.Err = err
		logger.Info("target not ready, write skipped")

	default:
		outcome.Status = StatusFailed
		outcome.Err = err
		logger.Error(err, "write failed and was rolled back", "kind", target.KindOf(err).String())
	}
	return
}
