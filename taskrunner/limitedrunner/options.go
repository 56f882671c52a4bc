package limitedrunner

import (
	"errors"
	"time"

	perrors "github.com/pkg/errors"
)

var (
	// ErrBadOption is wrapped by every option validation failure of New.
	ErrBadOption = errors.New("limitedrunner: bad option")
)

// Option configures a LimitedRunner in New.
type Option func(*LimitedRunner) error

func badOption(format string, args ...interface{}) error {
	return perrors.Wrapf(ErrBadOption, format, args...)
}

// MinWorkers is the number of persistent workers, at least 1.
func MinWorkers(n int) Option {
	return func(r *LimitedRunner) error {
		if n < 1 {
			return badOption("MinWorkers(%d)", n)
		}
		r.minWorkers = n
		return nil
	}
}

// MaxWorkers bounds persistent plus on-demand workers. Must not be less than MinWorkers.
func MaxWorkers(n int) Option {
	return func(r *LimitedRunner) error {
		if n < 1 {
			return badOption("MaxWorkers(%d)", n)
		}
		r.maxWorkers = n
		return nil
	}
}

// QueueSize is the capacity of the pending task queue, at least 1.
func QueueSize(n int) Option {
	return func(r *LimitedRunner) error {
		if n < 1 {
			return badOption("QueueSize(%d)", n)
		}
		r.queueSize = n
		return nil
	}
}

// IdleTime is how long an on-demand worker waits for a task before exiting.
func IdleTime(d time.Duration) Option {
	return func(r *LimitedRunner) error {
		if d < 0 {
			return badOption("IdleTime(%s)", d)
		}
		r.idleTime = d
		return nil
	}
}

// OnPanic receives the value of a panicking task. The worker survives the panic either way.
func OnPanic(fn func(v interface{})) Option {
	return func(r *LimitedRunner) error {
		r.onPanic = fn
		return nil
	}
}
