// Package taskrunner runs independent target writes off the dispatching goroutine.
package taskrunner

import (
	"errors"
)

var (
	// ErrClosed is returned when task is submitted after closed.
	ErrClosed = errors.New("TaskRunner: Closed")

	// ErrTooBusy is returned when task is submitted but the task runner is too busy to handle.
	ErrTooBusy = errors.New("TaskRunner: Too busy")
)

// TaskRunner is an interface to run tasks.
type TaskRunner interface {
	// Submit submits a task to run. The call must not block.
	// Return an error if the task can't be run.
	Submit(task func()) error

	// Close stops the TaskRunner and waits for all tasks finish.
	// Any Submit after Close should return an error.
	Close()
}

// Go runs task on r and returns a channel closed once task returns.
// If r is nil or rejects the task, task runs inline before Go returns.
func Go(r TaskRunner, task func()) <-chan struct{} {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		task()
	}
	if r == nil || r.Submit(wrapped) != nil {
		wrapped()
	}
	return done
}
