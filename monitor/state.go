package monitor

import (
	"errors"
	"fmt"
)

// State of a Loop. Transitions only go forward:
// Initializing -> Running -> Stopped, or Initializing -> Stopped on a fatal start-up failure.
type State int32

const (
	Initializing State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	// ErrStartup is matched (errors.Is) by every fatal start-up failure.
	ErrStartup = errors.New("monitor: startup failed")

	// ErrStopped is returned by Run on a loop that has already run.
	ErrStopped = errors.New("monitor: already stopped")
)

// StartupError is a fatal failure during Initializing.
type StartupError struct {
	// Target is the store that could not be acquired, or "baseline".
	Target string
	Err    error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("monitor: startup failed on %s: %s", e.Target, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

func (e *StartupError) Is(target error) bool {
	return target == ErrStartup
}
