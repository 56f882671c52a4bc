// Package zerologr adapts github.com/rs/zerolog to logr.Logger.
package zerologr

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/huangjunwen/shardsync/logr"
)

// Logger is implements github.com/huangjunwen/shardsync/logr::Logger interface using
// github.com/rs/zerolog::Logger.
type Logger zerolog.Logger

var (
	_ logr.Logger = (*Logger)(nil)
)

// Options for New.
type Options struct {
	// Level is a zerolog level name ("debug", "info", "warn", "error" ...). Default "info".
	Level string

	// Console switches to zerolog.ConsoleWriter for human readable output.
	Console bool
}

// New creates a Logger writing to w (os.Stderr if nil) with a timestamp field.
func New(w io.Writer, opts *Options) (*Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	if opts == nil {
		opts = &Options{}
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
	}

	if opts.Console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return (*Logger)(&l), nil
}

func (logger *Logger) Info(msg string, keysAndValues ...interface{}) {
	l := (*zerolog.Logger)(logger)
	ev := l.Info()
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		ev = ev.Interface(keysAndValues[i].(string), keysAndValues[i+1])
	}
	ev.Msg(msg)
}

func (logger *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l := (*zerolog.Logger)(logger)
	ev := l.Error().Err(err)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		ev = ev.Interface(keysAndValues[i].(string), keysAndValues[i+1])
	}
	ev.Msg(msg)
}

func (logger *Logger) WithValues(keysAndValues ...interface{}) logr.Logger {
	ctx := (*zerolog.Logger)(logger).With()
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		ctx = ctx.Interface(keysAndValues[i].(string), keysAndValues[i+1])
	}
	l := ctx.Logger()
	return (*Logger)(&l)
}
