// Command shardsync polls a source product table and replicates its changes to
// a full replica and to category shards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/huangjunwen/shardsync/config"
	"github.com/huangjunwen/shardsync/logr/zerologr"
	"github.com/huangjunwen/shardsync/monitor"
	"github.com/huangjunwen/shardsync/sqlh/mysqlh"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "shardsync.json", "path of the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shardsync: %s\n", err)
		return 2
	}

	logger, err := zerologr.New(os.Stderr, &zerologr.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "shardsync: log level: %s\n", err)
		return 2
	}

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		logger.Error(err, "build failed")
		return 1
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		switch {
		case errors.Is(err, monitor.ErrStartup):
			logger.Error(err, "fatal start-up failure")
		case errors.Is(err, mysqlh.ErrLockLost):
			logger.Error(err, "singleton lock lost, exiting for restart")
		default:
			logger.Error(err, "shardsync stopped with error")
		}
		return 1
	}
	logger.Info("shardsync stopped")
	return 0
}
