package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	perrors "github.com/pkg/errors"

	"github.com/huangjunwen/shardsync/config"
	"github.com/huangjunwen/shardsync/logr"
	"github.com/huangjunwen/shardsync/metrics"
	"github.com/huangjunwen/shardsync/monitor"
	"github.com/huangjunwen/shardsync/productdb"
	"github.com/huangjunwen/shardsync/replicate"
	"github.com/huangjunwen/shardsync/shard"
	"github.com/huangjunwen/shardsync/snapshot"
	"github.com/huangjunwen/shardsync/sqlh/mysqlh"
	"github.com/huangjunwen/shardsync/target"
	"github.com/huangjunwen/shardsync/taskrunner/limitedrunner"
)

type app struct {
	cfg    *config.Config
	logger logr.Logger
	loop   *monitor.Loop
	reg    *prometheus.Registry
	stores []*productdb.DB
	runner *limitedrunner.LimitedRunner
	lockDB *sql.DB
}

// newApp opens every store handle (no I/O yet) and wires the monitor loop.
func newApp(cfg *config.Config, logger logr.Logger, clk clock.Clock) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		logger: logr.OrNop(logger),
		reg:    prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(a.reg)
	if err != nil {
		return nil, err
	}

	targets := []monitor.Target{}
	open := func(c *config.Conn) (*productdb.DB, error) {
		store, err := c.Store(a.logger)
		if err != nil {
			return nil, err
		}
		a.stores = append(a.stores, store)
		if c.Provisioned() {
			targets = append(targets, store)
		} else {
			a.logger.Info("store not provisioned, writes to it will be skipped", "store", c.Name)
		}
		return store, nil
	}

	source, err := open(&cfg.Source)
	if err != nil {
		return nil, err
	}
	replica, err := open(&cfg.Replica)
	if err != nil {
		return nil, err
	}

	table, err := cfg.ShardTable()
	if err != nil {
		return nil, err
	}
	shardWriters := []target.Writer{}
	for i := range cfg.Shards {
		store, err := open(&cfg.Shards[i].Conn)
		if err != nil {
			return nil, err
		}
		shardWriters = append(shardWriters, target.NewShard(store, a.logger))
	}
	router, err := shard.NewRouter(table, shardWriters...)
	if err != nil {
		return nil, err
	}

	dispatchOpts := &replicate.Options{Logger: a.logger}
	if cfg.ParallelWrites {
		a.runner, err = limitedrunner.New(
			limitedrunner.MaxWorkers(len(cfg.Shards)+1),
			limitedrunner.OnPanic(func(v interface{}) {
				a.logger.Error(perrors.Errorf("%v", v), "write task panic")
			}),
		)
		if err != nil {
			return nil, err
		}
		dispatchOpts.Runner = a.runner
	}
	dispatcher := replicate.NewDispatcher(target.NewFullReplica(replica, a.logger), router, dispatchOpts)

	if cfg.Lock != nil {
		if a.lockDB, err = cfg.Lock.Conn.Open(); err != nil {
			return nil, err
		}
	}

	a.loop = monitor.New(snapshot.NewPoller(source), dispatcher, &monitor.Options{
		Targets:      targets,
		Interval:     cfg.Interval.Duration(),
		ErrorBackoff: cfg.ErrorBackoff.Duration(),
		Clock:        clk,
		Logger:       a.logger,
		Metrics:      m,
	})
	return a, nil
}

// run serves metrics if configured and runs the loop, under the singleton lock if configured.
func (a *app) run(ctx context.Context) error {
	if a.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: a.handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Error(err, "metrics server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		a.logger.Info("metrics server listening", "addr", a.cfg.MetricsAddr)
	}

	if a.lockDB == nil {
		return a.loop.Run(ctx)
	}
	return mysqlh.HoldLock(ctx, a.lockDB, a.cfg.Lock.Name, &mysqlh.LockOptions{Logger: a.logger}, a.loop.Run)
}

func (a *app) handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	return r
}

func (a *app) healthz(w http.ResponseWriter, r *http.Request) {
	state := a.loop.State()
	w.Header().Set("Content-Type", "application/json")
	if state != monitor.Running {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{"state": state.String()})
}

// close releases everything newApp opened. Stores may already be closed by the loop.
func (a *app) close() {
	for _, store := range a.stores {
		store.Close()
	}
	if a.runner != nil {
		a.runner.Close()
	}
	if a.lockDB != nil {
		a.lockDB.Close()
	}
}
