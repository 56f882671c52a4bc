// Package productdb wraps one store (source, replica or shard) holding a
// product table: its handle, its SQL dialect and its readiness.
package productdb

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	perrors "github.com/pkg/errors"

	"github.com/huangjunwen/shardsync/logr"
	"github.com/huangjunwen/shardsync/product"
	"github.com/huangjunwen/shardsync/sqlh"
)

var (
	// ErrUnusable is returned for any operation on a handle that is missing or closed.
	ErrUnusable = errors.New("productdb: handle unusable")
)

var (
	// DefaultTable is the default value of Options.Table.
	DefaultTable = "product"
)

// Options is options used in New.
type Options struct {
	// Table name, may be schema qualified.
	//
	// Use DefaultTable if not set.
	Table string

	// CreateTable runs CREATE TABLE IF NOT EXISTS in Acquire.
	CreateTable bool

	// Logger for logging.
	Logger logr.Logger
}

// DB is one product store. It owns its *sql.DB for its whole lifetime.
type DB struct {
	name        string
	db          *sql.DB
	dialect     Dialect
	table       string
	createTable bool
	logger      logr.Logger

	upsertSQL string
	deleteSQL string
	selectSQL string

	unusable  int32 // atomic
	closeOnce sync.Once
	closeErr  error
}

// New wraps db. db may be nil, in which case the handle is unusable from the start.
func New(name string, db *sql.DB, dialect Dialect, opts *Options) *DB {
	if opts == nil {
		opts = &Options{}
	}
	table := DefaultTable
	if opts.Table != "" {
		table = opts.Table
	}
	ret := &DB{
		name:        name,
		db:          db,
		dialect:     dialect,
		table:       table,
		createTable: opts.CreateTable,
		logger:      logr.OrNop(opts.Logger).WithValues("store", name),
		upsertSQL:   dialect.Upsert(table),
		deleteSQL:   dialect.Delete(table),
		selectSQL:   dialect.SelectAll(table),
	}
	if db == nil {
		ret.unusable = 1
	}
	return ret
}

// Name of the store.
func (d *DB) Name() string {
	return d.name
}

// Dialect of the store.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Table is the product table name.
func (d *DB) Table() string {
	return d.table
}

// Usable reports whether the handle can still be used.
func (d *DB) Usable() bool {
	return d != nil && d.db != nil && atomic.LoadInt32(&d.unusable) == 0
}

// MarkUnusable flags the handle as unusable for the rest of its lifetime.
func (d *DB) MarkUnusable(cause error) {
	if atomic.CompareAndSwapInt32(&d.unusable, 0, 1) {
		d.logger.Error(cause, "store closed underneath, marked unusable")
	}
}

// Observe classifies err and marks the handle unusable if it was closed under us.
// Other connection failures leave the handle usable: the pool redials on the next use.
// It returns the classification.
func (d *DB) Observe(err error) Kind {
	kind := Classify(err)
	if kind == KindConnection && IsClosed(err) {
		d.MarkUnusable(err)
	}
	return kind
}

// Acquire checks the store is reachable and, if configured, that the product table exists.
func (d *DB) Acquire(ctx context.Context) error {
	if !d.Usable() {
		return perrors.Wrapf(ErrUnusable, "acquire %s", d.name)
	}
	if err := d.db.PingContext(ctx); err != nil {
		return perrors.Wrapf(err, "ping %s", d.name)
	}
	if d.createTable {
		if _, err := d.db.ExecContext(ctx, d.dialect.CreateTable(d.table)); err != nil {
			return perrors.Wrapf(err, "create table %s on %s", d.table, d.name)
		}
	}
	d.logger.Info("store ready", "dialect", string(d.dialect), "table", d.table)
	return nil
}

// Scan reads every row of the product table and calls fn for each one.
func (d *DB) Scan(ctx context.Context, fn func(product.Record) error) error {
	if !d.Usable() {
		return ErrUnusable
	}
	return scanAll(ctx, d.db, d.selectSQL, fn)
}

func scanAll(ctx context.Context, q sqlh.Queryer, query string, fn func(product.Record) error) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		rec := product.Record{}
		var id int64
		if err := rows.Scan(&id, &rec.Category, &rec.Brand, &rec.Model); err != nil {
			return err
		}
		rec.ID = product.ID(id)
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Upsert writes rec inside tx, overwriting every non-key column on conflict.
func (d *DB) Upsert(ctx context.Context, tx sqlh.Execer, rec product.Record) error {
	_, err := tx.ExecContext(ctx, d.upsertSQL, int64(rec.ID), rec.Category, rec.Brand, rec.Model)
	return err
}

// Delete removes the row id inside tx. Deleting a missing row is not an error.
func (d *DB) Delete(ctx context.Context, tx sqlh.Execer, id product.ID) error {
	_, err := tx.ExecContext(ctx, d.deleteSQL, int64(id))
	return err
}

// WithTx runs fn in a transaction on this store.
func (d *DB) WithTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	if !d.Usable() {
		return ErrUnusable
	}
	return sqlh.WithTx(ctx, d.db, fn)
}

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Close releases the handle. It is safe to call more than once.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		atomic.StoreInt32(&d.unusable, 1)
		if d.db != nil {
			d.closeErr = d.db.Close()
		}
		d.logger.Info("store closed")
	})
	return d.closeErr
}
