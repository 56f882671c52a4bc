package sqlh

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// Rollback is used to rollback a transaction without returning an error.
	Rollback = errors.New("Just rollback")
)

// WithTx starts a transaction and run fn. If no error is returned by fn, the transaction will be committed.
// Otherwise it is rollbacked and the error is returned to the caller (except returning Rollback,
// which will rollback the transaction but not returning error).
//
// A panic inside fn rollbacks the transaction before it is propagated.
func WithTx(ctx context.Context, db TxBeginner, fn func(context.Context, *sql.Tx) error) error {
	return WithTxOpts(ctx, db, nil, fn)
}

// WithTxOpts is similar to WithTx with explicit transaction options.
func WithTxOpts(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(context.Context, *sql.Tx) error) (err error) {

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
		if err == Rollback {
			// Rollback is not treated as an error.
			err = nil
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return
	}

	if err = tx.Commit(); err != nil {
		return
	}
	committed = true
	return
}
