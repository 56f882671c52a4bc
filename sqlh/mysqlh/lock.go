// Package mysqlh holds MySQL specific helpers.
package mysqlh

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
	perrors "github.com/pkg/errors"

	"github.com/huangjunwen/shardsync/logr"
)

var (
	// ErrLockHeld is returned when the named lock is held by another session.
	ErrLockHeld = errors.New("mysqlh: lock held by another session")

	// ErrLockLost is returned when the locking session died while fn was running.
	ErrLockLost = errors.New("mysqlh: lock session lost")
)

var (
	// DefaultPingInterval is the default value of LockOptions.PingInterval.
	DefaultPingInterval = 1 * time.Second

	// DefaultCooldown is the default value of LockOptions.Cooldown.
	DefaultCooldown = 5 * time.Second
)

// LockOptions is options used in HoldLock.
type LockOptions struct {
	// WaitSeconds is the GET_LOCK timeout. Zero fails at once if the lock is held.
	WaitSeconds uint

	// PingInterval between liveness checks of the locking session.
	//
	// Use DefaultPingInterval if not set.
	PingInterval time.Duration

	// Cooldown is the wait between acquiring the lock and calling fn, so that a
	// previous holder whose session was lost has time to notice and stop.
	// Must not be shorter than PingInterval.
	//
	// Use DefaultCooldown if not set.
	Cooldown time.Duration

	// Clock, use clock.WallClock if not set.
	Clock clock.Clock

	// Logger for logging.
	Logger logr.Logger
}

// HoldLock takes the MySQL named lock (GET_LOCK) on a dedicated session and runs fn
// while holding it. The context passed to fn is cancelled when ctx is done or when
// the session is lost. It returns ErrLockHeld if another session owns the lock,
// ErrLockLost if fn returned cleanly only because the session was lost, otherwise
// fn's result.
//
// Two holders can still overlap briefly: a holder only learns its session was
// killed at its next ping. Shorter PingInterval and longer Cooldown narrow the gap.
func HoldLock(ctx context.Context, db *sql.DB, name string, opts *LockOptions, fn func(context.Context) error) error {
	if opts == nil {
		opts = &LockOptions{}
	}
	pingInterval := DefaultPingInterval
	if opts.PingInterval > 0 {
		pingInterval = opts.PingInterval
	}
	cooldown := DefaultCooldown
	if opts.Cooldown > 0 {
		cooldown = opts.Cooldown
	}
	if cooldown < pingInterval {
		return perrors.New("HoldLock: Cooldown shorter than PingInterval")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := logr.OrNop(opts.Logger).WithValues("lock", name)

	// GET_LOCK is bound to the session, so pin one connection.
	conn, err := db.Conn(ctx)
	if err != nil {
		return perrors.Wrap(err, "HoldLock: get connection")
	}
	defer conn.Close()

	var got sql.NullInt32
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", name, opts.WaitSeconds).Scan(&got); err != nil {
		return perrors.Wrap(err, "HoldLock: GET_LOCK")
	}
	if !got.Valid {
		return perrors.New("HoldLock: GET_LOCK returned NULL")
	}
	if got.Int32 != 1 {
		return ErrLockHeld
	}
	logger.Info("lock acquired")

	defer func() {
		var released sql.NullInt32
		if err := conn.QueryRowContext(context.Background(), "SELECT RELEASE_LOCK(?)", name).Scan(&released); err != nil {
			logger.Error(err, "release lock")
			return
		}
		logger.Info("lock released")
	}()

	holdCtx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-holdCtx.Done():
				return
			case <-clk.After(pingInterval):
			}
			if err := conn.PingContext(holdCtx); err != nil {
				if holdCtx.Err() == nil {
					logger.Error(err, "lock session lost")
				}
				return
			}
		}
	}()

	select {
	case <-holdCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return perrors.Wrap(ErrLockLost, "HoldLock: during cooldown")
	case <-clk.After(cooldown):
	}

	err = fn(holdCtx)
	if err == nil && ctx.Err() == nil && holdCtx.Err() != nil {
		return ErrLockLost
	}
	return err
}
