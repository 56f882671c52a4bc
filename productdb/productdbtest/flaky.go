package productdbtest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"sync/atomic"
	"testing"

	"github.com/huangjunwen/shardsync/productdb"
)

// Flaky makes the next statements of a store fail with a network timeout, as a
// dropped link to a remote server would, while the database behind stays intact.
type Flaky struct {
	failures int32 // atomic
}

// FailNext makes the next n statements fail.
func (f *Flaky) FailNext(n int) {
	atomic.StoreInt32(&f.failures, int32(n))
}

func (f *Flaky) fail() bool {
	for {
		n := atomic.LoadInt32(&f.failures)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&f.failures, n, n-1) {
			return true
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

type flakyConnector struct {
	drv driver.Driver
	f   *Flaky
}

func (c flakyConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.drv.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return flakyConn{Conn: conn, f: c.f}, nil
}

func (c flakyConnector) Driver() driver.Driver {
	return c.drv
}

// flakyConn hides the fast paths of the sqlite conn so every statement goes through Prepare.
type flakyConn struct {
	driver.Conn
	f *Flaky
}

func (c flakyConn) Prepare(query string) (driver.Stmt, error) {
	if c.f.fail() {
		return nil, &net.OpError{Op: "read", Net: "tcp", Err: timeoutError{}}
	}
	return c.Conn.Prepare(query)
}

// OpenFlaky is Open over a connection whose statements can be made to fail on demand.
func OpenFlaky(t testing.TB, name string) (*productdb.DB, *Flaky) {
	t.Helper()

	plain, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	drv := plain.Driver()
	plain.Close()

	f := &Flaky{}
	db := sql.OpenDB(flakyConnector{drv: drv, f: f})
	db.SetMaxOpenConns(1)

	store := productdb.New(name, db, productdb.SQLite, &productdb.Options{CreateTable: true})
	if err := store.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire %s: %v", name, err)
	}
	t.Cleanup(func() { store.Close() })
	return store, f
}
