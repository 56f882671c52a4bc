package productdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Kind classifies a store failure.
type Kind int

const (
	// KindNone is the classification of a nil error.
	KindNone Kind = iota

	// KindOther is any failure not recognised below.
	KindOther

	// KindConstraint is an integrity constraint violation (unique, not null, check, foreign key).
	KindConstraint

	// KindConnection is a broken or timed out connection. The pool may recover
	// from it; only a closed handle becomes unusable (see IsClosed).
	KindConnection

	// KindUnready means the handle was already unusable and nothing was attempted.
	KindUnready
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConstraint:
		return "constraint"
	case KindConnection:
		return "connection"
	case KindUnready:
		return "unready"
	default:
		return "other"
	}
}

// MySQL error numbers of integrity violations.
var mysqlConstraintErrors = map[uint16]bool{
	1048: true, // ER_BAD_NULL_ERROR
	1062: true, // ER_DUP_ENTRY
	1216: true, // ER_NO_REFERENCED_ROW
	1217: true, // ER_ROW_IS_REFERENCED
	1364: true, // ER_NO_DEFAULT_FOR_FIELD
	1451: true, // ER_ROW_IS_REFERENCED_2
	1452: true, // ER_NO_REFERENCED_ROW_2
	3819: true, // ER_CHECK_CONSTRAINT_VIOLATED
}

// MySQL error numbers meaning the server went away.
var mysqlConnectionErrors = map[uint16]bool{
	1053: true, // ER_SERVER_SHUTDOWN
	2006: true, // CR_SERVER_GONE_ERROR
	2013: true, // CR_SERVER_LOST
}

const sqliteConstraint = 19 // SQLITE_CONSTRAINT

// Classify maps a driver error of any supported store to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, ErrUnusable) {
		return KindUnready
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch {
		case mysqlConstraintErrors[myErr.Number]:
			return KindConstraint
		case mysqlConnectionErrors[myErr.Number]:
			return KindConnection
		}
		return KindOther
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code()&0xff == sqliteConstraint {
			return KindConstraint
		}
		return KindOther
	}

	if isConnectionError(err) {
		return KindConnection
	}
	return KindOther
}

func classifySQLState(code string) Kind {
	switch {
	case strings.HasPrefix(code, "23"):
		return KindConstraint
	case strings.HasPrefix(code, "08"), code == "57P01", code == "57P02", code == "57P03":
		return KindConnection
	}
	return KindOther
}

// IsClosed reports whether err means the *sql.DB itself (or the connection a
// statement was bound to) has been closed, so retrying on it can never succeed.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	// database/sql does not export the closed-database error.
	return errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "sql: database is closed")
}

func isConnectionError(err error) bool {
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	// A deadline of our own context is not a broken connection.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return IsClosed(err)
}
