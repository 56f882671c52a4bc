package sqlh

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	_ "modernc.org/sqlite"
)

var (
	testTxErr = errors.New("test tx error")
)

func openMemDB() *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		log.Panic(err)
	}
	// Each connection of an in-memory sqlite is a distinct database.
	db.SetMaxOpenConns(1)
	return db
}

func countNames(db *sql.DB, name string) int {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM t WHERE name=?", name).Scan(&count); err != nil {
		log.Panic(err)
	}
	return count
}

func TestWithTx(t *testing.T) {
	log.Printf("\n")
	log.Printf(">>> TestWithTx.\n")
	assert := assert.New(t)

	db := openMemDB()
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t (name VARCHAR(64) PRIMARY KEY)"); err != nil {
		log.Panic(err)
	}

	bgctx := context.Background()

	for _, testCase := range []struct {
		Fn          func(context.Context, *sql.Tx) error
		ExpectErr   error
		AnyErr      bool
		ExpectCount int
	}{
		// Commit.
		{
			Fn: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "INSERT INTO t (name) values ('aaaa')")
				assert.NoError(err)
				return err
			},
			ExpectErr:   nil,
			ExpectCount: 1,
		},
		// Rollback without error.
		{
			Fn: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "INSERT INTO t (name) values ('aaaa')")
				assert.NoError(err)
				return Rollback
			},
			ExpectErr:   nil,
			ExpectCount: 0,
		},
		// Error rollback.
		{
			Fn: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "INSERT INTO t (name) values ('aaaa')")
				assert.NoError(err)
				return testTxErr
			},
			ExpectErr:   testTxErr,
			ExpectCount: 0,
		},
		// A failing second statement reverts the first one.
		{
			Fn: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "INSERT INTO t (name) values ('aaaa')")
				assert.NoError(err)
				_, err = tx.ExecContext(ctx, "INSERT INTO t (name) values ('aaaa')")
				assert.Error(err)
				return err
			},
			AnyErr:      true,
			ExpectCount: 0,
		},
	} {
		// Always clean test table first.
		if _, err := db.Exec("DELETE FROM t"); err != nil {
			log.Panic(err)
		}

		err := WithTx(bgctx, db, testCase.Fn)
		if testCase.AnyErr {
			assert.Error(err)
		} else {
			assert.Equal(testCase.ExpectErr, err)
		}
		assert.Equal(testCase.ExpectCount, countNames(db, "aaaa"))
	}
}

func TestWithTxPanic(t *testing.T) {
	assert := assert.New(t)

	db := openMemDB()
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t (name VARCHAR(64) PRIMARY KEY)"); err != nil {
		log.Panic(err)
	}

	assert.Panics(func() {
		WithTx(context.Background(), db, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO t (name) values ('bbbb')"); err != nil {
				return err
			}
			panic("boom")
		})
	})
	assert.Equal(0, countNames(db, "bbbb"))
}
