// Package productdbtest provides in-memory sqlite product stores for tests.
package productdbtest

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/huangjunwen/shardsync/product"
	"github.com/huangjunwen/shardsync/productdb"
)

// Open creates a fresh in-memory sqlite store with the product table created.
// extraDDL statements run after the table is created (e.g. to add triggers).
// The store is closed when the test ends.
func Open(t testing.TB, name string, extraDDL ...string) *productdb.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	// Each connection of an in-memory sqlite is a distinct database.
	db.SetMaxOpenConns(1)

	store := productdb.New(name, db, productdb.SQLite, &productdb.Options{CreateTable: true})
	if err := store.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire %s: %v", name, err)
	}
	for _, ddl := range extraDDL {
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("ddl on %s: %v", name, err)
		}
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Rows returns every row of store ordered by id.
func Rows(t testing.TB, store *productdb.DB) []product.Record {
	t.Helper()

	ret := []product.Record{}
	if err := store.Scan(context.Background(), func(rec product.Record) error {
		ret = append(ret, rec)
		return nil
	}); err != nil {
		t.Fatalf("scan %s: %v", store.Name(), err)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// Put writes rows directly, bypassing any writer.
func Put(t testing.TB, store *productdb.DB, recs ...product.Record) {
	t.Helper()

	for _, rec := range recs {
		if _, err := store.SQL().Exec(
			"INSERT INTO product (id, category, brand, model) VALUES (?, ?, ?, ?) "+
				"ON CONFLICT (id) DO UPDATE SET category = excluded.category, brand = excluded.brand, model = excluded.model",
			int64(rec.ID), rec.Category, rec.Brand, rec.Model,
		); err != nil {
			t.Fatalf("put %s: %v", store.Name(), err)
		}
	}
}

// Remove deletes rows directly.
func Remove(t testing.TB, store *productdb.DB, ids ...product.ID) {
	t.Helper()

	for _, id := range ids {
		if _, err := store.SQL().Exec("DELETE FROM product WHERE id = ?", int64(id)); err != nil {
			t.Fatalf("remove %s: %v", store.Name(), err)
		}
	}
}
