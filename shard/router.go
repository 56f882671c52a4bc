// Package shard routes a product category to the shard store that owns it.
package shard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/huangjunwen/shardsync/target"
)

var (
	// DefaultCategories is the reference category table: computer-class
	// products go to one shard and mobile-class products to another.
	DefaultCategories = map[string][]string{
		"computer": {"laptop", "computer", "desktop", "all in one"},
		"mobile":   {"phone", "tablet", "smart band", "smart watch", "smart ring"},
	}
)

// Table is a static, case-insensitive mapping from category to shard name.
type Table struct {
	byCategory map[string]string
}

// NewTable builds a Table from shard name -> categories. A category claimed by
// two shards is an error.
func NewTable(categories map[string][]string) (*Table, error) {
	t := &Table{byCategory: map[string]string{}}
	for shardName, cats := range categories {
		for _, cat := range cats {
			key := strings.ToLower(cat)
			if other, ok := t.byCategory[key]; ok && other != shardName {
				return nil, fmt.Errorf("NewTable: category %q claimed by both %q and %q", cat, other, shardName)
			}
			t.byCategory[key] = shardName
		}
	}
	return t, nil
}

// Lookup returns the shard name owning category, if any.
func (t *Table) Lookup(category string) (string, bool) {
	name, ok := t.byCategory[strings.ToLower(category)]
	return name, ok
}

// Shards returns the shard names referenced by the table, sorted.
func (t *Table) Shards() []string {
	seen := map[string]bool{}
	ret := []string{}
	for _, name := range t.byCategory {
		if !seen[name] {
			seen[name] = true
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret
}

// Router maps a category to at most one shard writer.
type Router struct {
	table   *Table
	writers map[string]target.Writer
}

// NewRouter creates a Router. Every shard named by table must have a writer.
func NewRouter(table *Table, writers ...target.Writer) (*Router, error) {
	r := &Router{
		table:   table,
		writers: map[string]target.Writer{},
	}
	for _, w := range writers {
		if _, dup := r.writers[w.Name()]; dup {
			return nil, fmt.Errorf("NewRouter: duplicated shard writer %q", w.Name())
		}
		r.writers[w.Name()] = w
	}
	for _, name := range table.Shards() {
		if _, ok := r.writers[name]; !ok {
			return nil, fmt.Errorf("NewRouter: no writer for shard %q", name)
		}
	}
	return r, nil
}

// Route returns the writer owning category. An unknown category returns false
// and is a deliberate skip, not an error.
func (r *Router) Route(category string) (target.Writer, bool) {
	name, ok := r.table.Lookup(category)
	if !ok {
		return nil, false
	}
	w, ok := r.writers[name]
	return w, ok
}
