// Package snapshot holds the observed state of the source table and the
// poller that captures it.
package snapshot

import (
	"github.com/huangjunwen/shardsync/product"
)

// Snapshot is the complete state of the source table at one poll instant.
// Iteration order carries no meaning.
type Snapshot map[product.ID]product.Attrs

// FromRecords builds a Snapshot. A later duplicate id overwrites an earlier one.
func FromRecords(recs ...product.Record) Snapshot {
	ret := make(Snapshot, len(recs))
	for _, rec := range recs {
		ret[rec.ID] = rec.Attrs
	}
	return ret
}

// Store keeps the last installed Snapshot. It is owned by a single goroutine
// and has no locking.
type Store struct {
	current Snapshot
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{current: Snapshot{}}
}

// Current returns the installed baseline. Callers must not modify it.
func (s *Store) Current() Snapshot {
	return s.current
}

// Replace installs snap wholesale as the new baseline.
func (s *Store) Replace(snap Snapshot) {
	if snap == nil {
		snap = Snapshot{}
	}
	s.current = snap
}

// Len is the number of ids in the baseline.
func (s *Store) Len() int {
	return len(s.current)
}
