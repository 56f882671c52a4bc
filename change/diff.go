package change

import (
	"sort"

	"github.com/huangjunwen/shardsync/product"
	"github.com/huangjunwen/shardsync/snapshot"
)

// Diff compares curr against prev. Every id is either unchanged or yields
// exactly one event. Inserts and updates come first ordered by id, then
// deletes ordered by id.
func Diff(prev, curr snapshot.Snapshot) []Event {
	upserts := []Event{}
	for id, attrs := range curr {
		old, ok := prev[id]
		switch {
		case !ok:
			upserts = append(upserts, Event{Kind: Insert, ID: id, Attrs: attrs})
		case old != attrs:
			upserts = append(upserts, Event{Kind: Update, ID: id, Attrs: attrs})
		}
	}

	deletes := []Event{}
	for id, attrs := range prev {
		if _, ok := curr[id]; !ok {
			deletes = append(deletes, Event{Kind: Delete, ID: id, Attrs: attrs})
		}
	}

	sortByID(upserts)
	sortByID(deletes)
	return append(upserts, deletes...)
}

func sortByID(evs []Event) {
	sort.Slice(evs, func(i, j int) bool { return evs[i].ID < evs[j].ID })
}

// Count returns the number of events per kind.
func Count(evs []Event) map[Kind]int {
	ret := map[Kind]int{}
	for _, ev := range evs {
		ret[ev.Kind]++
	}
	return ret
}

// IDs of the events, in order.
func IDs(evs []Event) []product.ID {
	ret := make([]product.ID, 0, len(evs))
	for _, ev := range evs {
		ret = append(ret, ev.ID)
	}
	return ret
}
