// Package change classifies the difference between two snapshots into
// Insert/Update/Delete events.
package change

import (
	"fmt"

	"github.com/huangjunwen/shardsync/product"
)

// Kind of a change event.
type Kind int

const (
	Insert Kind = iota + 1
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is a classified difference for one id.
//
// For Insert and Update, Attrs is the current tuple. For Delete, Attrs is the
// last known tuple, since the row no longer exists in the source.
type Event struct {
	Kind  Kind
	ID    product.ID
	Attrs product.Attrs
}

// Record returns the row carried by the event.
func (ev Event) Record() product.Record {
	return product.Record{ID: ev.ID, Attrs: ev.Attrs}
}

func (ev Event) String() string {
	return fmt.Sprintf("%s %d %s", ev.Kind, ev.ID, ev.Attrs)
}
