package snapshot

import (
	"context"

	perrors "github.com/pkg/errors"

	"github.com/huangjunwen/shardsync/product"
	"github.com/huangjunwen/shardsync/productdb"
)

// Poller reads the whole source table.
type Poller struct {
	source *productdb.DB
}

// NewPoller creates a Poller over the source store.
func NewPoller(source *productdb.DB) *Poller {
	return &Poller{source: source}
}

// Poll returns a fresh Snapshot of the source. On any failure it returns a nil
// Snapshot and the error, never a partial one.
func (p *Poller) Poll(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{}
	err := p.source.Scan(ctx, func(rec product.Record) error {
		snap[rec.ID] = rec.Attrs
		return nil
	})
	if err != nil {
		p.source.Observe(err)
		return nil, perrors.Wrapf(err, "poll %s", p.source.Name())
	}
	return snap, nil
}
