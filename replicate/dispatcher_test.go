package replicate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/huangjunwen/shardsync/change"
	"github.com/huangjunwen/shardsync/product"
	"github.com/huangjunwen/shardsync/productdb"
	"github.com/huangjunwen/shardsync/productdb/productdbtest"
	"github.com/huangjunwen/shardsync/shard"
	"github.com/huangjunwen/shardsync/target"
	"github.com/huangjunwen/shardsync/taskrunner/limitedrunner"
)

type fixture struct {
	replica  *productdb.DB
	computer *productdb.DB
	mobile   *productdb.DB
	d        *Dispatcher
}

func newFixture(t *testing.T, opts *Options, computerDDL ...string) *fixture {
	f := &fixture{
		replica:  productdbtest.Open(t, "replica"),
		computer: productdbtest.Open(t, "computer", computerDDL...),
		mobile:   productdbtest.Open(t, "mobile"),
	}
	table, err := shard.NewTable(shard.DefaultCategories)
	assert.NoError(t, err)
	router, err := shard.NewRouter(table, target.NewShard(f.computer, nil), target.NewShard(f.mobile, nil))
	assert.NoError(t, err)
	f.d = NewDispatcher(target.NewFullReplica(f.replica, nil), router, opts)
	return f
}

func TestDispatchRoutes(t *testing.T) {
	for _, opts := range []*Options{
		nil,
		{Runner: limitedrunner.Must(limitedrunner.MaxWorkers(2))},
	} {
		assert := assert.New(t)
		ctx := context.Background()
		f := newFixture(t, opts)

		laptop := product.Record{ID: 1, Attrs: product.NewAttrs("LAPTOP", "Acme", "X1")}
		phone := product.Record{ID: 2, Attrs: product.NewAttrs("Phone", "Fone", "P1")}

		r := f.d.Dispatch(ctx, change.Event{Kind: change.Insert, ID: 1, Attrs: laptop.Attrs})
		assert.Equal(Outcome{Target: "replica", Status: StatusApplied}, r.Replica)
		assert.Equal(Outcome{Target: "computer", Status: StatusApplied}, r.Shard)

		r = f.d.Dispatch(ctx, change.Event{Kind: change.Insert, ID: 2, Attrs: phone.Attrs})
		assert.Equal(Outcome{Target: "mobile", Status: StatusApplied}, r.Shard)
		assert.False(r.Failed())

		assert.Equal([]product.Record{laptop, phone}, productdbtest.Rows(t, f.replica))
		assert.Equal([]product.Record{laptop}, productdbtest.Rows(t, f.computer))
		assert.Equal([]product.Record{phone}, productdbtest.Rows(t, f.mobile))

		if opts != nil {
			opts.Runner.Close()
		}
	}
}

// A Delete routes by the last known category carried in the event.
func TestDispatchDeleteCategoryRecovery(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	phone := product.Record{ID: 5, Attrs: product.NewAttrs("phone", "Fone", "P1")}
	productdbtest.Put(t, f.replica, phone)
	productdbtest.Put(t, f.mobile, phone)

	r := f.d.Dispatch(ctx, change.Event{Kind: change.Delete, ID: 5, Attrs: phone.Attrs})
	assert.Equal(Outcome{Target: "mobile", Status: StatusApplied}, r.Shard)
	assert.Equal(StatusApplied, r.Replica.Status)
	assert.Empty(productdbtest.Rows(t, f.replica))
	assert.Empty(productdbtest.Rows(t, f.mobile))
}

// An Update that moves a record to another shard's category writes the new shard
// only; the row in the old shard is left behind.
func TestDispatchCategoryMigration(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	laptop := product.Record{ID: 4, Attrs: product.NewAttrs("laptop", "Acme", "X1")}
	phone := product.Record{ID: 4, Attrs: product.NewAttrs("phone", "Acme", "X1")}
	productdbtest.Put(t, f.replica, laptop)
	productdbtest.Put(t, f.computer, laptop)

	r := f.d.Dispatch(ctx, change.Event{Kind: change.Update, ID: 4, Attrs: phone.Attrs})
	assert.Equal(Outcome{Target: "replica", Status: StatusApplied}, r.Replica)
	assert.Equal(Outcome{Target: "mobile", Status: StatusApplied}, r.Shard)

	assert.Equal([]product.Record{phone}, productdbtest.Rows(t, f.replica))
	assert.Equal([]product.Record{phone}, productdbtest.Rows(t, f.mobile))
	assert.Equal([]product.Record{laptop}, productdbtest.Rows(t, f.computer))
}

func TestDispatchUnmatchedCategory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFixture(t, nil)

	drone := product.Record{ID: 3, Attrs: product.NewAttrs("drone", "Fly", "D1")}
	r := f.d.Dispatch(ctx, change.Event{Kind: change.Insert, ID: 3, Attrs: drone.Attrs})

	assert.Equal(StatusApplied, r.Replica.Status)
	assert.Equal(StatusUnrouted, r.Shard.Status)
	assert.NoError(r.Shard.Err)
	assert.False(r.Failed())

	assert.Equal([]product.Record{drone}, productdbtest.Rows(t, f.replica))
	assert.Empty(productdbtest.Rows(t, f.computer))
	assert.Empty(productdbtest.Rows(t, f.mobile))
}

// A failing shard write does not affect the replica write of the same event.
func TestDispatchIsolation(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		assert := assert.New(t)
		ctx := context.Background()

		opts := &Options{}
		if parallel {
			opts.Runner = limitedrunner.Must()
		}
		f := newFixture(t, opts, `CREATE UNIQUE INDEX product_model ON product (model)`)

		// Occupy the model on the computer shard under another id.
		productdbtest.Put(t, f.computer, product.Record{ID: 100, Attrs: product.NewAttrs("laptop", "Old", "X1")})

		laptop := product.Record{ID: 1, Attrs: product.NewAttrs("laptop", "Acme", "X1")}
		r := f.d.Dispatch(ctx, change.Event{Kind: change.Insert, ID: 1, Attrs: laptop.Attrs})

		assert.Equal(StatusApplied, r.Replica.Status)
		assert.Equal(StatusFailed, r.Shard.Status)
		assert.Equal(productdb.KindConstraint, target.KindOf(r.Shard.Err))
		assert.True(r.Failed())

		assert.Equal([]product.Record{laptop}, productdbtest.Rows(t, f.replica))
		assert.Equal(1, len(productdbtest.Rows(t, f.computer)))

		if opts.Runner != nil {
			opts.Runner.Close()
		}
	}
}

func TestDispatchUnready(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	{
		f := newFixture(t, nil)
		f.computer.Close()

		laptop := product.Record{ID: 1, Attrs: product.NewAttrs("laptop", "Acme", "X1")}
		r := f.d.Dispatch(ctx, change.Event{Kind: change.Insert, ID: 1, Attrs: laptop.Attrs})
		assert.Equal(StatusApplied, r.Replica.Status)
		assert.Equal(StatusSkipped, r.Shard.Status)
		assert.True(target.IsUnready(r.Shard.Err))
		assert.False(r.Failed())
		assert.Equal([]product.Record{laptop}, productdbtest.Rows(t, f.replica))
	}

	{
		mobile := productdbtest.Open(t, "mobile")
		table, _ := shard.NewTable(map[string][]string{"mobile": {"phone"}})
		router, _ := shard.NewRouter(table, target.NewShard(mobile, nil))
		d := NewDispatcher(nil, router, nil)

		phone := product.Record{ID: 2, Attrs: product.NewAttrs("phone", "", "")}
		r := d.Dispatch(ctx, change.Event{Kind: change.Update, ID: 2, Attrs: phone.Attrs})
		assert.Equal(StatusSkipped, r.Replica.Status)
		assert.Equal(StatusApplied, r.Shard.Status)
		assert.Equal([]product.Record{phone}, productdbtest.Rows(t, mobile))
	}
}

type panicWriter struct{}

func (panicWriter) Name() string { return "panicky" }
func (panicWriter) Apply(ctx context.Context, ev change.Event) error { panic("boom") }
func (panicWriter) Ready() bool { return true }

func TestDispatchPanic(t *testing.T) {
	assert := assert.New(t)
	d := NewDispatcher(panicWriter{}, nil, nil)
	r := d.Dispatch(context.Background(), change.Event{Kind: change.Insert, ID: 1})
	assert.Equal(StatusFailed, r.Replica.Status)
	assert.Error(r.Replica.Err)
	assert.Equal(StatusUnrouted, r.Shard.Status)
}
