// Package orderbook maintains a client-side mirror of exchange bid/ask state built from a snapshot and
// kept current by incremental diffs.
package orderbook

import (
	"fmt"
	"strings"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/domain/schema"
	"github.com/coachpo/ndax-gateway/internal/wire"
)

const (
	component  = "orderbook"
	treeDegree = 16

	priceDecimals  = 5
	volumeDecimals = 8
)

// Replica mirrors the top of one instrument's order book.
//
// After every public call bids are strictly descending, asks strictly ascending, neither side holds
// more than Depth levels after Apply, and no stored level has zero volume.
// A Replica is owned by a single consumer and is not safe for concurrent use.
type Replica struct {
	depth  int
	layout wire.Layout
	bids   *btree.BTreeG[schema.PriceLevel]
	asks   *btree.BTreeG[schema.PriceLevel]
}

// Option customises a Replica.
type Option func(*Replica)

// WithLayout selects the tuple positions used when decoding payloads.
func WithLayout(layout wire.Layout) Option {
	return func(r *Replica) {
		r.layout = layout
	}
}

// New creates an empty replica bounded to depth levels per side.
func New(depth int, opts ...Option) (*Replica, error) {
	if depth <= 0 {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("depth must be > 0"))
	}
	r := &Replica{
		depth:  depth,
		layout: wire.DefaultLayout,
		bids:   newSide(schema.BookSideBid),
		asks:   newSide(schema.BookSideAsk),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if err := r.layout.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// newSide orders levels best-first: highest bid or lowest ask is Min, the worst level is Max.
func newSide(side schema.BookSide) *btree.BTreeG[schema.PriceLevel] {
	if side == schema.BookSideBid {
		return btree.NewG(treeDegree, func(a, b schema.PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		})
	}
	return btree.NewG(treeDegree, func(a, b schema.PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
}

// Depth returns the configured maximum number of levels per side.
func (r *Replica) Depth() int {
	return r.depth
}

// Layout returns the tuple layout used to decode payloads.
func (r *Replica) Layout() wire.Layout {
	return r.layout
}

// Initialize replaces the whole book with the snapshot carried by payload.
// A malformed payload leaves the replica untouched and returns a malformed_payload error.
// Records that fail to decode are skipped and reported in the returned error.
func (r *Replica) Initialize(payload string) error {
	records, err := wire.DecodeOrderBatch(payload, r.layout)
	if records == nil && err != nil {
		return err
	}
	r.InitializeRecords(records)
	return err
}

// InitializeRecords clears both sides and loads the given records. No depth bound is applied;
// the snapshot size is governed by the depth requested in the subscription.
// Zero-volume records carry no resting interest and are not stored.
func (r *Replica) InitializeRecords(records []schema.OrderRecord) {
	r.bids.Clear(false)
	r.asks.Clear(false)
	for _, record := range records {
		if record.IsDeletion() {
			continue
		}
		r.side(record.Side).ReplaceOrInsert(record.Level())
	}
}

// Apply merges an incremental diff carried by payload.
// A malformed payload leaves the replica untouched and returns a malformed_payload error.
func (r *Replica) Apply(payload string) error {
	records, err := wire.DecodeOrderBatch(payload, r.layout)
	if records == nil && err != nil {
		return err
	}
	r.ApplyRecords(records)
	return err
}

// ApplyRecords merges records in their given order, then trims both sides to Depth by dropping the
// worst-priced levels.
func (r *Replica) ApplyRecords(records []schema.OrderRecord) {
	for _, record := range records {
		tree := r.side(record.Side)
		if record.IsDeletion() {
			tree.Delete(schema.PriceLevel{Price: record.Price})
			continue
		}
		// Same price replaces the level in place; a new price lands at its sorted position.
		tree.ReplaceOrInsert(record.Level())
	}
	r.truncate(r.bids)
	r.truncate(r.asks)
}

func (r *Replica) truncate(tree *btree.BTreeG[schema.PriceLevel]) {
	for tree.Len() > r.depth {
		tree.DeleteMax()
	}
}

func (r *Replica) side(side schema.BookSide) *btree.BTreeG[schema.PriceLevel] {
	if side == schema.BookSideBid {
		return r.bids
	}
	return r.asks
}

// Bids returns a copy of the bid side, best (highest) price first.
func (r *Replica) Bids() []schema.PriceLevel {
	return collect(r.bids)
}

// Asks returns a copy of the ask side, best (lowest) price first.
func (r *Replica) Asks() []schema.PriceLevel {
	return collect(r.asks)
}

// Levels returns a copy of the requested side, best price first.
func (r *Replica) Levels(side schema.BookSide) []schema.PriceLevel {
	return collect(r.side(side))
}

// Len returns the number of stored levels on a side.
func (r *Replica) Len(side schema.BookSide) int {
	return r.side(side).Len()
}

// BestBid returns the highest bid, if any.
func (r *Replica) BestBid() (schema.PriceLevel, bool) {
	return r.bids.Min()
}

// BestAsk returns the lowest ask, if any.
func (r *Replica) BestAsk() (schema.PriceLevel, bool) {
	return r.asks.Min()
}

// Spread returns best ask minus best bid when both sides are populated.
func (r *Replica) Spread() (decimal.Decimal, bool) {
	bid, okBid := r.BestBid()
	ask, okAsk := r.BestAsk()
	if !okBid || !okAsk {
		return decimal.Decimal{}, false
	}
	return ask.Price.Sub(bid.Price), true
}

func collect(tree *btree.BTreeG[schema.PriceLevel]) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, tree.Len())
	tree.Ascend(func(level schema.PriceLevel) bool {
		out = append(out, level)
		return true
	})
	return out
}

// String renders bid[i] next to ask[i] for i in [0, Depth) as "price (volume)".
func (r *Replica) String() string {
	bids := r.Bids()
	asks := r.Asks()
	const column = 32

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s | %s\n", column, "BIDS", "ASKS")
	b.WriteString(strings.Repeat("-", column))
	b.WriteString("-+-")
	b.WriteString(strings.Repeat("-", column))
	b.WriteByte('\n')
	for i := 0; i < r.depth; i++ {
		fmt.Fprintf(&b, "%-*s | %s\n", column, formatLevel(bids, i), formatLevel(asks, i))
	}
	return b.String()
}

func formatLevel(levels []schema.PriceLevel, i int) string {
	if i >= len(levels) {
		return ""
	}
	level := levels[i]
	return level.Price.StringFixed(priceDecimals) + " (" + level.Volume.StringFixed(volumeDecimals) + ")"
}
