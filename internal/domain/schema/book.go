// Package schema defines the data model shared by the NDAX decoders, the order book replica, and the sinks.
package schema

import (
	"github.com/shopspring/decimal"
)

// BookSide identifies which side of the order book a level belongs to.
type BookSide uint8

const (
	// BookSideBid marks resting buy interest.
	BookSideBid BookSide = iota
	// BookSideAsk marks resting sell interest.
	BookSideAsk
)

func (s BookSide) String() string {
	switch s {
	case BookSideBid:
		return "bid"
	case BookSideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// PriceLevel is the aggregate volume resting at one price. Within a side, price is the identity.
type PriceLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// Equal reports whether both levels carry the same price and volume.
func (l PriceLevel) Equal(other PriceLevel) bool {
	return l.Price.Equal(other.Price) && l.Volume.Equal(other.Volume)
}

// OrderRecord is one decoded order/level tuple.
type OrderRecord struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	Side   BookSide
}

// Level returns the price level carried by the record.
func (r OrderRecord) Level() PriceLevel {
	return PriceLevel{Price: r.Price, Volume: r.Volume}
}

// IsDeletion reports whether the record removes its price level.
func (r OrderRecord) IsDeletion() bool {
	return r.Volume.IsZero()
}
