package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is one executed trade decoded from a trade update. Values are immutable once decoded.
type TradeEvent struct {
	TradeID      uint64
	InstrumentID uint64
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	OrderID1     uint64
	OrderID2     uint64
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp    int64
	Side         uint8
	TakerSide    uint8
	IsBlockTrade uint8
	ClientID     uint64
}

// Time converts the millisecond timestamp into a UTC time.
func (t TradeEvent) Time() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}
