package wire

import (
	"errors"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/domain/schema"
)

// TradeTupleArity is the number of fields in a trade tuple.
const TradeTupleArity = 11

// Trade tuple positions.
const (
	tradeIDIndex = iota
	tradeInstrumentIndex
	tradeQuantityIndex
	tradePriceIndex
	tradeOrder1Index
	tradeOrder2Index
	tradeTimestampIndex
	tradeSideIndex
	tradeTakerSideIndex
	tradeBlockTradeIndex
	tradeClientIDIndex
)

// DecodeTradeTuple maps one trade tuple by position. No partial record is returned on failure.
func DecodeTradeTuple(tuple []json.RawMessage) (schema.TradeEvent, error) {
	if len(tuple) < TradeTupleArity {
		return schema.TradeEvent{}, errs.New(component, errs.CodeRecordDecode,
			errs.WithMessage("trade tuple too short"),
			errs.WithField("fields", strconv.Itoa(len(tuple))),
		)
	}
	var (
		evt schema.TradeEvent
		err error
	)
	if evt.TradeID, err = uintAt(tuple, tradeIDIndex, "tradeId", 64); err != nil {
		return schema.TradeEvent{}, err
	}
	if evt.InstrumentID, err = uintAt(tuple, tradeInstrumentIndex, "instrumentId", 64); err != nil {
		return schema.TradeEvent{}, err
	}
	if evt.Quantity, err = decimalAt(tuple, tradeQuantityIndex, "quantity"); err != nil {
		return schema.TradeEvent{}, err
	}
	if evt.Price, err = decimalAt(tuple, tradePriceIndex, "price"); err != nil {
		return schema.TradeEvent{}, err
	}
	if evt.OrderID1, err = uintAt(tuple, tradeOrder1Index, "orderId1", 64); err != nil {
		return schema.TradeEvent{}, err
	}
	if evt.OrderID2, err = uintAt(tuple, tradeOrder2Index, "orderId2", 64); err != nil {
		return schema.TradeEvent{}, err
	}
	if evt.Timestamp, err = intAt(tuple, tradeTimestampIndex, "timestamp"); err != nil {
		return schema.TradeEvent{}, err
	}
	small := [...]struct {
		dst   *uint8
		index int
		name  string
	}{
		{&evt.Side, tradeSideIndex, "side"},
		{&evt.TakerSide, tradeTakerSideIndex, "takerSide"},
		{&evt.IsBlockTrade, tradeBlockTradeIndex, "isBlockTrade"},
	}
	for _, field := range small {
		value, err := uintAt(tuple, field.index, field.name, 8)
		if err != nil {
			return schema.TradeEvent{}, err
		}
		*field.dst = uint8(value)
	}
	if evt.ClientID, err = uintAt(tuple, tradeClientIDIndex, "clientId", 64); err != nil {
		return schema.TradeEvent{}, err
	}
	return evt, nil
}

// DecodeTradeBatch parses a trade update payload. A payload that is not an array of tuples returns
// malformed_payload and no trades; failing tuples are omitted and reported as joined record_decode errors.
func DecodeTradeBatch(payload string) ([]schema.TradeEvent, error) {
	tuples, err := parseTuples(payload)
	if err != nil {
		return nil, err
	}
	trades := make([]schema.TradeEvent, 0, len(tuples))
	var failures []error
	for i, tuple := range tuples {
		evt, err := DecodeTradeTuple(tuple)
		if err != nil {
			failures = append(failures, withTupleIndex(err, i))
			continue
		}
		trades = append(trades, evt)
	}
	return trades, errors.Join(failures...)
}
