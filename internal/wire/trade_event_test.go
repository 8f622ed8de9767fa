package wire

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/domain/schema"
)

func TestDecodeTradeBatchMapsFieldsByPosition(t *testing.T) {
	payload := `[[6913253, 1, 0.0125, 89250.5, 18744453, 18744450, 1717171717000, 1, 0, 0, 0]]`

	trades, err := DecodeTradeBatch(payload)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	want := schema.TradeEvent{
		TradeID:      6913253,
		InstrumentID: 1,
		Quantity:     decimal.RequireFromString("0.0125"),
		Price:        decimal.RequireFromString("89250.5"),
		OrderID1:     18744453,
		OrderID2:     18744450,
		Timestamp:    1717171717000,
		Side:         1,
		TakerSide:    0,
		IsBlockTrade: 0,
		ClientID:     0,
	}
	got := trades[0]
	require.Equal(t, want.TradeID, got.TradeID)
	require.Equal(t, want.InstrumentID, got.InstrumentID)
	require.True(t, want.Quantity.Equal(got.Quantity))
	require.True(t, want.Price.Equal(got.Price))
	require.Equal(t, want.OrderID1, got.OrderID1)
	require.Equal(t, want.OrderID2, got.OrderID2)
	require.Equal(t, want.Timestamp, got.Timestamp)
	require.Equal(t, want.Side, got.Side)
	require.Equal(t, want.TakerSide, got.TakerSide)
	require.Equal(t, want.IsBlockTrade, got.IsBlockTrade)
	require.Equal(t, want.ClientID, got.ClientID)
	require.Equal(t, int64(1717171717000), got.Time().UnixMilli())
}

func TestDecodeTradeBatchOmitsOnlyFailingTuples(t *testing.T) {
	payload := `[
		[1, 1, 1.5, 100, 10, 11, 1000, 0, 1, 0, 0],
		[2, 1, 1.5, 100, 10, 11, 1000, 0, 1, 0],
		[3, 1, "x", 100, 10, 11, 1000, 0, 1, 0, 0],
		[4, 1, 1.5, 100, 10, 11, 1000, 300, 1, 0, 0],
		[5, 90, 2, 1.0001, 12, 13, 2000, 1, 0, 1, 7]
	]`

	trades, err := DecodeTradeBatch(payload)
	require.Error(t, err)
	require.True(t, errs.HasCode(err, errs.CodeRecordDecode))
	require.Len(t, trades, 2)
	require.Equal(t, uint64(1), trades[0].TradeID)
	require.Equal(t, uint64(5), trades[1].TradeID)
	require.Equal(t, uint64(90), trades[1].InstrumentID)
	require.Equal(t, uint8(1), trades[1].IsBlockTrade)
	require.Equal(t, uint64(7), trades[1].ClientID)
}

func TestDecodeTradeBatchRejectsMalformedPayload(t *testing.T) {
	for _, bad := range []string{`{"TradeId":1}`, `null`, `[null]`, `[[101,1,0.5,100.25,9001,9002,1700000000123,0,1,0,0],null]`} {
		trades, err := DecodeTradeBatch(bad)
		require.Nil(t, trades, "payload %q", bad)
		require.True(t, errs.HasCode(err, errs.CodeMalformedPayload), "payload %q: %v", bad, err)
	}
}

func TestDecodeTradeBatchAcceptsEmptyArray(t *testing.T) {
	trades, err := DecodeTradeBatch(`[]`)
	require.NoError(t, err)
	require.Empty(t, trades)
}

func TestDecodeTradeTupleRejectsFractionalIdentifiers(t *testing.T) {
	_, err := DecodeTradeTuple(tuple(t, `[1.5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0]`))
	require.True(t, errs.HasCode(err, errs.CodeRecordDecode))
}
