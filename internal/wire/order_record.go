package wire

import (
	"errors"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/domain/schema"
)

// Positions read from a level tuple. The volume field doubles as the bid/ask discriminator.
// These positions are load-bearing as written; DocumentedLevel2Layout is the alternative reading of
// the exchange schema that keeps side and volume apart.
const (
	OrderPriceIndex  = 6
	OrderVolumeIndex = 8
	OrderSideIndex   = 8
)

// Layout names the tuple positions used to build an OrderRecord.
type Layout struct {
	PriceIndex  int `yaml:"priceIndex"`
	VolumeIndex int `yaml:"volumeIndex"`
	SideIndex   int `yaml:"sideIndex"`
}

var (
	// DefaultLayout reads price at 6 and volume/side at 8.
	DefaultLayout = Layout{PriceIndex: OrderPriceIndex, VolumeIndex: OrderVolumeIndex, SideIndex: OrderSideIndex}
	// DocumentedLevel2Layout reads the side from its own field at position 9.
	DocumentedLevel2Layout = Layout{PriceIndex: 6, VolumeIndex: 8, SideIndex: 9}
)

// Validate rejects negative positions.
func (l Layout) Validate() error {
	if l.PriceIndex < 0 || l.VolumeIndex < 0 || l.SideIndex < 0 {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("layout positions must be >= 0"))
	}
	return nil
}

// DecodeOrderTuple reads one positional tuple into an OrderRecord.
// A side value of 0 selects the bid side; any other value selects the ask side.
func DecodeOrderTuple(tuple []json.RawMessage, layout Layout) (schema.OrderRecord, error) {
	price, err := decimalAt(tuple, layout.PriceIndex, "price")
	if err != nil {
		return schema.OrderRecord{}, err
	}
	volume, err := decimalAt(tuple, layout.VolumeIndex, "volume")
	if err != nil {
		return schema.OrderRecord{}, err
	}
	sideValue := volume
	if layout.SideIndex != layout.VolumeIndex {
		sideValue, err = decimalAt(tuple, layout.SideIndex, "side")
		if err != nil {
			return schema.OrderRecord{}, err
		}
	}
	side := schema.BookSideAsk
	if sideValue.IsZero() {
		side = schema.BookSideBid
	}
	return schema.OrderRecord{Price: price, Volume: volume, Side: side}, nil
}

// DecodeOrderBatch parses a level payload (an array of tuples) in its given order.
// A payload that is not an array of arrays returns a malformed_payload error and no records.
// Unreadable tuples are skipped; their record_decode errors are joined into the returned error
// alongside the records that did decode.
func DecodeOrderBatch(payload string, layout Layout) ([]schema.OrderRecord, error) {
	tuples, err := parseTuples(payload)
	if err != nil {
		return nil, err
	}
	records := make([]schema.OrderRecord, 0, len(tuples))
	var failures []error
	for i, tuple := range tuples {
		record, err := DecodeOrderTuple(tuple, layout)
		if err != nil {
			failures = append(failures, withTupleIndex(err, i))
			continue
		}
		records = append(records, record)
	}
	return records, errors.Join(failures...)
}

func parseTuples(payload string) ([][]json.RawMessage, error) {
	var tuples [][]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &tuples); err != nil {
		return nil, errs.New(component, errs.CodeMalformedPayload,
			errs.WithMessage("payload is not an array of tuples"),
			errs.WithRawMessage(errs.Truncate(payload, rawExcerptLimit)),
			errs.WithCause(err),
		)
	}
	// Unmarshal accepts null for the payload and for each tuple without error.
	if tuples == nil {
		return nil, errs.New(component, errs.CodeMalformedPayload,
			errs.WithMessage("payload is null"),
			errs.WithRawMessage(errs.Truncate(payload, rawExcerptLimit)),
		)
	}
	for i, tuple := range tuples {
		if tuple == nil {
			return nil, errs.New(component, errs.CodeMalformedPayload,
				errs.WithMessage("tuple is null"),
				errs.WithField("tuple", strconv.Itoa(i)),
				errs.WithRawMessage(errs.Truncate(payload, rawExcerptLimit)),
			)
		}
	}
	return tuples, nil
}

func decimalAt(tuple []json.RawMessage, index int, field string) (decimal.Decimal, error) {
	raw, err := numberAt(tuple, index, field)
	if err != nil {
		return decimal.Decimal{}, err
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, recordError(field, index, "not a decimal", err)
	}
	return value, nil
}

func uintAt(tuple []json.RawMessage, index int, field string, bitSize int) (uint64, error) {
	raw, err := numberAt(tuple, index, field)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(raw, 10, bitSize)
	if err != nil {
		return 0, recordError(field, index, "not an unsigned integer", err)
	}
	return value, nil
}

func intAt(tuple []json.RawMessage, index int, field string) (int64, error) {
	raw, err := numberAt(tuple, index, field)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, recordError(field, index, "not an integer", err)
	}
	return value, nil
}

// numberAt returns the literal text of a JSON number; strings, booleans and null are rejected.
func numberAt(tuple []json.RawMessage, index int, field string) (string, error) {
	if index < 0 || index >= len(tuple) {
		return "", recordError(field, index, "index out of range (len "+strconv.Itoa(len(tuple))+")", nil)
	}
	raw := string(trimJSON(tuple[index]))
	if raw == "" {
		return "", recordError(field, index, "empty value", nil)
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return "", recordError(field, index, "non-numeric value "+errs.Truncate(raw, 32), nil)
	}
	return raw, nil
}

func trimJSON(raw json.RawMessage) []byte {
	start, end := 0, len(raw)
	for start < end && isSpace(raw[start]) {
		start++
	}
	for end > start && isSpace(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func recordError(field string, index int, msg string, cause error) error {
	return errs.New(component, errs.CodeRecordDecode,
		errs.WithMessage(field+": "+msg),
		errs.WithField("position", strconv.Itoa(index)),
		errs.WithCause(cause),
	)
}

func withTupleIndex(err error, tuple int) error {
	var e *errs.E
	if errors.As(err, &e) {
		errs.WithField("tuple", strconv.Itoa(tuple))(e)
	}
	return err
}
