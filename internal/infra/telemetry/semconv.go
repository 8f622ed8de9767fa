// Package telemetry provides semantic conventions for NDAX gateway observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys follow OpenTelemetry naming: namespace.attribute_name.
const (
	// AttrEnvironment specifies the deployment environment (dev/staging/prod) for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrVenue identifies the exchange that produced the signal.
	AttrVenue = attribute.Key("venue")
	// AttrMessageName carries the envelope name (SubscribeLevel2, TradeDataUpdateEvent, ...).
	AttrMessageName = attribute.Key("message.name")
	// AttrInstrument captures the numeric instrument id.
	AttrInstrument = attribute.Key("instrument.id")
	// AttrBookSide labels order book gauges with bid or ask.
	AttrBookSide = attribute.Key("book.side")
	// AttrReason classifies why a frame or record was dropped.
	AttrReason = attribute.Key("reason")
	// AttrOperation differentiates REST operations.
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation.
	AttrResult = attribute.Key("result")
)

// Drop reasons.
const (
	ReasonMalformedEnvelope = "malformed_envelope"
	ReasonMalformedPayload  = "malformed_payload"
	ReasonRecordDecode      = "record_decode"
	ReasonUnknownName       = "unknown_name"
	ReasonExchangeError     = "exchange_error"
	ReasonSinkError         = "sink_error"
)

// FrameAttributes returns attributes for per-frame counters.
func FrameAttributes(environment, venue, name string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
	}
	if name != "" {
		attrs = append(attrs, AttrMessageName.String(name))
	}
	return attrs
}

// DropAttributes returns attributes for dropped frame and record counters.
func DropAttributes(environment, venue, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrReason.String(reason),
	}
}

// BookAttributes returns attributes for order book gauges.
func BookAttributes(environment, venue string, instrumentID int64, side string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrInstrument.Int64(instrumentID),
		AttrBookSide.String(side),
	}
}

// OperationResultAttributes returns attributes for operation metrics with result classification.
func OperationResultAttributes(environment, venue, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrVenue.String(venue),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}
