package ndax

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/ndax-gateway/internal/domain/schema"
	"github.com/coachpo/ndax-gateway/internal/infra/telemetry"
)

const meterName = "adapter.ndax"

type sessionMetrics struct {
	environment  string
	venue        string
	instrumentID int64

	framesReceived metric.Int64Counter
	framesDropped  metric.Int64Counter
	tradesRecorded metric.Int64Counter
	bookLevels     metric.Int64Gauge
}

func newSessionMetrics(instrumentID int64) *sessionMetrics {
	meter := otel.Meter(meterName)
	sm := &sessionMetrics{
		environment:  telemetry.Environment(),
		venue:        ndaxPublicMetadata.venue,
		instrumentID: instrumentID,
	}

	sm.framesReceived, _ = meter.Int64Counter("ndax.frames.received",
		metric.WithDescription("Websocket frames received from the NDAX gateway"),
		metric.WithUnit("{frame}"))

	sm.framesDropped, _ = meter.Int64Counter("ndax.frames.dropped",
		metric.WithDescription("Frames or records discarded while decoding"),
		metric.WithUnit("{frame}"))

	sm.tradesRecorded, _ = meter.Int64Counter("ndax.trades.recorded",
		metric.WithDescription("Trade events written to the trade sink"),
		metric.WithUnit("{trade}"))

	sm.bookLevels, _ = meter.Int64Gauge("ndax.book.levels",
		metric.WithDescription("Price levels held by the order book replica"),
		metric.WithUnit("{level}"))

	return sm
}

func (sm *sessionMetrics) recordFrame(ctx context.Context, name string) {
	if sm == nil || sm.framesReceived == nil {
		return
	}
	attrs := telemetry.FrameAttributes(sm.environment, sm.venue, name)
	sm.framesReceived.Add(ensureContext(ctx), 1, metric.WithAttributes(attrs...))
}

func (sm *sessionMetrics) recordDrop(ctx context.Context, reason string) {
	if sm == nil || sm.framesDropped == nil {
		return
	}
	attrs := telemetry.DropAttributes(sm.environment, sm.venue, reason)
	sm.framesDropped.Add(ensureContext(ctx), 1, metric.WithAttributes(attrs...))
}

func (sm *sessionMetrics) recordTrades(ctx context.Context, count int) {
	if sm == nil || sm.tradesRecorded == nil || count <= 0 {
		return
	}
	attrs := telemetry.FrameAttributes(sm.environment, sm.venue, "")
	sm.tradesRecorded.Add(ensureContext(ctx), int64(count), metric.WithAttributes(attrs...))
}

func (sm *sessionMetrics) recordBook(ctx context.Context, bids, asks int) {
	if sm == nil || sm.bookLevels == nil {
		return
	}
	ctx = ensureContext(ctx)
	bidAttrs := telemetry.BookAttributes(sm.environment, sm.venue, sm.instrumentID, schema.BookSideBid.String())
	askAttrs := telemetry.BookAttributes(sm.environment, sm.venue, sm.instrumentID, schema.BookSideAsk.String())
	sm.bookLevels.Record(ctx, int64(bids), metric.WithAttributes(bidAttrs...))
	sm.bookLevels.Record(ctx, int64(asks), metric.WithAttributes(askAttrs...))
}

type streamMetrics struct {
	environment string
	venue       string

	reconnects      metric.Int64Counter
	controlMessages metric.Int64Counter
	pingCount       metric.Int64Counter
}

func newStreamMetrics() *streamMetrics {
	meter := otel.Meter(meterName)
	sm := &streamMetrics{
		environment: telemetry.Environment(),
		venue:       ndaxPublicMetadata.venue,
	}

	sm.reconnects, _ = meter.Int64Counter("ndax.ws.reconnects",
		metric.WithDescription("Websocket dial attempts against the NDAX gateway"),
		metric.WithUnit("{reconnect}"))

	sm.controlMessages, _ = meter.Int64Counter("ndax.ws.control_messages",
		metric.WithDescription("Subscribe and unsubscribe requests written to the gateway"),
		metric.WithUnit("{message}"))

	sm.pingCount, _ = meter.Int64Counter("ndax.ws.pings",
		metric.WithDescription("Ping requests written to the gateway"),
		metric.WithUnit("{ping}"))

	return sm
}

func (sm *streamMetrics) baseAttrs(name string) []attribute.KeyValue {
	return telemetry.FrameAttributes(sm.environment, sm.venue, name)
}

func (sm *streamMetrics) recordReconnect(ctx context.Context, result string) {
	if sm == nil || sm.reconnects == nil {
		return
	}
	attrs := append(sm.baseAttrs(""), telemetry.AttrResult.String(result))
	sm.reconnects.Add(ensureContext(ctx), 1, metric.WithAttributes(attrs...))
}

func (sm *streamMetrics) recordControl(ctx context.Context, name string) {
	if sm == nil || sm.controlMessages == nil {
		return
	}
	sm.controlMessages.Add(ensureContext(ctx), 1, metric.WithAttributes(sm.baseAttrs(name)...))
}

func (sm *streamMetrics) recordPing(ctx context.Context, result string) {
	if sm == nil || sm.pingCount == nil {
		return
	}
	attrs := append(sm.baseAttrs(""), telemetry.AttrResult.String(result))
	sm.pingCount.Add(ensureContext(ctx), 1, metric.WithAttributes(attrs...))
}

type restMetrics struct {
	environment string
	venue       string
	duration    metric.Float64Histogram
}

func newRESTMetrics() *restMetrics {
	meter := otel.Meter(meterName)
	rm := &restMetrics{
		environment: telemetry.Environment(),
		venue:       ndaxPublicMetadata.venue,
	}
	rm.duration, _ = meter.Float64Histogram(telemetry.RESTDurationMetric,
		metric.WithDescription("Round trip time of NDAX REST calls"),
		metric.WithUnit("ms"))
	return rm
}

func (rm *restMetrics) recordCall(ctx context.Context, operation, result string, elapsed time.Duration) {
	if rm == nil || rm.duration == nil {
		return
	}
	if elapsed < 0 {
		elapsed = 0
	}
	attrs := telemetry.OperationResultAttributes(rm.environment, rm.venue, operation, result)
	rm.duration.Record(ensureContext(ctx), float64(elapsed.Microseconds())/1000, metric.WithAttributes(attrs...))
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
