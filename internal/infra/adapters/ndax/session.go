package ndax

import (
	"context"
	"fmt"
	"log"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/domain/schema"
	"github.com/coachpo/ndax-gateway/internal/infra/telemetry"
	"github.com/coachpo/ndax-gateway/internal/orderbook"
	"github.com/coachpo/ndax-gateway/internal/wire"
)

const logExcerptLimit = 512

// TradeSink receives decoded trades in arrival order.
type TradeSink interface {
	Record(ctx context.Context, trades []schema.TradeEvent) error
}

type level2Request struct {
	OMSId        int   `json:"OMSId"`
	InstrumentId int64 `json:"InstrumentId"`
	Depth        int   `json:"Depth"`
}

type tradesRequest struct {
	OMSId            int   `json:"OMSId"`
	InstrumentId     int64 `json:"InstrumentId"`
	IncludeLastCount int   `json:"IncludeLastCount"`
}

// Session routes inbound frames to the order book replica and the trade sink.
// HandleFrame must be called from a single goroutine; the websocket manager does so.
type Session struct {
	cfg     SessionConfig
	replica *orderbook.Replica
	sink    TradeSink
	logger  *log.Logger
	metrics *sessionMetrics
}

// NewSession wires a replica and an optional trade sink to the frame router.
func NewSession(cfg SessionConfig, replica *orderbook.Replica, sink TradeSink, logger *log.Logger) (*Session, error) {
	if replica == nil {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("order book replica required"))
	}
	if cfg.OMSID <= 0 {
		cfg.OMSID = 1
	}
	if cfg.Depth <= 0 {
		cfg.Depth = replica.Depth()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		cfg:     cfg,
		replica: replica,
		sink:    sink,
		logger:  logger,
		metrics: newSessionMetrics(cfg.InstrumentID),
	}, nil
}

// Replica exposes the mirrored book.
func (s *Session) Replica() *orderbook.Replica {
	return s.replica
}

// BookSubscription is the SubscribeLevel2 request for the configured instrument.
func (s *Session) BookSubscription() Subscription {
	return Subscription{
		Name: wire.NameSubscribeLevel2,
		Payload: level2Request{
			OMSId:        s.cfg.OMSID,
			InstrumentId: s.cfg.InstrumentID,
			Depth:        s.cfg.Depth,
		},
	}
}

// TradeSubscriptions returns one SubscribeTrades request per configured instrument.
func (s *Session) TradeSubscriptions() []Subscription {
	subs := make([]Subscription, 0, len(s.cfg.TradeInstruments))
	for _, id := range s.cfg.TradeInstruments {
		subs = append(subs, Subscription{
			Name: wire.NameSubscribeTrades,
			Payload: tradesRequest{
				OMSId:            s.cfg.OMSID,
				InstrumentId:     id,
				IncludeLastCount: s.cfg.IncludeLastCount,
			},
		})
	}
	return subs
}

// Subscriptions returns the book subscription followed by the trade subscriptions.
func (s *Session) Subscriptions() []Subscription {
	return append([]Subscription{s.BookSubscription()}, s.TradeSubscriptions()...)
}

// HandleFrame decodes one inbound frame and routes it by message name.
// Every failure is local to the frame: it is logged, counted and returned, and the stream continues.
func (s *Session) HandleFrame(ctx context.Context, data []byte) error {
	env, err := wire.Decode(data)
	if err != nil {
		s.metrics.recordDrop(ctx, telemetry.ReasonMalformedEnvelope)
		s.logger.Printf("ndax session: dropping frame: %v", err)
		return err
	}
	s.metrics.recordFrame(ctx, env.Name)

	if env.IsError() {
		s.metrics.recordDrop(ctx, telemetry.ReasonExchangeError)
		s.logger.Printf("ndax session: %s error reply: %s", env.Name, errs.Truncate(env.Payload, logExcerptLimit))
		return errs.New(component, errs.CodeExchange,
			errs.WithMessage(env.Name+" rejected"),
			errs.WithRawMessage(errs.Truncate(env.Payload, logExcerptLimit)))
	}

	switch env.Name {
	case wire.NameSubscribeLevel2, wire.NameGetL2Snapshot:
		err = s.replica.Initialize(env.Payload)
		return s.afterBookUpdate(ctx, env.Name, err)
	case wire.NameLevel2Update:
		err = s.replica.Apply(env.Payload)
		return s.afterBookUpdate(ctx, env.Name, err)
	case wire.NameTradeDataUpdateEvent:
		return s.handleTrades(ctx, env)
	case wire.NameSubscribeTrades:
		s.logger.Printf("ndax session: trade subscription acknowledged: %s", errs.Truncate(env.Payload, logExcerptLimit))
		return nil
	case wire.NamePing, wire.NameUnsubscribeLevel2, wire.NameUnsubscribeTrades:
		return nil
	default:
		s.metrics.recordDrop(ctx, telemetry.ReasonUnknownName)
		s.logger.Printf("ndax session: ignoring unrecognised message %q", env.Name)
		return nil
	}
}

func (s *Session) afterBookUpdate(ctx context.Context, name string, err error) error {
	if err != nil {
		s.recordDecodeFailure(ctx, name, err)
	}
	s.metrics.recordBook(ctx, s.replica.Len(schema.BookSideBid), s.replica.Len(schema.BookSideAsk))
	if s.cfg.LogUpdates {
		s.logger.Printf("ndax session: order book after %s\n%s", name, s.replica.String())
	}
	return err
}

func (s *Session) handleTrades(ctx context.Context, env wire.Envelope) error {
	trades, err := wire.DecodeTradeBatch(env.Payload)
	if err != nil {
		s.recordDecodeFailure(ctx, env.Name, err)
	}
	if len(trades) == 0 || s.sink == nil {
		return err
	}
	if sinkErr := s.sink.Record(ctx, trades); sinkErr != nil {
		s.metrics.recordDrop(ctx, telemetry.ReasonSinkError)
		s.logger.Printf("ndax session: record %d trades: %v", len(trades), sinkErr)
		return fmt.Errorf("record trades: %w", sinkErr)
	}
	s.metrics.recordTrades(ctx, len(trades))
	return err
}

func (s *Session) recordDecodeFailure(ctx context.Context, name string, err error) {
	reason := telemetry.ReasonRecordDecode
	if errs.HasCode(err, errs.CodeMalformedPayload) {
		reason = telemetry.ReasonMalformedPayload
	}
	s.metrics.recordDrop(ctx, reason)
	s.logger.Printf("ndax session: %s: %v", name, err)
}
