package ndax

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/ndax-gateway/errs"
	"github.com/coachpo/ndax-gateway/internal/wire"
)

const component = "ndax"

// FrameHandler receives every inbound frame, one at a time, in arrival order.
type FrameHandler func(ctx context.Context, data []byte) error

// Subscription is a subscribe request the manager replays after every reconnect.
type Subscription struct {
	Name    string
	Payload any
}

type recordedSubscription struct {
	name    string
	payload string
}

func (s recordedSubscription) key() string {
	return s.name + "|" + s.payload
}

// WSManager owns the websocket connection to the NDAX gateway. It is the only writer on the
// connection, keeps the session alive with Ping requests and re-establishes dropped connections.
type WSManager struct {
	cfg     StreamConfig
	logger  *log.Logger
	handler FrameHandler
	metrics *streamMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	conn   *websocket.Conn
	connID string
	connMu sync.RWMutex

	writeMu sync.Mutex
	seq     atomic.Uint64

	subsMu        sync.Mutex
	subscriptions map[string]recordedSubscription
	subOrder      []string

	errorChan chan<- error

	ready     chan struct{}
	readyOnce sync.Once
}

// NewWSManager builds a manager that dials cfg.URL once Start is called.
// errorsOut receives non-fatal transport and handler errors; it may be nil.
func NewWSManager(cfg StreamConfig, handler FrameHandler, logger *log.Logger, errorsOut chan<- error) *WSManager {
	if logger == nil {
		logger = log.Default()
	}
	return &WSManager{
		cfg:           cfg.withDefaults(),
		logger:        logger,
		handler:       handler,
		metrics:       newStreamMetrics(),
		subscriptions: make(map[string]recordedSubscription),
		errorChan:     errorsOut,
		ready:         make(chan struct{}),
	}
}

// Start launches the connection loop and waits for the first successful dial.
// The loop keeps reconnecting until ctx is cancelled or Stop is called.
func (sm *WSManager) Start(ctx context.Context) error {
	if sm.cfg.URL == "" {
		return errs.New(component, errs.CodeInvalid, errs.WithMessage("websocket url required"))
	}
	sm.ctx, sm.cancel = context.WithCancel(ctx)

	sm.wg.Go(func() {
		if err := sm.connectLoop(); err != nil && !errors.Is(err, context.Canceled) {
			sm.reportError(fmt.Errorf("ndax ws manager: %w", err))
		}
	})

	select {
	case <-sm.ready:
		return nil
	case <-time.After(sm.cfg.ReadyTimeout):
		return errs.New(component, errs.CodeNetwork, errs.WithMessage("timeout waiting for ndax websocket connection"))
	case <-sm.ctx.Done():
		return fmt.Errorf("ndax websocket context done: %w", sm.ctx.Err())
	}
}

// Stop closes the connection and waits for the connection loop to exit.
func (sm *WSManager) Stop() {
	if sm.cancel == nil {
		return
	}
	sm.cancel()
	sm.connMu.Lock()
	if sm.conn != nil {
		_ = sm.conn.Close(websocket.StatusNormalClosure, "shutdown")
		sm.conn = nil
	}
	sm.connMu.Unlock()
	sm.wg.Wait()
}

// Subscribe records subs for replay and sends the ones not already active.
// Subscriptions registered before the first connection are sent once it is established.
func (sm *WSManager) Subscribe(ctx context.Context, subs ...Subscription) error {
	added := make([]recordedSubscription, 0, len(subs))
	sm.subsMu.Lock()
	for _, sub := range subs {
		rec, err := recordSubscription(sub)
		if err != nil {
			sm.subsMu.Unlock()
			return err
		}
		key := rec.key()
		if _, exists := sm.subscriptions[key]; exists {
			continue
		}
		sm.subscriptions[key] = rec
		sm.subOrder = append(sm.subOrder, key)
		added = append(added, rec)
	}
	sm.subsMu.Unlock()

	for _, rec := range added {
		if err := sm.sendControl(ctx, rec.name, rec.payload); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe forgets sub and sends unsubscribeName with the same payload.
func (sm *WSManager) Unsubscribe(ctx context.Context, sub Subscription, unsubscribeName string) error {
	rec, err := recordSubscription(sub)
	if err != nil {
		return err
	}
	key := rec.key()
	sm.subsMu.Lock()
	_, exists := sm.subscriptions[key]
	if exists {
		delete(sm.subscriptions, key)
		for i, k := range sm.subOrder {
			if k == key {
				sm.subOrder = append(sm.subOrder[:i], sm.subOrder[i+1:]...)
				break
			}
		}
	}
	sm.subsMu.Unlock()
	if !exists {
		return nil
	}
	return sm.sendControl(ctx, unsubscribeName, rec.payload)
}

// Send writes one request envelope on the live connection.
func (sm *WSManager) Send(ctx context.Context, typ wire.MessageType, name string, payload any) error {
	conn := sm.currentConn()
	if conn == nil {
		return errs.New(component, errs.CodeNetwork, errs.WithMessage("websocket not connected"))
	}
	return sm.write(ctx, conn, typ, name, payload)
}

// ConnectionID identifies the live connection in log lines; empty while disconnected.
func (sm *WSManager) ConnectionID() string {
	sm.connMu.RLock()
	defer sm.connMu.RUnlock()
	return sm.connID
}

func recordSubscription(sub Subscription) (recordedSubscription, error) {
	env, err := wire.NewRequest(wire.MessageTypeRequest, 0, sub.Name, sub.Payload)
	if err != nil {
		return recordedSubscription{}, err
	}
	if env.Name == "" {
		return recordedSubscription{}, errs.New(component, errs.CodeInvalid, errs.WithMessage("subscription name required"))
	}
	return recordedSubscription{name: env.Name, payload: env.Payload}, nil
}

func (sm *WSManager) currentConn() *websocket.Conn {
	sm.connMu.RLock()
	defer sm.connMu.RUnlock()
	return sm.conn
}

// sendControl is a no-op while disconnected; the subscription is replayed on connect.
func (sm *WSManager) sendControl(ctx context.Context, name, payload string) error {
	conn := sm.currentConn()
	if conn == nil {
		return nil
	}
	if err := sm.write(ctx, conn, wire.MessageTypeRequest, name, payload); err != nil {
		return err
	}
	sm.metrics.recordControl(ctx, name)
	sm.logger.Printf("ndax ws manager: %s request sent", name)
	return nil
}

func (sm *WSManager) write(ctx context.Context, conn *websocket.Conn, typ wire.MessageType, name string, payload any) error {
	env, err := wire.NewRequest(typ, sm.seq.Add(1), name, payload)
	if err != nil {
		return err
	}
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}

	sm.writeMu.Lock()
	defer sm.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ensureContext(ctx), defaultWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s request: %w", name, err)
	}
	return nil
}

func (sm *WSManager) connectLoop() error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = sm.cfg.MaxReconnectWait

	for {
		select {
		case <-sm.ctx.Done():
			return context.Canceled
		default:
		}

		conn, _, err := websocket.Dial(sm.ctx, sm.cfg.URL, nil)
		if err != nil {
			sm.metrics.recordReconnect(sm.ctx, "dial_error")
			sm.reportError(fmt.Errorf("dial %s: %w", sm.cfg.URL, err))
			if !sm.sleep(backoffCfg) {
				return context.Canceled
			}
			continue
		}
		sm.metrics.recordReconnect(sm.ctx, "connected")
		conn.SetReadLimit(sm.cfg.ReadLimit)

		connID := uuid.NewString()
		sm.connMu.Lock()
		sm.conn = conn
		sm.connID = connID
		sm.connMu.Unlock()
		sm.logger.Printf("ndax ws manager: connected to %s (connection %s)", sm.cfg.URL, connID)

		backoffCfg.Reset()

		if err := sm.subscribeAll(); err != nil {
			sm.reportError(fmt.Errorf("resubscribe after reconnect: %w", err))
		}
		sm.readyOnce.Do(func() {
			close(sm.ready)
		})

		connCtx, connCancel := context.WithCancel(sm.ctx)
		errCh := make(chan error, 2)
		var wg conc.WaitGroup
		wg.Go(func() {
			errCh <- sm.readLoop(connCtx, conn)
		})
		wg.Go(func() {
			errCh <- sm.pingLoop(connCtx, conn)
		})

		firstErr := <-errCh
		connCancel()

		sm.connMu.Lock()
		if sm.conn == conn {
			sm.conn = nil
			sm.connID = ""
		}
		sm.connMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")

		wg.Wait()
		close(errCh)

		aggregatedErr := firstErr
		for e := range errCh {
			if aggregatedErr == nil || isCancellation(aggregatedErr) {
				aggregatedErr = e
			}
		}
		if aggregatedErr != nil && !isCancellation(aggregatedErr) {
			sm.reportError(fmt.Errorf("ndax websocket connection %s: %w", connID, aggregatedErr))
		}
		sm.logger.Printf("ndax ws manager: connection %s closed", connID)

		if !sm.sleep(backoffCfg) {
			return context.Canceled
		}
	}
}

// sleep waits for the next backoff interval and reports false once the manager is stopped.
func (sm *WSManager) sleep(backoffCfg *backoff.ExponentialBackOff) bool {
	wait := backoffCfg.NextBackOff()
	if wait == backoff.Stop {
		wait = sm.cfg.MaxReconnectWait
	}
	select {
	case <-sm.ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

func (sm *WSManager) subscribeAll() error {
	sm.subsMu.Lock()
	pending := make([]recordedSubscription, 0, len(sm.subOrder))
	for _, key := range sm.subOrder {
		pending = append(pending, sm.subscriptions[key])
	}
	sm.subsMu.Unlock()

	var errList []error
	for _, rec := range pending {
		if err := sm.sendControl(sm.ctx, rec.name, rec.payload); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (sm *WSManager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		if msgType != websocket.MessageText || len(data) == 0 {
			continue
		}
		if sm.handler == nil {
			continue
		}
		if err := sm.handler(ctx, data); err != nil {
			sm.reportError(fmt.Errorf("handle websocket message: %w", err))
		}
	}
}

func (sm *WSManager) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(sm.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
			if err := sm.writePing(ctx, conn); err != nil {
				sm.metrics.recordPing(ctx, "error")
				return err
			}
			sm.metrics.recordPing(ctx, "ok")
		}
	}
}

func (sm *WSManager) writePing(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := sm.write(pingCtx, conn, wire.MessageTypeRequest, wire.NamePing, struct{}{}); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	return nil
}

func (sm *WSManager) reportError(err error) {
	if err == nil {
		return
	}
	select {
	case <-sm.ctx.Done():
	case sm.errorChan <- err:
	default:
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
