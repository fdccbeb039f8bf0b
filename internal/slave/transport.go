package slave

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obssync/engine/internal/metrics"
	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obssync"
	"github.com/obssync/engine/internal/protocol"
)

// State is the Slave Transport's connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

const (
	connectTimeout = 5 * time.Second
	slaveIdleTimeout = 30 * time.Second
)

// InboundHandler is called on the reader goroutine for every decoded
// envelope arriving from the master.
type InboundHandler func(protocol.Envelope)

// StatusHandler is called whenever the connection status the shell
// boundary cares about changes (connected, reconnecting with detail).
type StatusHandler func(connected bool)

// Transport is the slave's single upstream connection: one dialer/reader
// pair plus a sender queue and a reconnect supervisor. Grounded on the
// teacher's Agent.Start/run reconnect loop, replacing its unlimited
// jittered retry with the spec's exact bounded exponential backoff.
type Transport struct {
	log  *zap.Logger
	reg  *metrics.Registry
	perf *metrics.PerfMetrics

	mu       sync.RWMutex
	state    State
	conn     *websocket.Conn
	attempt  int
	lastErr  string
	wantConn bool

	queue *sessionOutQueue

	onInbound InboundHandler
	onStatus  StatusHandler

	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewTransport constructs a Transport. reg may be nil. perf feeds the
// rolling-window sampler behind get_performance_metrics().
func NewTransport(reg *metrics.Registry, perf *metrics.PerfMetrics, log *zap.Logger, onInbound InboundHandler, onStatus StatusHandler) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	if perf == nil {
		perf = metrics.NewPerfMetrics()
	}
	return &Transport{
		log:       log.Named("slave.transport"),
		reg:       reg,
		perf:      perf,
		queue:     newSessionOutQueue(),
		onInbound: onInbound,
		onStatus:  onStatus,
	}
}

// Status returns the current ReconnectionStatus for the boundary's
// get_slave_reconnection_status().
func (t *Transport) Status() model.ReconnectionStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return model.ReconnectionStatus{
		IsReconnecting: t.state == StateReconnecting,
		AttemptCount:   t.attempt,
		MaxAttempts:    maxReconnectAttempts,
		LastError:      t.lastErr,
		NextDelay:      backoffDelay(t.attempt),
	}
}

// ConnectToMaster starts (or restarts) the dial supervisor loop against
// host:port. Safe to call again after DisconnectFromMaster.
func (t *Transport) ConnectToMaster(host string, port int) {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wantConn = true
	t.attempt = 0
	t.doneCh = make(chan struct{})
	// DisconnectFromMaster closes the outbound queue; reopen it so the new
	// session can send again.
	t.queue.mu.Lock()
	t.queue.closed = false
	t.queue.mu.Unlock()
	t.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", host, port)
	go t.supervise(ctx, addr)
}

// DisconnectFromMaster cancels any pending reconnect and transitions
// cleanly to Disconnected.
func (t *Transport) DisconnectFromMaster() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.wantConn = false
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	t.queue.Close()
	t.setState(StateDisconnected)
}

// Send enqueues an outbound message (slave_status_report or
// state_sync_request) to the master.
func (t *Transport) Send(kind protocol.Kind, target string, payload interface{}) {
	t.queue.Enqueue(kind, target, payload)
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
	if t.onStatus != nil {
		t.onStatus(s == StateConnected)
	}
}

func (t *Transport) supervise(ctx context.Context, addr string) {
	defer close(t.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t.setState(StateConnecting)
		conn, err := t.dial(ctx, addr)
		if err != nil {
			t.mu.Lock()
			t.lastErr = err.Error()
			attempt := t.attempt
			t.mu.Unlock()

			if attempt >= maxReconnectAttempts {
				t.log.Error("reconnect attempts exhausted", zap.Int("attempts", attempt))
				t.setState(StateDisconnected)
				return
			}

			t.setState(StateReconnecting)
			delay := backoffDelay(attempt)
			t.log.Warn("dial failed, backing off", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			if t.reg != nil {
				t.reg.ReconnectAttempts.Inc()
			}
			t.mu.Lock()
			t.attempt++
			t.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		t.mu.Lock()
		t.conn = conn
		t.attempt = 0
		t.lastErr = ""
		t.mu.Unlock()
		t.setState(StateConnected)
		t.log.Info("connected to master", zap.String("addr", addr))
		// Request the initial full snapshot shortly after the session opens.
		time.AfterFunc(500*time.Millisecond, func() {
			t.Send(protocol.KindStateSyncRequest, "", protocol.StateSyncRequestPayload{Reason: "initial sync"})
		})

		t.runSession(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		stillWanted := t.wantConn
		t.mu.Unlock()
		if !stillWanted {
			return
		}
	}
}

func (t *Transport) dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: addr, Path: "/"}
	dialer := &websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("slave: %w: %v", obssync.ErrConnectRefused, err)
	}
	conn.SetReadLimit(4 * 1024 * 1024)
	return conn, nil
}

// runSession spawns the reader and sender for one live connection and
// blocks until either exits.
func (t *Transport) runSession(ctx context.Context, conn *websocket.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer wg.Done()
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(slaveIdleTimeout))
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				t.log.Info("master read ended", zap.Error(err))
				return
			}
			conn.SetReadDeadline(time.Now().Add(slaveIdleTimeout))

			env, err := protocol.Decode(raw)
			if err != nil {
				t.log.Warn("malformed inbound envelope from master", zap.Error(err))
				continue
			}
			t.perf.Record(string(env.Type), len(raw), float64(time.Since(env.TimestampTime()).Milliseconds()))
			if t.onInbound != nil {
				t.onInbound(env)
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			entry, ok := t.queue.Dequeue(sessionCtx)
			if !ok {
				return
			}
			frame, err := protocol.Encode(entry.kind, entry.target, entry.payload)
			if err != nil {
				t.log.Error("encode outbound failed", zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.log.Info("master write failed", zap.Error(err))
				return
			}
			t.perf.Record(string(entry.kind), len(frame), 0)
		}
	}()

	wg.Wait()
	conn.Close()
}
