package master

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obssync/engine/internal/metrics"
	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obssync"
	"github.com/obssync/engine/internal/protocol"
)

const (
	heartbeatInterval = 5 * time.Second
	idleTimeout       = 30 * time.Second
)

// InboundHandler is invoked on the session's reader goroutine for every
// decoded inbound envelope (slave_status_report, state_sync_request,
// heartbeat). Implementations must not block.
type InboundHandler func(clientID string, env protocol.Envelope)

// Transport is the master's WebSocket listener: one acceptor, N
// session-reader tasks, N session-sender tasks, and a heartbeat timer.
// Grounded on the teacher's tunnel.Connect/bridge pattern, generalized
// from a single relay connection to an accept loop serving many slaves.
type Transport struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	reg      *metrics.Registry
	perf     *metrics.PerfMetrics

	mu        sync.RWMutex
	sessions  map[string]*Session
	snapshot  atomic.Value // []*Session

	onInbound InboundHandler

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewTransport constructs a Transport. reg may be nil (metrics become
// no-ops via nil checks at call sites). perf feeds the rolling-window
// sampler behind get_performance_metrics().
func NewTransport(log *zap.Logger, reg *metrics.Registry, perf *metrics.PerfMetrics, onInbound InboundHandler) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	if perf == nil {
		perf = metrics.NewPerfMetrics()
	}
	t := &Transport{
		log:       log.Named("master.transport"),
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		reg:       reg,
		perf:      perf,
		sessions:  make(map[string]*Session),
		onInbound: onInbound,
		stopCh:    make(chan struct{}),
	}
	t.snapshot.Store([]*Session{})
	return t
}

// Start binds the listen address and begins accepting slave connections.
func (t *Transport) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			return fmt.Errorf("master: %w: %v", obssync.ErrBindInUse, err)
		}
		if isPermissionDenied(err) {
			return fmt.Errorf("master: %w: %v", obssync.ErrBindPermission, err)
		}
		return fmt.Errorf("master: listen %s: %w", addr, err)
	}
	t.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", t.handleUpgrade)
	t.httpServer = &http.Server{Handler: mux}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.log.Error("accept loop exited", zap.Error(err))
		}
	}()

	t.wg.Add(1)
	go t.heartbeatLoop()

	t.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the actual bound address, or "" if not started.
func (t *Transport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// drainTimeout bounds how long Stop waits for outbound queues to empty
// before force-closing every session.
const drainTimeout = 2 * time.Second

// Stop closes the listener and every session. Outbound queues are given
// a bounded, best-effort window to drain before sessions are force-closed,
// so a slave mid-resync isn't cut off mid-snapshot on a clean shutdown.
// Returns obssync.ErrNotRunning if the transport was never started.
func (t *Transport) Stop() error {
	if t.listener == nil {
		return fmt.Errorf("master: %w", obssync.ErrNotRunning)
	}
	t.stopOnce.Do(func() {
		close(t.stopCh)

		t.mu.RLock()
		sessions := make([]*Session, 0, len(t.sessions))
		for _, s := range t.sessions {
			sessions = append(sessions, s)
		}
		t.mu.RUnlock()

		deadline := time.Now().Add(drainTimeout)
		for _, s := range sessions {
			for s.queue.Len() > 0 && time.Now().Before(deadline) {
				time.Sleep(20 * time.Millisecond)
			}
		}

		if t.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			t.httpServer.Shutdown(ctx)
		}
		t.mu.Lock()
		t.sessions = make(map[string]*Session)
		t.mu.Unlock()
		t.publishSnapshot()
		for _, s := range sessions {
			s.close()
		}
	})
	t.wg.Wait()
	return nil
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(4 * 1024 * 1024)

	clientID := uuid.NewString()
	session := newSession(clientID, r.RemoteAddr, conn, t.log)

	t.mu.Lock()
	t.sessions[clientID] = session
	t.mu.Unlock()
	t.publishSnapshot()
	if t.reg != nil {
		t.reg.SessionsActive.Inc()
	}

	t.log.Info("slave connected", zap.String("clientId", clientID), zap.String("remote", r.RemoteAddr))

	t.wg.Add(2)
	go t.readLoop(session)
	go t.sendLoop(session)
}

func (t *Transport) readLoop(s *Session) {
	defer t.wg.Done()
	defer t.removeSession(s)

	s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			t.log.Info("session read ended", zap.String("clientId", s.ClientID), zap.Error(err))
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		s.touch()

		env, err := protocol.Decode(raw)
		if err != nil {
			t.log.Warn("malformed inbound envelope", zap.String("clientId", s.ClientID), zap.Error(err))
			continue
		}
		t.perf.Record(string(env.Type), len(raw), float64(time.Since(env.TimestampTime()).Milliseconds()))

		if env.Type == protocol.KindSlaveStatusReport {
			var report protocol.SlaveStatusReportPayload
			if err := env.DecodePayload(&report); err == nil {
				s.recordStatus(model.SlaveStatusReport{IsSynced: report.IsSynced, DesyncDetails: report.DesyncDetails})
			}
		}

		if t.onInbound != nil {
			t.onInbound(s.ClientID, env)
		}
	}
}

func (t *Transport) sendLoop(s *Session) {
	defer t.wg.Done()
	for {
		entry, ok := s.queue.Dequeue()
		if !ok {
			return
		}

		if s.queue.OverflowDuration() > heartbeatDrainGrace {
			t.log.Warn("session persistently behind, disconnecting",
				zap.String("clientId", s.ClientID), zap.Int64("dropped", s.queue.DroppedCount()))
			s.close()
			return
		}

		frame, err := protocol.Encode(entry.kind, entry.target, entry.payload)
		if err != nil {
			t.log.Error("encode failed, dropping entry", zap.Error(err))
			continue
		}

		s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			t.log.Info("session write failed", zap.String("clientId", s.ClientID), zap.Error(err))
			s.close()
			return
		}
		t.perf.Record(string(entry.kind), len(frame), 0)
		if t.reg != nil {
			t.reg.MessagesSent.Inc()
			t.reg.BytesSent.Add(float64(len(frame)))
		}
	}
}

func (t *Transport) removeSession(s *Session) {
	t.mu.Lock()
	if existing, ok := t.sessions[s.ClientID]; ok && existing == s {
		delete(t.sessions, s.ClientID)
	}
	t.mu.Unlock()
	t.publishSnapshot()
	if t.reg != nil {
		t.reg.SessionsActive.Dec()
	}
	s.close()
}

func (t *Transport) publishSnapshot() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		snap = append(snap, s)
	}
	t.snapshot.Store(snap)
}

// Sessions returns a lock-free snapshot of currently connected sessions.
func (t *Transport) Sessions() []*Session {
	return t.snapshot.Load().([]*Session)
}

// SessionByID looks up a session by clientId.
func (t *Transport) SessionByID(clientID string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[clientID]
	return s, ok
}

// Broadcast enqueues a message to every connected session. A slow
// client's queue backing up never blocks delivery to the others, since
// Enqueue only ever touches that session's own queue.
func (t *Transport) Broadcast(kind protocol.Kind, target string, payload interface{}, coalesceKey string) {
	for _, s := range t.Sessions() {
		t.enqueue(s, kind, target, payload, coalesceKey)
	}
}

// SendTo enqueues a message to a single session, for resync_specific_slave.
func (t *Transport) SendTo(clientID string, kind protocol.Kind, target string, payload interface{}, coalesceKey string) error {
	s, ok := t.SessionByID(clientID)
	if !ok {
		return fmt.Errorf("master: %w: no session %s", obssync.ErrPeerGone, clientID)
	}
	t.enqueue(s, kind, target, payload, coalesceKey)
	return nil
}

func (t *Transport) enqueue(s *Session, kind protocol.Kind, target string, payload interface{}, coalesceKey string) {
	res := s.queue.Enqueue(kind, target, payload, coalesceKey)
	if t.reg == nil {
		return
	}
	switch res {
	case dropped:
		t.reg.MessagesDropped.Inc()
	case coalesced:
		t.reg.MessagesCoalesced.Inc()
	}
}

func (t *Transport) heartbeatLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.Broadcast(protocol.KindHeartbeat, "", protocol.HeartbeatPayload{}, "")
		}
	}
}

func isAddrInUse(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "address already in use") || strings.Contains(msg, "only one usage of each socket address")
}

func isPermissionDenied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "access is denied")
}
