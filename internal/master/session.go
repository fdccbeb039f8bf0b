// Package master implements the master role: it owns the local OBS
// connection of truth, translates OBS events into sync messages, and
// fans them out to connected slaves over a bounded per-session queue.
// Grounded on the teacher's tunnel package (per-connection channel-based
// writer) generalized to N sessions, and on go-server-3's session hub for
// the registry/broadcast shape.
package master

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/protocol"
)

// queueCapacity is the recommended bound on a session's outbound queue.
const queueCapacity = 256

// heartbeatDrainGrace is how long a session may sit persistently over
// capacity (forced to carry non-droppable messages past the soft cap)
// before the transport disconnects it as unrecoverably behind.
const heartbeatDrainGrace = 15 * time.Second

// queueEntry is one pending outbound message. CoalesceKey is empty for
// kinds that are never coalesced.
type queueEntry struct {
	kind        protocol.Kind
	target      string
	payload     interface{}
	coalesceKey string
}

// sessionQueue is a bounded, coalescing outbound queue. transform_update
// entries sharing a CoalesceKey replace each other in place (same slot,
// same position) rather than growing the queue; scene/filter/image/
// state_sync entries are never dropped or coalesced, so they may push
// the queue past queueCapacity — that condition is what triggers the
// disconnect-on-sustained-overflow policy in the owning Session.
type sessionQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []*queueEntry
	// coalesceIdx maps a coalesce key to its entry's index in buf, for
	// kinds where Coalescable() is true.
	coalesceIdx map[string]int
	closed      bool

	overflowSince time.Time
	droppedCount  int64
}

func newSessionQueue() *sessionQueue {
	q := &sessionQueue{coalesceIdx: make(map[string]int)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// enqueueResult reports what Enqueue did, for metrics/logging.
type enqueueResult int

const (
	enqueued enqueueResult = iota
	coalesced
	dropped
)

// Enqueue adds an entry, coalescing or dropping per the kind's policy.
func (q *sessionQueue) Enqueue(kind protocol.Kind, target string, payload interface{}, coalesceKey string) enqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return dropped
	}

	if kind.Coalescable() && coalesceKey != "" {
		if idx, ok := q.coalesceIdx[coalesceKey]; ok {
			q.buf[idx] = &queueEntry{kind: kind, target: target, payload: payload, coalesceKey: coalesceKey}
			return coalesced
		}
	}

	result := enqueued
	if len(q.buf) >= queueCapacity {
		if kind.DroppableOnOverflow() {
			q.droppedCount++
			if q.overflowSince.IsZero() {
				q.overflowSince = time.Now()
			}
			// Make room by discarding the oldest droppable entry; when none
			// is queued, the incoming message is the one discarded.
			victim := -1
			for i := len(q.buf) - 1; i >= 0; i-- {
				if q.buf[i].kind.DroppableOnOverflow() {
					victim = i
				}
			}
			if victim < 0 {
				return dropped
			}
			q.buf = append(q.buf[:victim], q.buf[victim+1:]...)
			for k, idx := range q.coalesceIdx {
				if idx == victim {
					delete(q.coalesceIdx, k)
				} else if idx > victim {
					q.coalesceIdx[k] = idx - 1
				}
			}
			result = dropped
		}
		// Non-droppable kinds are never discarded; the queue is allowed
		// to exceed its soft cap rather than lose a scene/filter/image/
		// state_sync update.
		if q.overflowSince.IsZero() {
			q.overflowSince = time.Now()
		}
	}

	entry := &queueEntry{kind: kind, target: target, payload: payload, coalesceKey: coalesceKey}
	q.buf = append(q.buf, entry)
	if kind.Coalescable() && coalesceKey != "" {
		q.coalesceIdx[coalesceKey] = len(q.buf) - 1
	}
	if len(q.buf) < queueCapacity {
		q.overflowSince = time.Time{}
	}
	q.cond.Signal()
	return result
}

// Dequeue blocks until an entry is available or the queue is closed.
func (q *sessionQueue) Dequeue() (*queueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 && q.closed {
		return nil, false
	}

	entry := q.buf[0]
	q.buf = q.buf[1:]
	// Re-index coalesce map since everything shifted down one.
	for k, idx := range q.coalesceIdx {
		if idx == 0 {
			delete(q.coalesceIdx, k)
		} else {
			q.coalesceIdx[k] = idx - 1
		}
	}
	if len(q.buf) < queueCapacity {
		q.overflowSince = time.Time{}
	}
	return entry, true
}

// OverflowDuration reports how long the queue has been persistently over
// capacity, or zero if it is currently within capacity.
func (q *sessionQueue) OverflowDuration() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.overflowSince.IsZero() {
		return 0
	}
	return time.Since(q.overflowSince)
}

// Len returns the number of entries currently queued, for the transport's
// bounded shutdown drain.
func (q *sessionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// DroppedCount returns the lifetime count of dropped entries.
func (q *sessionQueue) DroppedCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.droppedCount
}

// Close unblocks any pending Dequeue and marks the queue closed.
func (q *sessionQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Session is one connected slave's client connection and outbound queue.
type Session struct {
	ClientID      string
	RemoteAddr    string
	ConnectedAt   time.Time

	conn  *websocket.Conn
	queue *sessionQueue
	log   *zap.Logger

	mu             sync.RWMutex
	lastActivity   time.Time
	lastStatus     *model.SlaveStatusReport
	lastReportSent time.Time

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newSession(clientID, remoteAddr string, conn *websocket.Conn, log *zap.Logger) *Session {
	now := time.Now()
	return &Session{
		ClientID:     clientID,
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		conn:         conn,
		queue:        newSessionQueue(),
		log:          log.With(zap.String("clientId", clientID)),
		lastActivity: now,
		closeCh:      make(chan struct{}),
	}
}

// Info returns a snapshot suitable for the boundary's ClientInfo list.
func (s *Session) Info() model.ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.ClientInfo{
		ClientID:      s.ClientID,
		RemoteAddress: s.RemoteAddr,
		ConnectedAt:   s.ConnectedAt,
		LastActivity:  s.lastActivity,
		SyncStatus:    s.lastStatus,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) recordStatus(report model.SlaveStatusReport) {
	s.mu.Lock()
	s.lastStatus = &report
	s.mu.Unlock()
}

// Status returns the last slave_status_report received, if any.
func (s *Session) Status() *model.SlaveStatusReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.queue.Close()
		close(s.closeCh)
		s.conn.Close()
	})
}
