package slave

import (
	"context"
	"sync"

	"github.com/obssync/engine/internal/protocol"
)

// outEntry is one pending slave→master message (slave_status_report or
// state_sync_request). The only coalescing is Enqueue's replacement of a
// still-queued slave_status_report.
type outEntry struct {
	kind    protocol.Kind
	target  string
	payload interface{}
}

// sessionOutQueue is an unbounded FIFO guarded by a mutex/cond, closed
// by DisconnectFromMaster and reopened by the next ConnectToMaster.
type sessionOutQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []outEntry
	closed bool
}

func newSessionOutQueue() *sessionOutQueue {
	q := &sessionOutQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an entry. A coalescing replace is applied for
// slave_status_report, matching the spec's "coalesced to at most once
// per five seconds" sender-side cadence — only the latest status is
// ever worth sending.
func (q *sessionOutQueue) Enqueue(kind protocol.Kind, target string, payload interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if kind == protocol.KindSlaveStatusReport {
		for i, e := range q.buf {
			if e.kind == protocol.KindSlaveStatusReport {
				q.buf[i] = outEntry{kind: kind, target: target, payload: payload}
				q.cond.Signal()
				return
			}
		}
	}
	q.buf = append(q.buf, outEntry{kind: kind, target: target, payload: payload})
	q.cond.Signal()
}

// Dequeue blocks until an entry is ready, the queue closes, or ctx is
// canceled.
func (q *sessionOutQueue) Dequeue(ctx context.Context) (outEntry, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		if ctx.Err() != nil {
			return outEntry{}, false
		}
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return outEntry{}, false
	}
	e := q.buf[0]
	q.buf = q.buf[1:]
	return e, true
}

// Close unblocks any pending Dequeue.
func (q *sessionOutQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
