package master

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/obssync/engine/internal/obssync"
	"github.com/obssync/engine/internal/protocol"
)

func TestTransportStopReturnsErrNotRunningWhenNeverStarted(t *testing.T) {
	t.Parallel()

	tr := NewTransport(zap.NewNop(), nil, nil, nil)
	if err := tr.Stop(); !errors.Is(err, obssync.ErrNotRunning) {
		t.Fatalf("Stop before Start: err = %v, want ErrNotRunning", err)
	}
}

func TestTransportStopDrainsQueuedMessages(t *testing.T) {
	t.Parallel()

	tr := NewTransport(zap.NewNop(), nil, nil, nil)
	if err := tr.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+tr.Addr()+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(tr.Sessions()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(tr.Sessions()) == 0 {
		t.Fatal("session never registered")
	}

	for i := 0; i < 5; i++ {
		tr.Broadcast(protocol.KindHeartbeat, "", protocol.HeartbeatPayload{}, "")
	}

	start := time.Now()
	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= drainTimeout {
		t.Errorf("Stop took %v, want well under the %v drain deadline when the session is actively draining", elapsed, drainTimeout)
	}
}
