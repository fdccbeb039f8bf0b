package master

import (
	"testing"
	"time"

	"github.com/obssync/engine/internal/protocol"
)

func TestSessionQueueCoalescesTransformUpdates(t *testing.T) {
	t.Parallel()

	q := newSessionQueue()
	q.Enqueue(protocol.KindTransformUpdate, "source", "first", "scene/1")
	res := q.Enqueue(protocol.KindTransformUpdate, "source", "second", "scene/1")
	if res != coalesced {
		t.Fatalf("second enqueue result = %v, want coalesced", res)
	}

	entry, ok := q.Dequeue()
	if !ok {
		t.Fatal("Dequeue returned false, want an entry")
	}
	if entry.payload != "second" {
		t.Fatalf("payload = %v, want %q (coalesced replacement)", entry.payload, "second")
	}
}

func TestSessionQueueDoesNotCoalesceSceneChange(t *testing.T) {
	t.Parallel()

	q := newSessionQueue()
	q.Enqueue(protocol.KindSceneChange, "program", "A", "")
	q.Enqueue(protocol.KindSceneChange, "program", "B", "")

	first, _ := q.Dequeue()
	second, _ := q.Dequeue()
	if first.payload != "A" || second.payload != "B" {
		t.Fatalf("got %v, %v; want both A and B delivered in order", first.payload, second.payload)
	}
}

func TestSessionQueueDropsOldestDroppableOnOverflow(t *testing.T) {
	t.Parallel()

	q := newSessionQueue()
	for i := 0; i < queueCapacity; i++ {
		q.Enqueue(protocol.KindSourceUpdate, "source", i, "")
	}
	res := q.Enqueue(protocol.KindSourceUpdate, "source", queueCapacity, "")
	if res != dropped {
		t.Fatalf("overflow enqueue result = %v, want dropped", res)
	}
	if q.DroppedCount() != 1 {
		t.Fatalf("DroppedCount = %d, want 1", q.DroppedCount())
	}
}

func TestSessionQueueNeverDropsSceneChangeOnOverflow(t *testing.T) {
	t.Parallel()

	q := newSessionQueue()
	for i := 0; i < queueCapacity; i++ {
		q.Enqueue(protocol.KindSourceUpdate, "source", i, "")
	}
	res := q.Enqueue(protocol.KindSceneChange, "program", "overflow-scene", "")
	if res != enqueued {
		t.Fatalf("scene_change over capacity result = %v, want enqueued (never dropped)", res)
	}
	if q.OverflowDuration() <= 0 {
		t.Fatal("expected OverflowDuration to be tracked once over capacity")
	}
}

func TestSessionQueueCloseUnblocksDequeue(t *testing.T) {
	t.Parallel()

	q := newSessionQueue()
	done := make(chan struct{})
	go func() {
		_, ok := q.Dequeue()
		if ok {
			t.Error("Dequeue after Close returned ok=true, want false")
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not unblock after Close")
	}
}
