package protocol

import (
	"testing"

	"github.com/obssync/engine/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	payload := SceneChangePayload{Field: "program", SceneName: "Gameplay"}
	frame, err := Encode(KindSceneChange, string(model.TargetProgram), payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != KindSceneChange {
		t.Fatalf("Type = %q, want %q", env.Type, KindSceneChange)
	}

	var got SceneChangePayload
	if err := env.DecodePayload(&got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got != payload {
		t.Fatalf("payload = %+v, want %+v", got, payload)
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"timestamp":1767225600000,"payload":{}}`))
	if err == nil {
		t.Fatal("expected error for envelope missing type")
	}
}

func TestKindCoalescableAndDroppable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind           Kind
		coalescable    bool
		droppable      bool
	}{
		{KindTransformUpdate, true, true},
		{KindSceneChange, false, false},
		{KindFilterUpdate, false, false},
		{KindImageUpdate, false, false},
		{KindStateSync, false, false},
		{KindSourceUpdate, false, true},
		{KindHeartbeat, false, true},
	}

	for _, tc := range tests {
		if got := tc.kind.Coalescable(); got != tc.coalescable {
			t.Errorf("%s.Coalescable() = %v, want %v", tc.kind, got, tc.coalescable)
		}
		if got := tc.kind.DroppableOnOverflow(); got != tc.droppable {
			t.Errorf("%s.DroppableOnOverflow() = %v, want %v", tc.kind, got, tc.droppable)
		}
	}
}

func TestImageUpdatePayloadDecode(t *testing.T) {
	t.Parallel()

	ref := model.SceneItemRef{SceneName: "Scene", SceneItemID: 1, SourceName: "Logo"}
	raw := []byte("fake-png-bytes")
	p := EncodeImagePayload(ref, "/tmp/logo.png", raw)

	decoded, err := p.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("decoded = %q, want %q", decoded, raw)
	}
}

func TestImageUpdatePayloadDecodeTooLarge(t *testing.T) {
	t.Parallel()

	big := make([]byte, MaxImageBytes+1)
	p := EncodeImagePayload(model.SceneItemRef{}, "/tmp/big.png", big)

	if _, err := p.Decode(); err == nil {
		t.Fatal("expected error for oversized image payload")
	}
}
