// Package protocol defines the wire format exchanged between a master and
// its slaves: a flat JSON envelope carrying a typed payload, modeled after
// the teacher's tunnel envelope (internal/tunnel/envelope.go) but without
// its HMAC/nonce signing layer — master↔slave authentication is explicitly
// out of scope for this system.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the payload carried by an Envelope.
type Kind string

const (
	KindSourceUpdate       Kind = "source_update"
	KindTransformUpdate    Kind = "transform_update"
	KindSceneChange        Kind = "scene_change"
	KindFilterUpdate       Kind = "filter_update"
	KindImageUpdate        Kind = "image_update"
	KindStateSync          Kind = "state_sync"
	KindStateSyncRequest   Kind = "state_sync_request"
	KindHeartbeat          Kind = "heartbeat"
	KindSlaveStatusReport  Kind = "slave_status_report"
)

// Envelope is the message wrapper exchanged over the master↔slave
// WebSocket connection. Payload is kept as a raw JSON field so a receiver
// can dispatch on Kind before decoding the specific payload type, the way
// the teacher's tunnel package dispatches on op code before decoding `d`.
// Timestamp is milliseconds since the Unix epoch, not an RFC3339 string —
// spec.md §4.B fixes the wire shape as an integer so a non-Go peer never
// has to parse a Go-flavored time string.
type Envelope struct {
	Type      Kind            `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Target    string          `json:"targetType,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// TimestampTime converts Timestamp back into a time.Time for latency
// computation.
func (e Envelope) TimestampTime() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Encode marshals kind and payload into a ready-to-send Envelope frame.
func Encode(kind Kind, target string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", kind, err)
	}
	env := Envelope{
		Type:      kind,
		Timestamp: time.Now().UnixMilli(),
		Target:    target,
		Payload:   raw,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope: %w", err)
	}
	return out, nil
}

// Decode unmarshals a frame's envelope without touching its payload.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: malformed envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: envelope missing type")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope's payload into dst.
func (e Envelope) DecodePayload(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("protocol: malformed %s payload: %w", e.Type, err)
	}
	return nil
}

// Coalescable reports whether messages of this kind may be replaced
// in-place in a session's outbound queue. Per the queue's invariant,
// scene/filter/image messages are never coalesced or dropped.
func (k Kind) Coalescable() bool {
	return k == KindTransformUpdate
}

// DroppableOnOverflow reports whether a queued message of this kind may be
// silently dropped when the queue is full and no coalescing target exists.
func (k Kind) DroppableOnOverflow() bool {
	switch k {
	case KindSceneChange, KindFilterUpdate, KindImageUpdate, KindStateSync:
		return false
	default:
		return true
	}
}
