package protocol

import (
	"encoding/base64"
	"fmt"

	"github.com/obssync/engine/internal/model"
)

// SourceUpdatePayload mirrors a source-level property change (currently
// enable/disable of a scene item — visibility toggles). Finer-grained
// input settings ride in FilterUpdatePayload-adjacent messages when the
// changed input is a filter target; arbitrary input settings changes use
// this same envelope with Settings populated.
type SourceUpdatePayload struct {
	Ref      model.SceneItemRef     `json:"ref"`
	Enabled  *bool                  `json:"enabled,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// TransformUpdatePayload carries a partial transform change for one scene
// item. The master fills every field from the event's transform
// (PatchFromTransform); the slave's Applier merges whichever fields are
// set onto its ExpectedState and onto the item's current OBS transform.
type TransformUpdatePayload struct {
	Ref   model.SceneItemRef   `json:"ref"`
	Patch model.TransformPatch `json:"patch"`
}

// SceneChangePayload announces a preview or program scene switch. Field
// is either "preview" or "program"; spec.md calls these out as distinct
// message purposes sharing one shape.
type SceneChangePayload struct {
	Field     string `json:"field"`
	SceneName string `json:"sceneName"`
}

// FilterUpdatePayload carries a filter settings or enabled-state change
// for one source. SceneName/SceneItemID are resolved by the translator
// from the source name alone, since the originating OBS event carries
// only sourceName. FilterEnabled is set only when the change came from
// an enable-state event; FilterSettings is set only when it came from a
// settings-changed event.
type FilterUpdatePayload struct {
	SceneName      string                 `json:"sceneName"`
	SceneItemID    int                    `json:"sceneItemId"`
	SourceName     string                 `json:"sourceName"`
	FilterName     string                 `json:"filterName"`
	FilterSettings map[string]interface{} `json:"filterSettings,omitempty"`
	FilterEnabled  *bool                  `json:"filterEnabled,omitempty"`
}

// ImageUpdatePayload carries the raw bytes of an image_* input's backing
// file, base64-framed. MaxImageBytes bounds the decoded size; callers
// must check Decode's error before writing the blob to disk.
type ImageUpdatePayload struct {
	Ref        model.SceneItemRef `json:"ref"`
	SourcePath string             `json:"sourcePath"`
	DataB64    string             `json:"dataB64"`
}

// MaxImageBytes is the recommended cap on a decoded image_update payload.
const MaxImageBytes = 16 * 1024 * 1024

// Decode base64-decodes DataB64 and enforces MaxImageBytes.
func (p ImageUpdatePayload) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.DataB64)
	if err != nil {
		return nil, fmt.Errorf("image_update: bad base64: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("image_update: %d bytes exceeds %d byte limit", len(data), MaxImageBytes)
	}
	return data, nil
}

// EncodeImagePayload base64-frames raw image bytes for transmission.
func EncodeImagePayload(ref model.SceneItemRef, sourcePath string, data []byte) ImageUpdatePayload {
	return ImageUpdatePayload{
		Ref:        ref,
		SourcePath: sourcePath,
		DataB64:    base64.StdEncoding.EncodeToString(data),
	}
}

// StateSyncPayload is a full-state snapshot used both for the initial
// sync on connect and for operator-triggered resync.
type StateSyncPayload struct {
	Scenes        []model.SceneSnapshot `json:"scenes"`
	PreviewScene  string                `json:"previewScene,omitempty"`
	ProgramScene  string                `json:"programScene"`
	SyncedTargets []model.TargetType    `json:"syncedTargets"`
}

// StateSyncRequestPayload is sent by a slave that wants a fresh snapshot
// (e.g. after a gap it cannot reconcile incrementally).
type StateSyncRequestPayload struct {
	Reason string `json:"reason,omitempty"`
}

// HeartbeatPayload carries no data of its own; its presence and cadence
// is the signal. Kept as a struct (rather than an empty payload) so a
// future field has somewhere to go without changing the envelope shape.
type HeartbeatPayload struct{}

// SlaveStatusReportPayload is the slave->master direction's self-reported
// sync status, coalesced to at most one per five seconds by the sender.
type SlaveStatusReportPayload struct {
	IsSynced      bool                 `json:"isSynced"`
	DesyncDetails []model.DesyncDetail `json:"desyncDetails"`
}
