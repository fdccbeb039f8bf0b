// Package model holds the data types shared across the OBS client, the
// wire protocol, the master and slave engines, and the shell boundary.
// Keeping them in one leaf package avoids import cycles between those
// packages.
package model

import "time"

// TargetType is one of the three event classes an operator can gate
// propagation on.
type TargetType string

const (
	TargetSource  TargetType = "source"
	TargetPreview TargetType = "preview"
	TargetProgram TargetType = "program"
)

// SyncTargetSet is the master-side filter controlling which event classes
// are translated into sync messages. The zero value is not usable; use
// DefaultSyncTargets or NewSyncTargetSet.
type SyncTargetSet map[TargetType]struct{}

// DefaultSyncTargets returns the default filter: {Source, Program}.
func DefaultSyncTargets() SyncTargetSet {
	return NewSyncTargetSet(TargetSource, TargetProgram)
}

// NewSyncTargetSet builds a set from the given members.
func NewSyncTargetSet(targets ...TargetType) SyncTargetSet {
	s := make(SyncTargetSet, len(targets))
	for _, t := range targets {
		s[t] = struct{}{}
	}
	return s
}

// Contains reports whether t is in the set.
func (s SyncTargetSet) Contains(t TargetType) bool {
	if s == nil {
		return false
	}
	_, ok := s[t]
	return ok
}

// Clone returns an independent copy, safe to hand to a reader while the
// original is mutated by its single writer.
func (s SyncTargetSet) Clone() SyncTargetSet {
	out := make(SyncTargetSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Slice returns the set's members in a stable (sorted) order.
func (s SyncTargetSet) Slice() []TargetType {
	order := []TargetType{TargetSource, TargetPreview, TargetProgram}
	out := make([]TargetType, 0, len(s))
	for _, t := range order {
		if s.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

// SceneItemRef identifies a placed source instance. SceneItemID is the
// opaque id assigned by the local OBS instance that produced the ref; it
// is NOT portable to another OBS instance. A slave resolves an inbound
// ref by (SceneName, SourceName) and substitutes its own local id.
type SceneItemRef struct {
	SceneName   string `json:"sceneName"`
	SceneItemID int    `json:"sceneItemId"`
	SourceName  string `json:"sourceName"`
}

// Transform holds the geometric parameters of a scene item.
type Transform struct {
	PositionX       float64 `json:"positionX"`
	PositionY       float64 `json:"positionY"`
	Rotation        float64 `json:"rotation"`
	ScaleX          float64 `json:"scaleX"`
	ScaleY          float64 `json:"scaleY"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Alignment       int     `json:"alignment"`
	BoundsType      string  `json:"boundsType"`
	BoundsAlignment int     `json:"boundsAlignment"`
	BoundsWidth     float64 `json:"boundsWidth"`
	BoundsHeight    float64 `json:"boundsHeight"`
}

// numericFieldDiffs returns the names of numeric fields that differ by
// more than tolerance, plus whether the discrete fields (alignment,
// boundsType, boundsAlignment) differ at all.
func (t Transform) numericFieldDiffs(other Transform, tolerance float64) []string {
	var diffs []string
	check := func(name string, a, b float64) {
		if absFloat(a-b) > tolerance {
			diffs = append(diffs, name)
		}
	}
	check("positionX", t.PositionX, other.PositionX)
	check("positionY", t.PositionY, other.PositionY)
	check("rotation", t.Rotation, other.Rotation)
	check("scaleX", t.ScaleX, other.ScaleX)
	check("scaleY", t.ScaleY, other.ScaleY)
	check("width", t.Width, other.Width)
	check("height", t.Height, other.Height)
	check("boundsWidth", t.BoundsWidth, other.BoundsWidth)
	check("boundsHeight", t.BoundsHeight, other.BoundsHeight)
	if t.Alignment != other.Alignment {
		diffs = append(diffs, "alignment")
	}
	if t.BoundsType != other.BoundsType {
		diffs = append(diffs, "boundsType")
	}
	if t.BoundsAlignment != other.BoundsAlignment {
		diffs = append(diffs, "boundsAlignment")
	}
	return diffs
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// WithinTolerance reports whether t and other agree within tolerance on
// every numeric field and exactly on every discrete field. The second
// return value names the differing fields (nil when ok is true).
func (t Transform) WithinTolerance(other Transform, tolerance float64) (ok bool, diffFields []string) {
	diffs := t.numericFieldDiffs(other, tolerance)
	return len(diffs) == 0, diffs
}

// TransformPatch carries only the fields a transform_update message
// actually set; nil fields are left untouched by Merge.
type TransformPatch struct {
	PositionX       *float64 `json:"positionX,omitempty"`
	PositionY       *float64 `json:"positionY,omitempty"`
	Rotation        *float64 `json:"rotation,omitempty"`
	ScaleX          *float64 `json:"scaleX,omitempty"`
	ScaleY          *float64 `json:"scaleY,omitempty"`
	Width           *float64 `json:"width,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	Alignment       *int     `json:"alignment,omitempty"`
	BoundsType      *string  `json:"boundsType,omitempty"`
	BoundsAlignment *int     `json:"boundsAlignment,omitempty"`
	BoundsWidth     *float64 `json:"boundsWidth,omitempty"`
	BoundsHeight    *float64 `json:"boundsHeight,omitempty"`
}

// PatchFromTransform builds a fully-populated patch (every field set) —
// used by the master to describe a complete transform in one message.
func PatchFromTransform(t Transform) TransformPatch {
	return TransformPatch{
		PositionX: &t.PositionX, PositionY: &t.PositionY, Rotation: &t.Rotation,
		ScaleX: &t.ScaleX, ScaleY: &t.ScaleY, Width: &t.Width, Height: &t.Height,
		Alignment: &t.Alignment, BoundsType: &t.BoundsType,
		BoundsAlignment: &t.BoundsAlignment, BoundsWidth: &t.BoundsWidth, BoundsHeight: &t.BoundsHeight,
	}
}

// Merge applies non-nil fields from p onto base and returns the result.
func (p TransformPatch) Merge(base Transform) Transform {
	out := base
	if p.PositionX != nil {
		out.PositionX = *p.PositionX
	}
	if p.PositionY != nil {
		out.PositionY = *p.PositionY
	}
	if p.Rotation != nil {
		out.Rotation = *p.Rotation
	}
	if p.ScaleX != nil {
		out.ScaleX = *p.ScaleX
	}
	if p.ScaleY != nil {
		out.ScaleY = *p.ScaleY
	}
	if p.Width != nil {
		out.Width = *p.Width
	}
	if p.Height != nil {
		out.Height = *p.Height
	}
	if p.Alignment != nil {
		out.Alignment = *p.Alignment
	}
	if p.BoundsType != nil {
		out.BoundsType = *p.BoundsType
	}
	if p.BoundsAlignment != nil {
		out.BoundsAlignment = *p.BoundsAlignment
	}
	if p.BoundsWidth != nil {
		out.BoundsWidth = *p.BoundsWidth
	}
	if p.BoundsHeight != nil {
		out.BoundsHeight = *p.BoundsHeight
	}
	return out
}

// FilterSpec describes one source filter. Settings is an opaque,
// structured blob — OBS filter settings schemas vary per filter kind, so
// this is intentionally a dynamic map rather than a typed struct (see
// DESIGN.md "dynamic event payloads").
type FilterSpec struct {
	Name     string                 `json:"name"`
	Enabled  bool                   `json:"enabled"`
	Settings map[string]interface{} `json:"settings"`
}

// ImageBlob is the raw content of an image_* input's backing file. Bytes
// marshals as base64 via encoding/json's native []byte handling, same as
// ImageUpdatePayload.Data.
type ImageBlob struct {
	SourcePath string `json:"sourcePath"`
	Bytes      []byte `json:"bytes,omitempty"`
}

// SceneItemSnapshot is one entry of a SceneSnapshot, in OBS order.
type SceneItemSnapshot struct {
	Ref        SceneItemRef `json:"ref"`
	SourceType string       `json:"sourceType"`
	Transform  Transform    `json:"transform"`
	Filters    []FilterSpec `json:"filters"`
	ImageBlob  *ImageBlob   `json:"imageBlob,omitempty"`
}

// SceneSnapshot is a full description of one scene's items, in the order
// the apply pass must walk them.
type SceneSnapshot struct {
	Name  string              `json:"name"`
	Items []SceneItemSnapshot `json:"items"`
}

// Mode selects which role this process is currently acting as.
type Mode string

const (
	ModeMaster Mode = "master"
	ModeSlave  Mode = "slave"
)

// ClientInfo describes one master-side ClientSession for the shell
// boundary: clientId, remote address, timestamps, and the slave's last
// reported sync status (nil until the first slave_status_report arrives).
type ClientInfo struct {
	ClientID      string             `json:"clientId"`
	RemoteAddress string             `json:"remoteAddress"`
	ConnectedAt   time.Time          `json:"connectedAt"`
	LastActivity  time.Time          `json:"lastActivity"`
	SyncStatus    *SlaveStatusReport `json:"syncStatus,omitempty"`
}

// SlaveStatusReport summarizes a slave's self-assessed sync state.
type SlaveStatusReport struct {
	IsSynced      bool           `json:"isSynced"`
	DesyncDetails []DesyncDetail `json:"desyncDetails"`
}

// SlaveStatus pairs a SlaveStatusReport with the clientId it came from,
// for the master-side get_slave_statuses() boundary command.
type SlaveStatus struct {
	ClientID string `json:"clientId"`
	SlaveStatusReport
}

// DesyncDetail is one observed disagreement between expected and actual
// local OBS state.
type DesyncDetail struct {
	Category   string `json:"category"`
	SceneName  string `json:"sceneName"`
	SourceName string `json:"sourceName"`
	Description string `json:"description"`
	Severity   string `json:"severity"` // "Warning" | "Critical"
}

const (
	SeverityWarning  = "Warning"
	SeverityCritical = "Critical"
)

// DesyncAlert is the shell-facing event raised by the slave's Drift
// Detector (or, for sustained apply failures, the Applier).
type DesyncAlert struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SceneName  string    `json:"sceneName"`
	SourceName string    `json:"sourceName"`
	Message    string    `json:"message"`
	Severity   string    `json:"severity"`
}

// ReconnectionStatus (slave-side) tracks the Slave Transport's reconnect
// supervisor.
type ReconnectionStatus struct {
	IsReconnecting bool          `json:"isReconnecting"`
	AttemptCount   int           `json:"attemptCount"`
	MaxAttempts    int           `json:"maxAttempts"`
	LastError      string        `json:"lastError,omitempty"`
	NextDelay      time.Duration `json:"nextDelay"`
}

// OBSConnectionConfig is the input to connect_obs().
type OBSConnectionConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password,omitempty"`
}

// OBSConnectionStatus is the output of get_obs_status().
type OBSConnectionStatus struct {
	Connected  bool   `json:"connected"`
	OBSVersion string `json:"obsVersion,omitempty"`
	WSVersion  string `json:"wsVersion,omitempty"`
}

// OBSSource is one entry of get_obs_sources().
type OBSSource struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// PerfAggregate is the output of get_performance_metrics().
type PerfAggregate struct {
	AverageLatencyMs float64 `json:"averageLatencyMs"`
	MessagesPerSec   float64 `json:"messagesPerSecond"`
	TotalMessages    int64   `json:"totalMessages"`
	TotalBytes       int64   `json:"totalBytes"`
}
