package master

import (
	"encoding/json"
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obs"
	"github.com/obssync/engine/internal/protocol"
)

// sceneWalker is the subset of *obs.Client the master package needs to
// subscribe to events and resolve a source's placement. Narrowed to an
// interface (rather than the concrete client) so translator/snapshot
// logic can be exercised against a fake OBS instance in tests.
type sceneWalker interface {
	Subscribe(eventType string, handler func(data json.RawMessage))
	ListScenes() ([]string, error)
	ListSceneItems(sceneName string) ([]model.SceneItemRef, error)
	GetCurrentProgramScene() (string, error)
	GetCurrentPreviewScene() (string, error)
	GetTransform(ref model.SceneItemRef) (model.Transform, error)
	ListFilters(sourceName string) ([]model.FilterSpec, error)
	GetInputSettings(inputName string) (map[string]interface{}, error)
}

// Translator subscribes to local OBS events and fans out the
// corresponding sync messages to every connected slave, gated by the
// current SyncTargetSet. The target-set check happens before the
// message is ever constructed — the drop-before-enqueue invariant — so
// a filtered-out event costs nothing beyond the subscription callback.
type Translator struct {
	obsClient sceneWalker
	transport *Transport
	log       *zap.Logger

	targets atomic.Value // model.SyncTargetSet
}

// NewTranslator wires a Translator between an already-constructed OBS
// client and master Transport. Call Start once both are ready.
func NewTranslator(obsClient sceneWalker, transport *Transport, log *zap.Logger) *Translator {
	if log == nil {
		log = zap.NewNop()
	}
	tr := &Translator{obsClient: obsClient, transport: transport, log: log.Named("master.translator")}
	tr.targets.Store(model.DefaultSyncTargets())
	return tr
}

// SetSyncTargets atomically replaces the active target filter.
func (tr *Translator) SetSyncTargets(set model.SyncTargetSet) {
	tr.targets.Store(set.Clone())
}

// SyncTargets returns the active target filter.
func (tr *Translator) SyncTargets() model.SyncTargetSet {
	return tr.targets.Load().(model.SyncTargetSet)
}

func (tr *Translator) allows(t model.TargetType) bool {
	return tr.SyncTargets().Contains(t)
}

// Start subscribes to every OBS event this system propagates.
func (tr *Translator) Start() {
	tr.obsClient.Subscribe(obs.EventSceneItemTransformChanged, tr.handleTransformChanged)
	tr.obsClient.Subscribe(obs.EventSceneItemEnableStateChanged, tr.handleEnableStateChanged)
	tr.obsClient.Subscribe(obs.EventCurrentProgramSceneChanged, tr.handleProgramSceneChanged)
	tr.obsClient.Subscribe(obs.EventCurrentPreviewSceneChanged, tr.handlePreviewSceneChanged)
	tr.obsClient.Subscribe(obs.EventInputSettingsChanged, tr.handleInputSettingsChanged)
	tr.obsClient.Subscribe(obs.EventSourceFilterSettingsChanged, tr.handleFilterSettingsChanged)
	tr.obsClient.Subscribe(obs.EventSourceFilterEnableStateChanged, tr.handleFilterEnabledChanged)
}

func (tr *Translator) handleTransformChanged(data json.RawMessage) {
	if !tr.allows(model.TargetSource) {
		return
	}
	var ev struct {
		SceneName          string          `json:"sceneName"`
		SceneItemID        int             `json:"sceneItemId"`
		SceneItemTransform model.Transform `json:"sceneItemTransform"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		tr.log.Warn("malformed SceneItemTransformChanged", zap.Error(err))
		return
	}

	ref := model.SceneItemRef{SceneName: ev.SceneName, SceneItemID: ev.SceneItemID}
	patch := model.PatchFromTransform(ev.SceneItemTransform)
	payload := protocol.TransformUpdatePayload{Ref: ref, Patch: patch}
	coalesceKey := ev.SceneName + "/" + strconv.Itoa(ev.SceneItemID)

	tr.transport.Broadcast(protocol.KindTransformUpdate, string(model.TargetSource), payload, coalesceKey)
}

func (tr *Translator) handleEnableStateChanged(data json.RawMessage) {
	if !tr.allows(model.TargetSource) {
		return
	}
	var ev struct {
		SceneName        string `json:"sceneName"`
		SceneItemID      int    `json:"sceneItemId"`
		SceneItemEnabled bool   `json:"sceneItemEnabled"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		tr.log.Warn("malformed SceneItemEnableStateChanged", zap.Error(err))
		return
	}

	ref := model.SceneItemRef{SceneName: ev.SceneName, SceneItemID: ev.SceneItemID}
	payload := protocol.SourceUpdatePayload{Ref: ref, Enabled: &ev.SceneItemEnabled}
	tr.transport.Broadcast(protocol.KindSourceUpdate, string(model.TargetSource), payload, "")
}

func (tr *Translator) handleProgramSceneChanged(data json.RawMessage) {
	if !tr.allows(model.TargetProgram) {
		return
	}
	var ev struct {
		SceneName string `json:"sceneName"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		tr.log.Warn("malformed CurrentProgramSceneChanged", zap.Error(err))
		return
	}
	payload := protocol.SceneChangePayload{Field: "program", SceneName: ev.SceneName}
	tr.transport.Broadcast(protocol.KindSceneChange, string(model.TargetProgram), payload, "")
}

func (tr *Translator) handlePreviewSceneChanged(data json.RawMessage) {
	if !tr.allows(model.TargetPreview) {
		return
	}
	var ev struct {
		SceneName string `json:"sceneName"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		tr.log.Warn("malformed CurrentPreviewSceneChanged", zap.Error(err))
		return
	}
	payload := protocol.SceneChangePayload{Field: "preview", SceneName: ev.SceneName}
	tr.transport.Broadcast(protocol.KindSceneChange, string(model.TargetPreview), payload, "")
}

func (tr *Translator) handleInputSettingsChanged(data json.RawMessage) {
	if !tr.allows(model.TargetSource) {
		return
	}
	var ev struct {
		InputName     string                 `json:"inputName"`
		InputSettings map[string]interface{} `json:"inputSettings"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		tr.log.Warn("malformed InputSettingsChanged", zap.Error(err))
		return
	}

	if path, ok := ev.InputSettings["file"].(string); ok && path != "" {
		tr.emitImageUpdate(ev.InputName, path)
		return
	}

	ref := model.SceneItemRef{SourceName: ev.InputName}
	payload := protocol.SourceUpdatePayload{Ref: ref, Settings: ev.InputSettings}
	tr.transport.Broadcast(protocol.KindSourceUpdate, string(model.TargetSource), payload, "")
}

// emitImageUpdate reads an image_* input's backing file and broadcasts
// its bytes. Read failures are logged, not fatal — the slave keeps
// whatever image it last had.
func (tr *Translator) emitImageUpdate(inputName, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		tr.log.Warn("could not read image source file", zap.String("input", inputName), zap.String("path", path), zap.Error(err))
		return
	}
	ref := model.SceneItemRef{SourceName: inputName}
	payload := protocol.EncodeImagePayload(ref, path, data)
	tr.transport.Broadcast(protocol.KindImageUpdate, string(model.TargetSource), payload, "")
}

// resolveSceneItem finds the first (sceneName, sceneItemId) hosting the
// given source, walking every scene the same way SnapshotEngine.buildScene
// does. A filter event only ever carries sourceName, so this is the only
// way to recover the ref the wire payload requires.
func (tr *Translator) resolveSceneItem(sourceName string) (model.SceneItemRef, bool) {
	sceneNames, err := tr.obsClient.ListScenes()
	if err != nil {
		tr.log.Warn("could not list scenes for filter scene resolution", zap.Error(err))
		return model.SceneItemRef{}, false
	}
	for _, sceneName := range sceneNames {
		refs, err := tr.obsClient.ListSceneItems(sceneName)
		if err != nil {
			tr.log.Warn("could not list scene items for filter scene resolution", zap.String("scene", sceneName), zap.Error(err))
			continue
		}
		for _, ref := range refs {
			if ref.SourceName == sourceName {
				return ref, true
			}
		}
	}
	return model.SceneItemRef{}, false
}

func (tr *Translator) handleFilterSettingsChanged(data json.RawMessage) {
	if !tr.allows(model.TargetSource) {
		return
	}
	var ev struct {
		SourceName     string                 `json:"sourceName"`
		FilterName     string                 `json:"filterName"`
		FilterSettings map[string]interface{} `json:"filterSettings"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		tr.log.Warn("malformed SourceFilterSettingsChanged", zap.Error(err))
		return
	}
	ref, ok := tr.resolveSceneItem(ev.SourceName)
	if !ok {
		tr.log.Warn("dropping filter update: source not found in any scene", zap.String("source", ev.SourceName))
		return
	}
	payload := protocol.FilterUpdatePayload{
		SceneName:      ref.SceneName,
		SceneItemID:    ref.SceneItemID,
		SourceName:     ev.SourceName,
		FilterName:     ev.FilterName,
		FilterSettings: ev.FilterSettings,
	}
	tr.transport.Broadcast(protocol.KindFilterUpdate, string(model.TargetSource), payload, "")
}

func (tr *Translator) handleFilterEnabledChanged(data json.RawMessage) {
	if !tr.allows(model.TargetSource) {
		return
	}
	var ev struct {
		SourceName    string `json:"sourceName"`
		FilterName    string `json:"filterName"`
		FilterEnabled bool   `json:"filterEnabled"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		tr.log.Warn("malformed SourceFilterEnableStateChanged", zap.Error(err))
		return
	}
	ref, ok := tr.resolveSceneItem(ev.SourceName)
	if !ok {
		tr.log.Warn("dropping filter update: source not found in any scene", zap.String("source", ev.SourceName))
		return
	}
	payload := protocol.FilterUpdatePayload{
		SceneName:     ref.SceneName,
		SceneItemID:   ref.SceneItemID,
		SourceName:    ev.SourceName,
		FilterName:    ev.FilterName,
		FilterEnabled: &ev.FilterEnabled,
	}
	tr.transport.Broadcast(protocol.KindFilterUpdate, string(model.TargetSource), payload, "")
}
