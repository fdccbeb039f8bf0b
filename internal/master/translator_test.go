package master

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/protocol"
)

// fakeOBS implements sceneWalker with canned scene-graph data, so
// translator/snapshot logic can be exercised without a live OBS
// connection.
type fakeOBS struct {
	scenes       []string
	items        map[string][]model.SceneItemRef
	listErr      error
	itemsErr     map[string]error
	transform    model.Transform
	filters      map[string][]model.FilterSpec
	inputSet     map[string]map[string]interface{}
	program      string
	preview      string
	previewErr   error
}

func (f *fakeOBS) Subscribe(string, func(json.RawMessage)) {}

func (f *fakeOBS) ListScenes() ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.scenes, nil
}

func (f *fakeOBS) ListSceneItems(sceneName string) ([]model.SceneItemRef, error) {
	if err, ok := f.itemsErr[sceneName]; ok {
		return nil, err
	}
	return f.items[sceneName], nil
}

func (f *fakeOBS) GetCurrentProgramScene() (string, error) { return f.program, nil }

func (f *fakeOBS) GetCurrentPreviewScene() (string, error) {
	if f.previewErr != nil {
		return "", f.previewErr
	}
	return f.preview, nil
}

func (f *fakeOBS) GetTransform(model.SceneItemRef) (model.Transform, error) {
	return f.transform, nil
}

func (f *fakeOBS) ListFilters(sourceName string) ([]model.FilterSpec, error) {
	return f.filters[sourceName], nil
}

func (f *fakeOBS) GetInputSettings(inputName string) (map[string]interface{}, error) {
	return f.inputSet[inputName], nil
}

func newFakeOBS() *fakeOBS {
	return &fakeOBS{
		items:    make(map[string][]model.SceneItemRef),
		itemsErr: make(map[string]error),
		filters:  make(map[string][]model.FilterSpec),
		inputSet: make(map[string]map[string]interface{}),
	}
}

// attachSession wires a session with no real connection into a Transport
// so Broadcast can be exercised and its effect inspected via Dequeue.
func attachSession(t *Transport, clientID string) *Session {
	s := newSession(clientID, "test", nil, zap.NewNop())
	t.mu.Lock()
	t.sessions[clientID] = s
	t.mu.Unlock()
	t.publishSnapshot()
	return s
}

func TestResolveSceneItemFindsFirstMatch(t *testing.T) {
	t.Parallel()

	obsClient := newFakeOBS()
	obsClient.scenes = []string{"Scene A", "Scene B"}
	obsClient.items["Scene A"] = []model.SceneItemRef{{SceneName: "Scene A", SceneItemID: 1, SourceName: "Webcam"}}
	obsClient.items["Scene B"] = []model.SceneItemRef{{SceneName: "Scene B", SceneItemID: 2, SourceName: "Webcam"}}

	transport := NewTransport(zap.NewNop(), nil, nil, nil)
	tr := NewTranslator(obsClient, transport, zap.NewNop())

	ref, ok := tr.resolveSceneItem("Webcam")
	if !ok {
		t.Fatal("resolveSceneItem: ok = false, want true")
	}
	if ref.SceneName != "Scene A" || ref.SceneItemID != 1 {
		t.Fatalf("resolveSceneItem = %+v, want first match in Scene A", ref)
	}
}

func TestResolveSceneItemNoMatch(t *testing.T) {
	t.Parallel()

	obsClient := newFakeOBS()
	obsClient.scenes = []string{"Scene A"}
	obsClient.items["Scene A"] = []model.SceneItemRef{{SceneName: "Scene A", SceneItemID: 1, SourceName: "Webcam"}}

	transport := NewTransport(zap.NewNop(), nil, nil, nil)
	tr := NewTranslator(obsClient, transport, zap.NewNop())

	if _, ok := tr.resolveSceneItem("Missing"); ok {
		t.Fatal("resolveSceneItem: ok = true, want false for an unplaced source")
	}
}

func TestHandleFilterSettingsChangedResolvesSceneAndBroadcasts(t *testing.T) {
	t.Parallel()

	obsClient := newFakeOBS()
	obsClient.scenes = []string{"Scene A"}
	obsClient.items["Scene A"] = []model.SceneItemRef{{SceneName: "Scene A", SceneItemID: 5, SourceName: "Webcam"}}

	transport := NewTransport(zap.NewNop(), nil, nil, nil)
	session := attachSession(transport, "slave-1")
	tr := NewTranslator(obsClient, transport, zap.NewNop())

	data, _ := json.Marshal(map[string]interface{}{
		"sourceName":     "Webcam",
		"filterName":     "Blur",
		"filterSettings": map[string]interface{}{"radius": 5},
	})
	tr.handleFilterSettingsChanged(data)

	entry, ok := session.queue.Dequeue()
	if !ok {
		t.Fatal("expected a queued filter_update entry")
	}
	payload, ok := entry.payload.(protocol.FilterUpdatePayload)
	if !ok {
		t.Fatalf("payload type = %T, want protocol.FilterUpdatePayload", entry.payload)
	}
	if payload.SceneName != "Scene A" || payload.SceneItemID != 5 || payload.SourceName != "Webcam" || payload.FilterName != "Blur" {
		t.Fatalf("payload = %+v, want resolved scene/item plus source/filter name", payload)
	}
	if payload.FilterSettings["radius"] != float64(5) {
		t.Fatalf("FilterSettings = %+v, want radius=5", payload.FilterSettings)
	}
	if payload.FilterEnabled != nil {
		t.Fatal("FilterEnabled should be nil for a settings-only change")
	}
}

func TestHandleFilterSettingsChangedDropsUnresolvableSource(t *testing.T) {
	t.Parallel()

	obsClient := newFakeOBS()
	obsClient.scenes = []string{"Scene A"}

	transport := NewTransport(zap.NewNop(), nil, nil, nil)
	session := attachSession(transport, "slave-1")
	tr := NewTranslator(obsClient, transport, zap.NewNop())

	data, _ := json.Marshal(map[string]interface{}{
		"sourceName": "Ghost",
		"filterName": "Blur",
	})
	tr.handleFilterSettingsChanged(data)

	if session.queue.Len() != 0 {
		t.Fatal("unresolvable source should be dropped, not enqueued")
	}
}

func TestHandleFilterEnabledChangedCarriesEnabledFlag(t *testing.T) {
	t.Parallel()

	obsClient := newFakeOBS()
	obsClient.scenes = []string{"Scene A"}
	obsClient.items["Scene A"] = []model.SceneItemRef{{SceneName: "Scene A", SceneItemID: 9, SourceName: "Mic"}}

	transport := NewTransport(zap.NewNop(), nil, nil, nil)
	session := attachSession(transport, "slave-1")
	tr := NewTranslator(obsClient, transport, zap.NewNop())

	data, _ := json.Marshal(map[string]interface{}{
		"sourceName":    "Mic",
		"filterName":    "Noise Gate",
		"filterEnabled": false,
	})
	tr.handleFilterEnabledChanged(data)

	entry, ok := session.queue.Dequeue()
	if !ok {
		t.Fatal("expected a queued filter_update entry")
	}
	payload := entry.payload.(protocol.FilterUpdatePayload)
	if payload.FilterEnabled == nil || *payload.FilterEnabled != false {
		t.Fatalf("FilterEnabled = %v, want pointer to false", payload.FilterEnabled)
	}
	if payload.FilterSettings != nil {
		t.Fatal("FilterSettings should be nil for an enabled-only change")
	}
}
