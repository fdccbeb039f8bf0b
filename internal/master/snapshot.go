package master

import (
	"fmt"
	"os"

	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/protocol"
)

// SnapshotEngine builds a full-state StateSyncPayload by walking the
// local OBS instance's current scene graph. Used both for a newly
// connected slave's initial sync and for operator-triggered resync —
// the per-session and broadcast paths share this same builder.
type SnapshotEngine struct {
	obsClient sceneWalker
}

// NewSnapshotEngine constructs a SnapshotEngine over an already-connected
// OBS client.
func NewSnapshotEngine(obsClient sceneWalker) *SnapshotEngine {
	return &SnapshotEngine{obsClient: obsClient}
}

// Build walks every scene in OBS, in order, and returns a full snapshot.
func (se *SnapshotEngine) Build() (protocol.StateSyncPayload, error) {
	sceneNames, err := se.obsClient.ListScenes()
	if err != nil {
		return protocol.StateSyncPayload{}, fmt.Errorf("master: snapshot: list scenes: %w", err)
	}

	scenes := make([]model.SceneSnapshot, 0, len(sceneNames))
	for _, name := range sceneNames {
		scene, err := se.buildScene(name)
		if err != nil {
			return protocol.StateSyncPayload{}, fmt.Errorf("master: snapshot: scene %q: %w", name, err)
		}
		scenes = append(scenes, scene)
	}

	program, err := se.obsClient.GetCurrentProgramScene()
	if err != nil {
		return protocol.StateSyncPayload{}, fmt.Errorf("master: snapshot: program scene: %w", err)
	}

	// Preview scene only exists in studio mode; treat failure as "none"
	// rather than fatal to the whole snapshot.
	preview, _ := se.obsClient.GetCurrentPreviewScene()

	return protocol.StateSyncPayload{
		Scenes:       scenes,
		PreviewScene: preview,
		ProgramScene: program,
	}, nil
}

// buildScene resolves every item in a scene: transform, filters, then an
// image blob for any input whose settings carry a non-empty "file" path
// (the input kind is not checked). The Slave Applier replays them as
// transform, image, then filters.
func (se *SnapshotEngine) buildScene(sceneName string) (model.SceneSnapshot, error) {
	refs, err := se.obsClient.ListSceneItems(sceneName)
	if err != nil {
		return model.SceneSnapshot{}, fmt.Errorf("list scene items: %w", err)
	}

	items := make([]model.SceneItemSnapshot, 0, len(refs))
	for _, ref := range refs {
		transform, err := se.obsClient.GetTransform(ref)
		if err != nil {
			return model.SceneSnapshot{}, fmt.Errorf("get transform for %s: %w", ref.SourceName, err)
		}

		filterSpecs, err := se.obsClient.ListFilters(ref.SourceName)
		if err != nil {
			// Not every source kind supports filters; treat as empty
			// rather than failing the whole snapshot.
			filterSpecs = nil
		}

		item := model.SceneItemSnapshot{
			Ref:       ref,
			Transform: transform,
			Filters:   filterSpecs,
		}

		if settings, err := se.obsClient.GetInputSettings(ref.SourceName); err == nil {
			if path, ok := settings["file"].(string); ok && path != "" {
				blob := &model.ImageBlob{SourcePath: path}
				// A late-joining or resyncing slave needs the actual bytes,
				// not just the path — it may not share the master's
				// filesystem. A stat/read failure still ships the path so
				// the slave at least knows the source is an image input.
				if data, err := os.ReadFile(path); err == nil {
					blob.Bytes = data
				}
				item.ImageBlob = blob
			}
		}

		items = append(items, item)
	}

	return model.SceneSnapshot{Name: sceneName, Items: items}, nil
}
