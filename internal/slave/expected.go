// Package slave implements the slave role: it dials a master, applies
// incoming sync messages to the local OBS instance, and periodically
// compares local OBS state against what it was last told to expect,
// raising desync alerts when the two disagree.
package slave

import (
	"sync"

	"github.com/obssync/engine/internal/model"
)

// ExpectedState is the slave's belief about what local OBS state should
// look like, built from the master's messages. Per the concurrency
// model, the Applier is its single writer; the Drift Detector is its
// single reader (via Snapshot, which takes a read lock and copies).
type ExpectedState struct {
	mu           sync.RWMutex
	scenes       map[string]model.SceneSnapshot
	previewScene string
	programScene string
}

// NewExpectedState constructs an empty ExpectedState.
func NewExpectedState() *ExpectedState {
	return &ExpectedState{scenes: make(map[string]model.SceneSnapshot)}
}

// ReplaceAll overwrites the entire state, used when a state_sync arrives.
func (es *ExpectedState) ReplaceAll(scenes []model.SceneSnapshot, preview, program string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.scenes = make(map[string]model.SceneSnapshot, len(scenes))
	for _, s := range scenes {
		es.scenes[s.Name] = s
	}
	es.previewScene = preview
	es.programScene = program
}

// SetProgramScene updates the believed active program scene.
func (es *ExpectedState) SetProgramScene(name string) {
	es.mu.Lock()
	es.programScene = name
	es.mu.Unlock()
}

// SetPreviewScene updates the believed active preview scene.
func (es *ExpectedState) SetPreviewScene(name string) {
	es.mu.Lock()
	es.previewScene = name
	es.mu.Unlock()
}

// UpdateTransform merges a patch onto the believed transform of one
// scene item, creating the item if it wasn't already known.
func (es *ExpectedState) UpdateTransform(ref model.SceneItemRef, patch model.TransformPatch) {
	es.mu.Lock()
	defer es.mu.Unlock()
	scene := es.scenes[ref.SceneName]
	scene.Name = ref.SceneName
	idx := findItem(scene.Items, ref)
	if idx < 0 {
		scene.Items = append(scene.Items, model.SceneItemSnapshot{Ref: ref})
		idx = len(scene.Items) - 1
	}
	scene.Items[idx].Transform = patch.Merge(scene.Items[idx].Transform)
	es.scenes[ref.SceneName] = scene
}

// UpdateFilter upserts a filter spec on a named source across every
// scene the source appears in (a source can be placed in multiple
// scenes; its filters are a property of the source, not the placement).
func (es *ExpectedState) UpdateFilter(sourceName string, filter model.FilterSpec) {
	es.mu.Lock()
	defer es.mu.Unlock()
	for sceneName, scene := range es.scenes {
		changed := false
		for i, item := range scene.Items {
			if item.Ref.SourceName != sourceName {
				continue
			}
			scene.Items[i].Filters = upsertFilter(item.Filters, filter)
			changed = true
		}
		if changed {
			es.scenes[sceneName] = scene
		}
	}
}

// MergeFilter applies a partial filter change (settings and/or enabled,
// either of which may be absent) onto whatever spec is already believed
// for sourceName/filterName, so a settings-only update doesn't clobber a
// previously known enabled flag and vice versa. A source with no prior
// record of the filter starts from a zero FilterSpec.
func (es *ExpectedState) MergeFilter(sourceName, filterName string, settings map[string]interface{}, enabled *bool) model.FilterSpec {
	es.mu.Lock()
	defer es.mu.Unlock()

	merged := model.FilterSpec{Name: filterName}
	for _, scene := range es.scenes {
		for _, item := range scene.Items {
			if item.Ref.SourceName != sourceName {
				continue
			}
			for _, f := range item.Filters {
				if f.Name == filterName {
					merged = f
				}
			}
		}
	}
	if settings != nil {
		merged.Settings = settings
	}
	if enabled != nil {
		merged.Enabled = *enabled
	}

	for sceneName, scene := range es.scenes {
		changed := false
		for i, item := range scene.Items {
			if item.Ref.SourceName != sourceName {
				continue
			}
			scene.Items[i].Filters = upsertFilter(item.Filters, merged)
			changed = true
		}
		if changed {
			es.scenes[sceneName] = scene
		}
	}
	return merged
}

// Snapshot returns a shallow copy of the believed state for the Drift
// Detector to compare against live OBS state.
func (es *ExpectedState) Snapshot() (scenes map[string]model.SceneSnapshot, preview, program string) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	out := make(map[string]model.SceneSnapshot, len(es.scenes))
	for k, v := range es.scenes {
		out[k] = v
	}
	return out, es.previewScene, es.programScene
}

func findItem(items []model.SceneItemSnapshot, ref model.SceneItemRef) int {
	for i, it := range items {
		if it.Ref.SourceName == ref.SourceName {
			return i
		}
	}
	return -1
}

func upsertFilter(filters []model.FilterSpec, f model.FilterSpec) []model.FilterSpec {
	for i, existing := range filters {
		if existing.Name == f.Name {
			filters[i] = f
			return filters
		}
	}
	return append(filters, f)
}
