package slave

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obs"
	"github.com/obssync/engine/internal/obssync"
	"github.com/obssync/engine/internal/protocol"
)

// consecutiveFailureThreshold is how many apply failures in a row raise
// a visible alert, without terminating the session.
const consecutiveFailureThreshold = 5

var stableNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// AlertFunc is invoked when the Applier wants to surface a desync-alert
// style event to the shell (currently only for the sustained-failure
// condition; the Drift Detector raises the rest).
type AlertFunc func(model.DesyncAlert)

// Applier consumes inbound envelopes strictly in arrival order and
// drives the local OBS Client, updating ExpectedState first so the
// Drift Detector's next tick already reflects the just-applied change.
type Applier struct {
	obsClient *obs.Client
	expected  *ExpectedState
	log       *zap.Logger
	tempDir   string
	onAlert   AlertFunc

	itemCacheMu sync.Mutex
	itemCache   map[string]int // "sceneName/sourceName" -> sceneItemId

	consecutiveFailures int64
}

// NewApplier constructs an Applier. tempDir is the base directory images
// stage under (an "obs-sync" subdirectory is created lazily beneath it).
func NewApplier(obsClient *obs.Client, expected *ExpectedState, tempDir string, log *zap.Logger, onAlert AlertFunc) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{
		obsClient: obsClient,
		expected:  expected,
		log:       log.Named("slave.applier"),
		tempDir:   filepath.Join(tempDir, "obs-sync"),
		onAlert:   onAlert,
		itemCache: make(map[string]int),
	}
}

// Apply dispatches one decoded envelope to the matching handler.
func (a *Applier) Apply(env protocol.Envelope) {
	var err error
	switch env.Type {
	case protocol.KindSceneChange:
		err = a.applySceneChange(env)
	case protocol.KindTransformUpdate:
		err = a.applyTransformUpdate(env)
	case protocol.KindSourceUpdate:
		err = a.applySourceUpdate(env)
	case protocol.KindFilterUpdate:
		err = a.applyFilterUpdate(env)
	case protocol.KindImageUpdate:
		err = a.applyImageUpdate(env)
	case protocol.KindStateSync:
		err = a.applyStateSync(env)
	default:
		return
	}

	if err != nil {
		a.recordFailure(err)
	} else {
		atomic.StoreInt64(&a.consecutiveFailures, 0)
	}
}

func (a *Applier) recordFailure(err error) {
	a.log.Warn("apply failed", zap.Error(err))
	n := atomic.AddInt64(&a.consecutiveFailures, 1)
	if n == consecutiveFailureThreshold && a.onAlert != nil {
		a.onAlert(model.DesyncAlert{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("%d consecutive apply failures: %v", n, err),
			Severity:  model.SeverityCritical,
		})
	}
}

func (a *Applier) applySceneChange(env protocol.Envelope) error {
	var p protocol.SceneChangePayload
	if err := env.DecodePayload(&p); err != nil {
		return fmt.Errorf("slave: %w: %v", obssync.ErrMalformedPayload, err)
	}

	switch p.Field {
	case "program":
		a.expected.SetProgramScene(p.SceneName)
		if err := a.obsClient.SetCurrentProgramScene(p.SceneName); err != nil {
			return fmt.Errorf("slave: %w: %v", obssync.ErrApplyFailed, err)
		}
	case "preview":
		a.expected.SetPreviewScene(p.SceneName)
		if err := a.obsClient.SetCurrentPreviewScene(p.SceneName); err != nil {
			// Tolerated: Studio Mode may be disabled locally.
			a.log.Info("preview scene change not applied (studio mode likely disabled)",
				zap.String("scene", p.SceneName), zap.Error(err))
		}
	default:
		return fmt.Errorf("slave: %w: unknown scene_change field %q", obssync.ErrMalformedPayload, p.Field)
	}
	return nil
}

func (a *Applier) applyTransformUpdate(env protocol.Envelope) error {
	var p protocol.TransformUpdatePayload
	if err := env.DecodePayload(&p); err != nil {
		return fmt.Errorf("slave: %w: %v", obssync.ErrMalformedPayload, err)
	}

	localRef, err := a.resolveItem(p.Ref.SceneName, p.Ref.SourceName)
	if err != nil {
		return err
	}

	a.expected.UpdateTransform(p.Ref, p.Patch)

	current, err := a.obsClient.GetTransform(localRef)
	if err != nil {
		return fmt.Errorf("slave: %w: get current transform: %v", obssync.ErrApplyFailed, err)
	}
	merged := p.Patch.Merge(current)
	if err := a.obsClient.SetTransform(localRef, merged); err != nil {
		return fmt.Errorf("slave: %w: set transform: %v", obssync.ErrApplyFailed, err)
	}
	return nil
}

func (a *Applier) applySourceUpdate(env protocol.Envelope) error {
	var p protocol.SourceUpdatePayload
	if err := env.DecodePayload(&p); err != nil {
		return fmt.Errorf("slave: %w: %v", obssync.ErrMalformedPayload, err)
	}

	if p.Enabled != nil {
		localRef, err := a.resolveItem(p.Ref.SceneName, p.Ref.SourceName)
		if err != nil {
			return err
		}
		if err := a.obsClient.SetSceneItemEnabled(localRef, *p.Enabled); err != nil {
			return fmt.Errorf("slave: %w: set enabled: %v", obssync.ErrApplyFailed, err)
		}
	}
	if p.Settings != nil {
		if err := a.obsClient.SetInputSettings(p.Ref.SourceName, p.Settings); err != nil {
			return fmt.Errorf("slave: %w: set input settings: %v", obssync.ErrApplyFailed, err)
		}
	}
	return nil
}

func (a *Applier) applyFilterUpdate(env protocol.Envelope) error {
	var p protocol.FilterUpdatePayload
	if err := env.DecodePayload(&p); err != nil {
		return fmt.Errorf("slave: %w: %v", obssync.ErrMalformedPayload, err)
	}

	a.expected.MergeFilter(p.SourceName, p.FilterName, p.FilterSettings, p.FilterEnabled)

	if p.FilterSettings != nil {
		if err := a.obsClient.SetFilterSettings(p.SourceName, p.FilterName, p.FilterSettings); err != nil {
			return fmt.Errorf("slave: %w: set filter settings: %v", obssync.ErrApplyFailed, err)
		}
	}
	if p.FilterEnabled != nil {
		if err := a.obsClient.SetFilterEnabled(p.SourceName, p.FilterName, *p.FilterEnabled); err != nil {
			return fmt.Errorf("slave: %w: set filter enabled: %v", obssync.ErrApplyFailed, err)
		}
	}
	return nil
}

func (a *Applier) applyImageUpdate(env protocol.Envelope) error {
	var p protocol.ImageUpdatePayload
	if err := env.DecodePayload(&p); err != nil {
		return fmt.Errorf("slave: %w: %v", obssync.ErrMalformedPayload, err)
	}

	data, err := p.Decode()
	if err != nil {
		return fmt.Errorf("slave: %w: %v", obssync.ErrImageTooLarge, err)
	}

	path, err := a.stageImage(p.Ref.SourceName, data)
	if err != nil {
		return fmt.Errorf("slave: %w: stage image: %v", obssync.ErrApplyFailed, err)
	}

	if err := a.obsClient.SetInputSettings(p.Ref.SourceName, map[string]interface{}{"file": path}); err != nil {
		return fmt.Errorf("slave: %w: set image input settings: %v", obssync.ErrApplyFailed, err)
	}
	return nil
}

// stageImage writes data under <tempDir>/obs-sync/<stable-name>.<ext>,
// overwriting any prior content, and returns the written path.
func (a *Applier) stageImage(sourceName string, data []byte) (string, error) {
	if err := os.MkdirAll(a.tempDir, 0o755); err != nil {
		return "", err
	}
	stable := stableNameSanitizer.ReplaceAllString(sourceName, "_")
	ext := sniffImageExt(data)
	path := filepath.Join(a.tempDir, stable+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (a *Applier) applyStateSync(env protocol.Envelope) error {
	var p protocol.StateSyncPayload
	if err := env.DecodePayload(&p); err != nil {
		return fmt.Errorf("slave: %w: %v", obssync.ErrMalformedPayload, err)
	}

	a.itemCacheMu.Lock()
	a.itemCache = make(map[string]int)
	a.itemCacheMu.Unlock()

	a.expected.ReplaceAll(p.Scenes, p.PreviewScene, p.ProgramScene)

	for _, scene := range p.Scenes {
		for _, item := range scene.Items {
			ref := item.Ref
			ref.SceneName = scene.Name
			localRef, err := a.resolveItem(scene.Name, ref.SourceName)
			if err != nil {
				a.log.Warn("state_sync: could not resolve item, skipping", zap.String("scene", scene.Name), zap.String("source", ref.SourceName), zap.Error(err))
				continue
			}

			if err := a.obsClient.SetTransform(localRef, item.Transform); err != nil {
				a.log.Warn("state_sync: set transform failed", zap.String("source", ref.SourceName), zap.Error(err))
			}

			if item.ImageBlob != nil && len(item.ImageBlob.Bytes) > 0 {
				if path, err := a.stageImage(ref.SourceName, item.ImageBlob.Bytes); err == nil {
					a.obsClient.SetInputSettings(ref.SourceName, map[string]interface{}{"file": path})
				}
			}

			for _, filter := range item.Filters {
				if filter.Settings != nil {
					a.obsClient.SetFilterSettings(ref.SourceName, filter.Name, filter.Settings)
				}
				a.obsClient.SetFilterEnabled(ref.SourceName, filter.Name, filter.Enabled)
			}
		}
	}

	if p.PreviewScene != "" {
		if err := a.obsClient.SetCurrentPreviewScene(p.PreviewScene); err != nil {
			a.log.Info("state_sync: preview scene not applied (studio mode likely disabled)", zap.Error(err))
		}
	}
	if p.ProgramScene != "" {
		if err := a.obsClient.SetCurrentProgramScene(p.ProgramScene); err != nil {
			return fmt.Errorf("slave: %w: set program scene: %v", obssync.ErrApplyFailed, err)
		}
	}
	return nil
}

// resolveItem maps (sceneName, sourceName) to the local OBS instance's
// sceneItemId, refreshing its cache of the scene's item list on a miss.
func (a *Applier) resolveItem(sceneName, sourceName string) (model.SceneItemRef, error) {
	key := sceneName + "/" + sourceName

	a.itemCacheMu.Lock()
	if id, ok := a.itemCache[key]; ok {
		a.itemCacheMu.Unlock()
		return model.SceneItemRef{SceneName: sceneName, SceneItemID: id, SourceName: sourceName}, nil
	}
	a.itemCacheMu.Unlock()

	items, err := a.obsClient.ListSceneItems(sceneName)
	if err != nil {
		return model.SceneItemRef{}, fmt.Errorf("slave: %w: list items in %q: %v", obssync.ErrSceneResolutionFailed, sceneName, err)
	}

	a.itemCacheMu.Lock()
	for _, it := range items {
		a.itemCache[sceneName+"/"+it.SourceName] = it.SceneItemID
	}
	id, ok := a.itemCache[key]
	a.itemCacheMu.Unlock()

	if !ok {
		return model.SceneItemRef{}, fmt.Errorf("slave: %w: %q not found in scene %q", obssync.ErrSceneResolutionFailed, sourceName, sceneName)
	}
	return model.SceneItemRef{SceneName: sceneName, SceneItemID: id, SourceName: sourceName}, nil
}
