package slave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obs"
	"github.com/obssync/engine/internal/protocol"
)

// driftInterval is how often the Detector compares live OBS state against
// ExpectedState.
const driftInterval = 5 * time.Second

// transformTolerance is the absolute per-field slack before a transform
// mismatch is reported.
const transformTolerance = 0.5

// DriftDetector periodically polls the local OBS instance and compares
// it against ExpectedState, raising a desync-alert to the shell and a
// slave_status_report to the master when the two disagree. Filter and
// image state are intentionally not checked.
type DriftDetector struct {
	obsClient *obs.Client
	expected  *ExpectedState
	transport *Transport
	log       *zap.Logger
	onAlert   AlertFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewDriftDetector constructs a DriftDetector. onAlert may be nil.
func NewDriftDetector(obsClient *obs.Client, expected *ExpectedState, transport *Transport, log *zap.Logger, onAlert AlertFunc) *DriftDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &DriftDetector{
		obsClient: obsClient,
		expected:  expected,
		transport: transport,
		log:       log.Named("slave.drift"),
		onAlert:   onAlert,
	}
}

// Start begins the 5s polling loop. Safe to call once; a second call
// before Stop is a no-op.
func (d *DriftDetector) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.running = true
	d.mu.Unlock()

	go d.loop(ctx)
}

// Stop halts the polling loop.
func (d *DriftDetector) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *DriftDetector) loop(ctx context.Context) {
	ticker := time.NewTicker(driftInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *DriftDetector) tick() {
	scenes, preview, program := d.expected.Snapshot()
	if len(scenes) == 0 && program == "" {
		return // no baseline yet (no state_sync received)
	}

	var details []model.DesyncDetail

	if currentProgram, err := d.obsClient.GetCurrentProgramScene(); err != nil {
		d.log.Warn("drift: get current program scene failed", zap.Error(err))
	} else if program != "" && currentProgram != program {
		details = append(details, model.DesyncDetail{
			Category:    "scene",
			SceneName:   program,
			Description: fmt.Sprintf("expected program scene %q, OBS reports %q", program, currentProgram),
			Severity:    model.SeverityCritical,
		})
	}

	if preview != "" {
		if currentPreview, err := d.obsClient.GetCurrentPreviewScene(); err == nil && currentPreview != preview {
			details = append(details, model.DesyncDetail{
				Category:    "scene",
				SceneName:   preview,
				Description: fmt.Sprintf("expected preview scene %q, OBS reports %q", preview, currentPreview),
				Severity:    model.SeverityCritical,
			})
		}
	}

	for sceneName, scene := range scenes {
		liveItems, err := d.obsClient.ListSceneItems(sceneName)
		if err != nil {
			d.log.Warn("drift: list scene items failed", zap.String("scene", sceneName), zap.Error(err))
			continue
		}
		liveByName := make(map[string]model.SceneItemRef, len(liveItems))
		for _, it := range liveItems {
			liveByName[it.SourceName] = it
		}

		for _, expectedItem := range scene.Items {
			liveRef, ok := liveByName[expectedItem.Ref.SourceName]
			if !ok {
				details = append(details, model.DesyncDetail{
					Category:    "missing_source",
					SceneName:   sceneName,
					SourceName:  expectedItem.Ref.SourceName,
					Description: fmt.Sprintf("expected source %q not found in scene %q", expectedItem.Ref.SourceName, sceneName),
					Severity:    model.SeverityWarning,
				})
				continue
			}

			liveTransform, err := d.obsClient.GetTransform(liveRef)
			if err != nil {
				d.log.Warn("drift: get transform failed", zap.String("source", expectedItem.Ref.SourceName), zap.Error(err))
				continue
			}
			if ok, diffFields := expectedItem.Transform.WithinTolerance(liveTransform, transformTolerance); !ok {
				details = append(details, model.DesyncDetail{
					Category:    "transform",
					SceneName:   sceneName,
					SourceName:  expectedItem.Ref.SourceName,
					Description: fmt.Sprintf("transform drift in fields: %v", diffFields),
					Severity:    model.SeverityWarning,
				})
			}
		}
	}

	isSynced := len(details) == 0
	report := model.SlaveStatusReport{IsSynced: isSynced, DesyncDetails: details}

	if d.transport != nil {
		d.transport.Send(protocol.KindSlaveStatusReport, "", protocol.SlaveStatusReportPayload{
			IsSynced:      report.IsSynced,
			DesyncDetails: report.DesyncDetails,
		})
	}

	if !isSynced && d.onAlert != nil {
		for _, detail := range details {
			d.onAlert(model.DesyncAlert{
				ID:         uuid.NewString(),
				Timestamp:  time.Now(),
				SceneName:  detail.SceneName,
				SourceName: detail.SourceName,
				Message:    detail.Description,
				Severity:   detail.Severity,
			})
		}
	}
}
