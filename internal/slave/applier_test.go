package slave

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/obssync/engine/internal/model"
)

var errBoom = errors.New("boom")

func TestApplierStageImageWritesStableName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := NewApplier(nil, NewExpectedState(), dir, nil, nil)

	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}
	path, err := a.stageImage("My Image Source!", png)
	if err != nil {
		t.Fatalf("stageImage: %v", err)
	}
	if filepath.Ext(path) != ".png" {
		t.Errorf("ext = %q, want .png", filepath.Ext(path))
	}
	if filepath.Base(filepath.Dir(path)) != "obs-sync" {
		t.Errorf("staged under %q, want obs-sync subdir", filepath.Dir(path))
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(got) != string(png) {
		t.Errorf("staged content mismatch")
	}

	// A different source gets its own stable path.
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	path2, err := a.stageImage("Another Source", jpeg)
	if err != nil {
		t.Fatalf("stageImage: %v", err)
	}
	if path2 == path {
		t.Errorf("expected distinct sources to stage to distinct paths")
	}
}

func TestApplierConsecutiveFailureThresholdFiresOnce(t *testing.T) {
	t.Parallel()

	var alerts int
	a := NewApplier(nil, NewExpectedState(), t.TempDir(), nil, func(model.DesyncAlert) {
		alerts++
	})

	for i := 0; i < consecutiveFailureThreshold+5; i++ {
		a.recordFailure(errBoom)
	}
	if alerts != 1 {
		t.Errorf("alerts fired = %d, want exactly 1 (fires once at the threshold, not on every failure after)", alerts)
	}
}

func TestApplierSuccessResetsConsecutiveFailures(t *testing.T) {
	t.Parallel()

	var alerts int
	a := NewApplier(nil, NewExpectedState(), t.TempDir(), nil, func(model.DesyncAlert) {
		alerts++
	})

	for i := 0; i < consecutiveFailureThreshold-1; i++ {
		a.recordFailure(errBoom)
	}
	a.consecutiveFailures = 0 // simulate Apply's reset-on-success path
	for i := 0; i < consecutiveFailureThreshold-1; i++ {
		a.recordFailure(errBoom)
	}
	if alerts != 0 {
		t.Errorf("alerts fired = %d, want 0 (neither run reached the threshold)", alerts)
	}
}
