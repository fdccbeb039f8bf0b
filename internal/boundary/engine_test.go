package boundary

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obssync"
	"github.com/obssync/engine/internal/settings"
)

func TestSetAppModeSwitchesMode(t *testing.T) {
	t.Parallel()

	eng := New(nil, nil, "", nil)
	if got := eng.GetAppMode(); got != model.ModeMaster {
		t.Fatalf("default mode = %q, want master", got)
	}

	if err := eng.SetAppMode(model.ModeSlave); err != nil {
		t.Fatalf("SetAppMode: %v", err)
	}
	if got := eng.GetAppMode(); got != model.ModeSlave {
		t.Errorf("mode after SetAppMode = %q, want slave", got)
	}
}

func TestLoadSaveSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "obssync-settings.yaml")
	eng := New(nil, nil, path, nil)

	loaded, err := eng.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings (first run): %v", err)
	}
	if loaded.OBSPort != settings.Default().OBSPort {
		t.Errorf("first-run settings = %+v, want defaults", loaded)
	}

	loaded.OBSHost = "10.0.0.5"
	if err := eng.SaveSettings(loaded); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	reloaded, err := eng.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings (after save): %v", err)
	}
	if reloaded.OBSHost != "10.0.0.5" {
		t.Errorf("reloaded host = %q, want 10.0.0.5", reloaded.OBSHost)
	}
}

func TestCommandsFailCleanlyBeforeModeStarted(t *testing.T) {
	t.Parallel()

	eng := New(nil, nil, "", nil)

	if err := eng.ResyncAllSlaves(); err == nil {
		t.Errorf("ResyncAllSlaves before start_master_server: want error, got nil")
	}
	if err := eng.RequestResyncFromMaster(); err == nil {
		t.Errorf("RequestResyncFromMaster before connect_to_master: want error, got nil")
	}
	if status := eng.GetSlaveReconnectionStatus(); status != nil {
		t.Errorf("GetSlaveReconnectionStatus before connect_to_master = %+v, want nil", status)
	}
	if err := eng.StopMasterServer(); !errors.Is(err, obssync.ErrNotRunning) {
		t.Errorf("StopMasterServer before start_master_server: err = %v, want ErrNotRunning", err)
	}
}
