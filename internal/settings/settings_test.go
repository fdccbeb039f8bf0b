package settings

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/obssync/engine/internal/model"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	got, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if got.Mode != want.Mode || got.OBSPort != want.OBSPort {
		t.Errorf("Load(missing) = %+v, want defaults %+v", got, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "obssync.yaml")
	in := Settings{
		Mode:        model.ModeSlave,
		OBSHost:     "192.168.1.50",
		OBSPort:     4455,
		OBSPassword: "hunter2",
		SyncTargets: []model.TargetType{model.TargetSource, model.TargetProgram},
		SlaveHost:   "192.168.1.10",
		SlavePort:   7451,
	}

	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if out.Mode != in.Mode || out.OBSHost != in.OBSHost || out.OBSPort != in.OBSPort {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
	if out.OBSPassword != in.OBSPassword {
		t.Errorf("password round trip: got %q, want %q", out.OBSPassword, in.OBSPassword)
	}
}

func TestSaveProducesEncryptedNotPlaintextPassword(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "obssync.yaml")
	if err := Save(path, Settings{OBSPassword: "hunter2"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("hunter2")) {
		t.Errorf("settings file contains the plaintext password")
	}
}

func TestLoadLegacyPlaintextMigrates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "obssync.yaml")
	legacy := "settings:\n  mode: master\n  obsHost: localhost\n  obsPort: 4455\nobsPassword: hunter2\n"
	if err := os.WriteFile(path, []byte(legacy), 0600); err != nil {
		t.Fatalf("write legacy file: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load(legacy): %v", err)
	}
	if got.OBSPassword != "hunter2" {
		t.Errorf("legacy password = %q, want hunter2", got.OBSPassword)
	}
	if got.OBSHost != "localhost" {
		t.Errorf("legacy host = %q, want localhost", got.OBSHost)
	}
}
