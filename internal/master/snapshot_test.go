package master

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/obssync/engine/internal/model"
)

func TestBuildSceneReadsImageBytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.png")
	want := []byte("pretend-png-bytes")
	if err := os.WriteFile(path, want, 0o600); err != nil {
		t.Fatalf("write fixture image: %v", err)
	}

	obsClient := newFakeOBS()
	obsClient.items["Scene A"] = []model.SceneItemRef{{SceneName: "Scene A", SceneItemID: 1, SourceName: "Overlay"}}
	obsClient.inputSet["Overlay"] = map[string]interface{}{"file": path}

	se := NewSnapshotEngine(obsClient)
	scene, err := se.buildScene("Scene A")
	if err != nil {
		t.Fatalf("buildScene: %v", err)
	}
	if len(scene.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(scene.Items))
	}
	blob := scene.Items[0].ImageBlob
	if blob == nil {
		t.Fatal("ImageBlob is nil, want populated blob")
	}
	if blob.SourcePath != path {
		t.Fatalf("SourcePath = %q, want %q", blob.SourcePath, path)
	}
	if string(blob.Bytes) != string(want) {
		t.Fatalf("Bytes = %q, want %q", blob.Bytes, want)
	}
}

func TestBuildSceneToleratesUnreadableImage(t *testing.T) {
	t.Parallel()

	obsClient := newFakeOBS()
	obsClient.items["Scene A"] = []model.SceneItemRef{{SceneName: "Scene A", SceneItemID: 1, SourceName: "Overlay"}}
	obsClient.inputSet["Overlay"] = map[string]interface{}{"file": "/does/not/exist.png"}

	se := NewSnapshotEngine(obsClient)
	scene, err := se.buildScene("Scene A")
	if err != nil {
		t.Fatalf("buildScene: %v", err)
	}
	blob := scene.Items[0].ImageBlob
	if blob == nil {
		t.Fatal("ImageBlob is nil, want a blob carrying at least the source path")
	}
	if blob.SourcePath != "/does/not/exist.png" {
		t.Fatalf("SourcePath = %q, want the unreadable path preserved", blob.SourcePath)
	}
	if len(blob.Bytes) != 0 {
		t.Fatalf("Bytes = %q, want empty when the file can't be read", blob.Bytes)
	}
}

func TestBuildSceneSkipsImageBlobForNonImageInput(t *testing.T) {
	t.Parallel()

	obsClient := newFakeOBS()
	obsClient.items["Scene A"] = []model.SceneItemRef{{SceneName: "Scene A", SceneItemID: 1, SourceName: "Webcam"}}
	obsClient.inputSet["Webcam"] = map[string]interface{}{}

	se := NewSnapshotEngine(obsClient)
	scene, err := se.buildScene("Scene A")
	if err != nil {
		t.Fatalf("buildScene: %v", err)
	}
	if scene.Items[0].ImageBlob != nil {
		t.Fatal("ImageBlob should be nil when the input has no file setting")
	}
}
