package media

import (
	"os"
	"testing"
)

func TestWorkspaceLifecycle(t *testing.T) {
	ws, err := NewWorkspace("studymill-test")
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}

	path, err := ws.WriteFile("nested/file.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("written file missing: %v", err)
	}

	dir, err := ws.Mkdir("audio")
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("subdirectory missing: %v", err)
	}

	if ws.Released() {
		t.Fatal("workspace reported released before Release")
	}
	ws.Release()
	if !ws.Released() {
		t.Fatal("workspace not marked released")
	}
	if _, err := os.Stat(ws.Root()); !os.IsNotExist(err) {
		t.Fatalf("workspace root still exists after Release: %v", err)
	}

	// Second release must be a no-op.
	ws.Release()
}

func TestWorkspaceNilSafety(t *testing.T) {
	var ws *Workspace
	ws.Release()
	if !ws.Released() {
		t.Fatal("nil workspace should report released")
	}
}
