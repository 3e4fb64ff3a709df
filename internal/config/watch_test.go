package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("ws_url: ws://localhost:8001/ws\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	// Give fsnotify time to start watching.
	time.Sleep(50 * time.Millisecond)
	return w, path
}

func TestNewWatcherBadPath(t *testing.T) {
	_, err := NewWatcher("/nonexistent/dir/cosmoview.yaml", nil)
	if err == nil {
		t.Error("NewWatcher should fail for nonexistent directory")
	}
}

func TestWatcherDetectsWrite(t *testing.T) {
	w, path := newTestWatcher(t)
	if w.Path() != path {
		t.Errorf("Path() = %q, want %q", w.Path(), path)
	}

	if err := os.WriteFile(path, []byte("ws_url: ws://other:1/ws\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for change signal on config write")
	}
}

func TestWatcherDetectsReplace(t *testing.T) {
	w, path := newTestWatcher(t)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("api_url: http://other:1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for change signal on config replace")
	}
}

func TestWatcherCoalescesBursts(t *testing.T) {
	w, path := newTestWatcher(t)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("log_file: x.log\n"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
	select {
	case <-w.Changes():
		t.Error("burst of writes produced more than one signal")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherWaitsForRemovedFile(t *testing.T) {
	w, path := newTestWatcher(t)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	select {
	case <-w.Changes():
		t.Fatal("signalled while the config file is missing")
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("ws_url: ws://back:1/ws\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Error("timed out waiting for change signal after the config reappeared")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	w, path := newTestWatcher(t)

	unrelated := filepath.Join(filepath.Dir(path), "other.txt")
	if err := os.WriteFile(unrelated, []byte("noise"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-w.Changes():
		t.Error("unexpected change signal from unrelated file write")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	w, _ := newTestWatcher(t)
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
