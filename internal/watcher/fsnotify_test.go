package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWatcher(t *testing.T) *FSNotifyWatcher {
	t.Helper()
	w, err := NewFSNotifyWatcher(DefaultConfig())
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitEvent(t *testing.T, events <-chan Event, path string) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Path == path {
				return event
			}
			t.Errorf("event for unwatched path %s", event.Path)
		case <-timeout:
			t.Fatalf("timeout waiting for event on %s", path)
		}
	}
}

func TestFSNotifyWatcher_WatchErrors(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "main.lua")
	writeTestFile(t, file, "x = 1")

	if err := w.Watch(filepath.Join(dir, "missing.lua")); !errors.Is(err, ErrPathNotExist) {
		t.Errorf("expected ErrPathNotExist, got %v", err)
	}
	if err := w.Watch(dir); !errors.Is(err, ErrNotRegularFile) {
		t.Errorf("expected ErrNotRegularFile, got %v", err)
	}
	if err := w.Watch(file); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := w.Watch(file); !errors.Is(err, ErrAlreadyWatching) {
		t.Errorf("expected ErrAlreadyWatching, got %v", err)
	}
	if !w.IsWatching(file) {
		t.Error("IsWatching = false")
	}
	if err := w.Unwatch(file); err != nil {
		t.Fatalf("Unwatch: %v", err)
	}
	if err := w.Unwatch(file); !errors.Is(err, ErrNotWatching) {
		t.Errorf("expected ErrNotWatching, got %v", err)
	}
}

func TestFSNotifyWatcher_FiltersSiblings(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.lua")
	other := filepath.Join(dir, "other.lua")
	writeTestFile(t, watched, "a = 1")

	if err := w.Watch(watched); err != nil {
		t.Fatal(err)
	}

	writeTestFile(t, other, "b = 2")
	writeTestFile(t, watched, "a = 2")

	event := waitEvent(t, w.Events(), watched)
	if !event.Op.Has(OpWrite) && !event.Op.Has(OpCreate) {
		t.Errorf("unexpected op %s", event.Op)
	}
}

func TestFSNotifyWatcher_RenameOver(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.lua")
	writeTestFile(t, watched, "a = 1")

	if err := w.Watch(watched); err != nil {
		t.Fatal(err)
	}

	tmp := filepath.Join(dir, ".watched.lua.swp")
	writeTestFile(t, tmp, "a = 3")
	if err := os.Rename(tmp, watched); err != nil {
		t.Fatal(err)
	}

	waitEvent(t, w.Events(), watched)
}

func TestFSNotifyWatcher_SharedDirectory(t *testing.T) {
	w := newTestWatcher(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.lua")
	b := filepath.Join(dir, "b.lua")
	writeTestFile(t, a, "")
	writeTestFile(t, b, "")

	if err := w.Watch(a); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(b); err != nil {
		t.Fatal(err)
	}
	if got := w.WatchedPaths(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("WatchedPaths = %v", got)
	}

	// Unwatching a must keep the directory watch alive for b.
	if err := w.Unwatch(a); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, b, "changed")
	waitEvent(t, w.Events(), b)
}

func TestFSNotifyWatcher_Closed(t *testing.T) {
	w, err := NewFSNotifyWatcher(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Watch("anything"); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("expected ErrWatcherClosed, got %v", err)
	}
}

func TestNew(t *testing.T) {
	w, err := New(WithDebounceDelay(20*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	file := filepath.Join(t.TempDir(), "main.lua")
	writeTestFile(t, file, "x = 1")
	if err := w.Watch(file); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, file, "x = 2")
	writeTestFile(t, file, "x = 3")

	waitEvent(t, w.Events(), file)
}
