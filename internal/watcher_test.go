package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_Events(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(NewClassifier(DefaultConfig()), dir)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))
	img := writeFile(t, filepath.Join(dir, "a.jpg"), []byte("a"))

	select {
	case ev := <-w.Events():
		if ev.Type != EventCreate || ev.Path != img {
			t.Errorf("Expected create of %s, got %+v", img, ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for create event")
	}

	// Folders created later are watched as well
	sub := filepath.Join(dir, "2020")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	nested := writeFile(t, filepath.Join(sub, "b.mov"), []byte("b"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == nested && ev.Type == EventCreate {
				return
			}
		case <-deadline:
			t.Fatal("Timed out waiting for event in new folder")
		}
	}
}

func TestApplyWatchEvents(t *testing.T) {
	reg, _ := newTestRegistry(t)
	dir := t.TempDir()
	w, err := NewWatcher(reg.Classifier(), dir)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	trees := make(chan *Tree, 4)
	done := make(chan error, 1)
	go func() {
		done <- ApplyWatchEvents(ctx, reg, w, 100*time.Millisecond, func(t *Tree) { trees <- t })
	}()

	waitTree := func() *Tree {
		t.Helper()
		select {
		case tree := <-trees:
			return tree
		case <-time.After(3 * time.Second):
			t.Fatal("Timed out waiting for a batch")
		}
		return nil
	}

	a := writeFile(t, filepath.Join(dir, "a.jpg"), []byte("a"))
	b := writeFile(t, filepath.Join(dir, "b.jpg"), []byte("a"))
	tree := waitTree()
	for reg.Contains(b) == 0 {
		tree = waitTree()
	}
	if reg.Contains(a) != 2 || reg.Len() != 1 {
		t.Errorf("Expected one entry with two references, got %d entries and %d refs", reg.Len(), reg.Contains(a))
	}
	if len(tree.Leaves()) != 1 {
		t.Errorf("Expected one leaf in the rebuilt tree, got %d", len(tree.Leaves()))
	}

	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}
	waitTree()
	if reg.Contains(b) != 1 {
		t.Errorf("Expected one reference after removal, got %d", reg.Contains(b))
	}
	e, _ := reg.Lookup(b)
	if e.Path() != b {
		t.Errorf("Expected %s to become canonical, got %s", b, e.Path())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ApplyWatchEvents did not return after cancel")
	}
}
