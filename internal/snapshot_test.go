package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// populated returns a registry with duplicates, a sidecar, a companion and
// resolved dates.
func populated(t *testing.T) *Registry {
	t.Helper()
	reg, _ := newTestRegistry(t, WithMetadataReader(stubReader{"meta.jpg": time.Date(2001, 2, 3, 12, 0, 0, 0, time.Local)}))
	dir := t.TempDir()

	files := map[string]string{
		"meta.jpg":         "meta",
		"copy/meta.jpg":    "meta",
		"07-04-2019.jpg":   "named",
		"clip.mov":         "video",
		"IMG_0001.CR2":     "raw",
		"MVI_0001.THM":     "thumb",
		"notes.xyz":        "rejected",
		"gone-soon.jpg":    "gone",
		"sub/.picasa.ini":  "[Contacts2]\nabc=Jane\n[meta.jpg]\nstar=1\n",
		"sub/meta.jpg":     "meta",
		"sub/other.jpg":    "other",
		"sub/sub/last.jpg": "last",
	}
	for name, content := range files {
		p := writeFile(t, filepath.Join(dir, name), []byte(content))
		setMtime(t, p, 2015, time.March, 3)
	}
	scan, err := ScanMediaFiles(dir, reg.Classifier(), ScanOptions{IncludeHidden: true}, true)
	if err != nil {
		t.Fatalf("ScanMediaFiles failed: %v", err)
	}
	if err := reg.AddAll(context.Background(), scan.Files, nil); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	if err := reg.Update(context.Background()); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	reg.BuildTree()
	return reg
}

func TestSnapshot_RoundTrip(t *testing.T) {
	for _, name := range []string{"state.json", "state.yaml"} {
		t.Run(name, func(t *testing.T) {
			reg := populated(t)
			path := filepath.Join(t.TempDir(), "nested", name)

			if err := reg.SaveSnapshot(path); err != nil {
				t.Fatalf("SaveSnapshot failed: %v", err)
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("Expected temp file to be renamed away")
			}

			loaded, _ := newTestRegistry(t)
			if err := loaded.LoadSnapshot(path); err != nil {
				t.Fatalf("LoadSnapshot failed: %v", err)
			}

			if !reflect.DeepEqual(reg.Stats().Map(), loaded.Stats().Map()) {
				t.Errorf("Statistics differ:\n%v\n%v", reg.Stats().Map(), loaded.Stats().Map())
			}
			if !reflect.DeepEqual(reg.Entries(), loaded.Entries()) {
				t.Errorf("Entries differ after round trip")
			}
			if !reflect.DeepEqual(reg.MetaGroups(), loaded.MetaGroups()) {
				t.Errorf("Meta groups differ: %v vs %v", reg.MetaGroups(), loaded.MetaGroups())
			}
			if !reflect.DeepEqual(reg.TreeCrossReference(), loaded.TreeCrossReference()) {
				t.Errorf("Cross reference differs")
			}
			if !reflect.DeepEqual(reg.Sidecars().Contacts(), loaded.Sidecars().Contacts()) {
				t.Errorf("Contacts differ")
			}
			if reg.BuildTree().String() != loaded.BuildTree().String() {
				t.Errorf("Rebuilt tree differs")
			}

			// Paths resolve again without hashing
			for _, e := range loaded.Entries() {
				for _, p := range e.Paths {
					if loaded.Contains(p) != e.RefCount {
						t.Errorf("%s: expected ref count %d, got %d", p, e.RefCount, loaded.Contains(p))
					}
				}
			}
		})
	}
}

func TestSnapshot_StableOutput(t *testing.T) {
	reg := populated(t)
	var a, b bytes.Buffer
	if err := EncodeDocument(&a, reg.Snapshot(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	EncodeDocument(&b, reg.Snapshot(), FormatJSON)
	if a.String() != b.String() {
		t.Error("Expected identical output for identical state")
	}
	for _, section := range []string{`"entries"`, `"statistics"`, `"sidecar"`, `"treeCrossReference"`, `"metaGroups"`, `"contacts"`, `"global"`} {
		if !strings.Contains(a.String(), section) {
			t.Errorf("Expected section %s in snapshot", section)
		}
	}
}

func TestSnapshot_MergeConflict(t *testing.T) {
	reg := populated(t)
	doc := reg.Snapshot()
	before := reg.Stats().Map()

	err := reg.Restore(doc)
	if !errors.Is(err, ErrSnapshotMerge) {
		t.Fatalf("Expected ErrSnapshotMerge, got %v", err)
	}
	if !reflect.DeepEqual(before, reg.Stats().Map()) {
		t.Error("Expected a conflicting restore to leave the registry untouched")
	}
}

func TestSnapshot_ResumeAddsOnlyNewPaths(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a.jpg"), []byte("a"))
	b := writeFile(t, filepath.Join(dir, "b.jpg"), []byte("b"))
	path := filepath.Join(t.TempDir(), "state.json")

	first, _ := newTestRegistry(t)
	first.Add(a, dir)
	first.Update(context.Background())
	first.SaveSnapshot(path)

	second, _ := newTestRegistry(t)
	if err := second.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	for _, p := range []string{a, b} {
		if !second.Known(p) {
			second.Add(p, dir)
		}
	}
	if second.Contains(a) != 1 || second.Contains(b) != 1 {
		t.Errorf("Expected one reference each, got %d and %d", second.Contains(a), second.Contains(b))
	}
	if second.Stats().Get(StatTotalFiles) != 2 {
		t.Errorf("Expected 2 total files, got %d", second.Stats().Get(StatTotalFiles))
	}

	e, _ := second.Lookup(a)
	if !e.Analyzed {
		t.Error("Expected restored entry to keep its analysis")
	}
}

func TestSnapshot_Invalid(t *testing.T) {
	reg, _ := newTestRegistry(t)

	bad := &Document{Entries: map[string]MediaEntry{
		"fp": {Fingerprint: "fp", RefCount: 2, Paths: []string{"/a.jpg"}},
	}}
	if err := reg.Restore(bad); !errors.Is(err, ErrSnapshot) {
		t.Errorf("Expected ErrSnapshot for mismatched ref count, got %v", err)
	}

	if _, err := DecodeDocument(strings.NewReader("{not json"), FormatJSON); !errors.Is(err, ErrSnapshot) {
		t.Errorf("Expected ErrSnapshot for malformed JSON, got %v", err)
	}
	if _, err := FormatForPath("state.txt"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
	if err := reg.LoadSnapshot(filepath.Join(t.TempDir(), "none.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}
