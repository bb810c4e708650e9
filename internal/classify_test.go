package internal

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestClassify_CaseInsensitive(t *testing.T) {
	for _, name := range []string{"a.JPG", "a.jpg", "a.Jpg"} {
		if got := Classify(name); got != CategoryPicture {
			t.Errorf("%s: expected picture, got %s", name, got)
		}
	}
}

func TestClassify_Table(t *testing.T) {
	tests := map[string]Category{
		"IMG_0001.CR2":   CategoryRaw,
		"clip.MOV":       CategoryVideo,
		"clip.mp4":       CategoryVideo,
		".picasa.ini":    CategorySidecar,
		"Picasa.INI":     CategorySidecar,
		"MVI_0001.THM":   CategoryCompanion,
		"IMG_0001.aae":   CategoryCompanion,
		"notes.xyz":      CategoryRejected,
		"README":         CategoryRejected,
		"archive.tar.gz": CategoryRejected,
	}
	for name, want := range tests {
		if got := Classify(name); got != want {
			t.Errorf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func TestClassifier_FromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PictureExt = append([]string{"WEBP"}, cfg.PictureExt...)
	c := NewClassifier(cfg)

	if got := c.Classify("x.webp"); got != CategoryPicture {
		t.Errorf("Expected configured extension to classify as picture, got %s", got)
	}
	if got := Classify("x.webp"); got != CategoryRejected {
		t.Errorf("Expected default table to reject .webp, got %s", got)
	}
}

func TestCategory_TextRoundTrip(t *testing.T) {
	for c := CategoryRejected; c <= CategoryCompanion; c++ {
		text, _ := c.MarshalText()
		var back Category
		if err := back.UnmarshalText(text); err != nil || back != c {
			t.Errorf("Expected %s to round-trip, got %s (%v)", c, back, err)
		}
	}
	var c Category
	if err := c.UnmarshalText([]byte("hologram")); err == nil {
		t.Error("Expected error for unknown category")
	}
}

func TestAdd_RejectedOnlyTouchesRejectCounter(t *testing.T) {
	reg, _ := newTestRegistry(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "notes.xyz"), []byte("x"))
	before := reg.Stats().Map()

	outcome, err := reg.Add(path, filepath.Dir(path))
	if outcome != OutcomeRejected || !errors.Is(err, ErrRejected) {
		t.Fatalf("Expected rejected outcome, got %s (%v)", outcome, err)
	}

	after := reg.Stats().Map()
	for name, n := range after {
		want := before[name]
		if name == string(StatRejects) {
			want++
		}
		if n != want {
			t.Errorf("%s: expected %d, got %d", name, want, n)
		}
	}
	if reg.Len() != 0 || reg.Contains(path) != 0 {
		t.Error("Expected rejected file to stay out of the registry")
	}
}
