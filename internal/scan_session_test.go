package internal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewScanSession(t *testing.T) {
	stateDir := t.TempDir()

	session, err := NewScanSession(stateDir, "/input/test")
	if err != nil {
		t.Fatalf("NewScanSession failed: %v", err)
	}
	defer session.Close()

	if session.SessionDir != filepath.Join(stateDir, "scans", session.ID) {
		t.Errorf("Unexpected session dir %s", session.SessionDir)
	}
	if _, err := os.Stat(filepath.Join(session.SessionDir, "manifest.jsonl")); os.IsNotExist(err) {
		t.Errorf("Manifest file not created in %s", session.SessionDir)
	}
	if session.Root != "/input/test" {
		t.Errorf("Expected root '/input/test', got '%s'", session.Root)
	}
}

func TestScanSession_Manifest(t *testing.T) {
	session, err := NewScanSession(t.TempDir(), "/input")
	if err != nil {
		t.Fatalf("NewScanSession failed: %v", err)
	}

	a := FileRef{Path: "/input/a.jpg", Dir: "/input"}
	session.LogSessionStart(5)
	session.LogOutcome(a, OutcomeAdded, "fp1", nil)
	session.LogOutcome(FileRef{Path: "/input/copy/a.jpg", Dir: "/input/copy"}, OutcomeDuplicate, "fp1", nil)
	session.LogOutcome(FileRef{Path: "/input/.picasa.ini", Dir: "/input"}, OutcomeSidecar, "", nil)
	session.LogOutcome(FileRef{Path: "/input/b.xyz", Dir: "/input"}, OutcomeRejected, "", ErrRejected)
	session.LogOutcome(FileRef{Path: "/input/c.jpg", Dir: "/input"}, OutcomeFailed, "", os.ErrPermission)
	session.LogSkipped("/input/old.jpg")
	if err := session.LogSessionEnd(); err != nil {
		t.Fatalf("LogSessionEnd failed: %v", err)
	}

	stats := session.GetStats()
	if stats.TotalScanned != 5 || stats.Added != 1 || stats.Duplicates != 1 ||
		stats.Sidecars != 1 || stats.Rejected != 1 || stats.Errors != 1 || stats.Skipped != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	manifest := session.ManifestFile.Name()
	session.Close()
	events, err := ReadManifest(manifest)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}

	want := []string{"session_start", "added", "duplicate", "sidecar", "rejected", "error", "skipped", "session_end"}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i, ev := range events {
		if ev.Event != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], ev.Event)
		}
		if ev.Ts == "" {
			t.Errorf("Event %d has no timestamp", i)
		}
	}
	if events[0].TotalFiles != 5 || events[0].Root != "/input" {
		t.Errorf("Unexpected start event %+v", events[0])
	}
	if events[2].Fingerprint != "fp1" || events[2].Dir != "/input/copy" {
		t.Errorf("Unexpected duplicate event %+v", events[2])
	}
	if events[5].ErrorCategory != string(ErrorCategoryInput) || events[5].Error == "" {
		t.Errorf("Expected a categorized input error, got %+v", events[5])
	}
	if end := events[7]; end.Added != 1 || end.Skipped != 1 || end.ErrorCount != 1 {
		t.Errorf("Unexpected end event %+v", end)
	}
}

func TestScanSession_Closed(t *testing.T) {
	session, err := NewScanSession(t.TempDir(), "/input")
	if err != nil {
		t.Fatalf("NewScanSession failed: %v", err)
	}
	session.Close()
	if err := session.LogSkipped("/input/a.jpg"); err == nil {
		t.Error("Expected an error when writing to a closed manifest")
	}
	if err := session.Close(); err != nil {
		t.Errorf("Expected a second Close to be a no-op, got %v", err)
	}
}

func TestReadManifest_Malformed(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "manifest.jsonl"), []byte("{\"event\":\"added\"}\nnot json\n"))
	events, err := ReadManifest(path)
	if err == nil {
		t.Fatal("Expected an error for a malformed line")
	}
	if len(events) != 1 {
		t.Errorf("Expected the valid prefix to be returned, got %d events", len(events))
	}
	if _, err := ReadManifest(filepath.Join(t.TempDir(), "none.jsonl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}
