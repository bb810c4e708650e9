package internal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ScanSession records one scan run as an append-only JSONL manifest.
// Workers may log concurrently.
type ScanSession struct {
	ID           string   // Session ID (timestamp: 2025-01-15-103045)
	StateDir     string   // State root holding all sessions
	SessionDir   string   // Full path to session directory
	ManifestFile *os.File // Open file handle for manifest.jsonl
	Root         string   // Scanned directory

	mu    sync.Mutex
	stats ScanStats
}

// ScanStats counts manifest events by outcome
type ScanStats struct {
	TotalScanned int
	Added        int
	Duplicates   int
	Sidecars     int
	Companions   int
	Rejected     int
	Skipped      int
	Errors       int
}

// ManifestEvent represents a single event in the manifest log
type ManifestEvent struct {
	Event       string `json:"event"`
	Ts          string `json:"ts"`
	Path        string `json:"path,omitempty"`
	Dir         string `json:"dir,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`

	// Error details (for categorized errors)
	ErrorCategory   string `json:"error_category,omitempty"`
	ErrorSeverity   string `json:"error_severity,omitempty"`
	ErrorSuggestion string `json:"error_suggestion,omitempty"`

	// Session start/end fields
	Root         string `json:"root,omitempty"`
	TotalFiles   int    `json:"total_files,omitempty"`
	TotalScanned int    `json:"total_scanned,omitempty"`
	Added        int    `json:"added,omitempty"`
	Duplicates   int    `json:"duplicates,omitempty"`
	Sidecars     int    `json:"sidecars,omitempty"`
	Companions   int    `json:"companions,omitempty"`
	Rejected     int    `json:"rejected,omitempty"`
	Skipped      int    `json:"skipped,omitempty"`
	ErrorCount   int    `json:"errors,omitempty"`
}

// NewScanSession creates <stateDir>/scans/<id>/manifest.jsonl
func NewScanSession(stateDir, root string) (*ScanSession, error) {
	sessionID := time.Now().Format("2006-01-02-150405")
	sessionDir := filepath.Join(stateDir, "scans", sessionID)

	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	manifestPath := filepath.Join(sessionDir, "manifest.jsonl")
	manifestFile, err := os.OpenFile(manifestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest file: %w", err)
	}

	return &ScanSession{
		ID:           sessionID,
		StateDir:     stateDir,
		SessionDir:   sessionDir,
		ManifestFile: manifestFile,
		Root:         root,
	}, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// LogSessionStart writes the session start event to manifest
func (s *ScanSession) LogSessionStart(totalFiles int) error {
	return s.writeEvent(ManifestEvent{
		Event:      "session_start",
		Ts:         now(),
		Root:       s.Root,
		TotalFiles: totalFiles,
	})
}

// LogOutcome records what the registry did with one file.
func (s *ScanSession) LogOutcome(f FileRef, outcome AddOutcome, fingerprint string, err error) error {
	s.mu.Lock()
	s.stats.TotalScanned++
	switch outcome {
	case OutcomeAdded:
		s.stats.Added++
	case OutcomeDuplicate:
		s.stats.Duplicates++
	case OutcomeSidecar:
		s.stats.Sidecars++
	case OutcomeCompanion:
		s.stats.Companions++
	case OutcomeRejected:
		s.stats.Rejected++
	}
	s.mu.Unlock()

	if outcome == OutcomeFailed && err != nil {
		return s.LogDetailedError(f.Path, CategorizeError(f.Path, err))
	}

	return s.writeEvent(ManifestEvent{
		Event:       outcome.String(),
		Ts:          now(),
		Path:        f.Path,
		Dir:         f.Dir,
		Fingerprint: fingerprint,
	})
}

// LogSkipped records a path left alone because a previous run already ingested it.
func (s *ScanSession) LogSkipped(path string) error {
	s.mu.Lock()
	s.stats.Skipped++
	s.mu.Unlock()

	return s.writeEvent(ManifestEvent{
		Event: "skipped",
		Ts:    now(),
		Path:  path,
	})
}

// LogDetailedError logs a categorized error with full details
func (s *ScanSession) LogDetailedError(path string, procErr *ProcessError) error {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()

	event := ManifestEvent{
		Event:           "error",
		Ts:              now(),
		Path:            path,
		Error:           procErr.OriginalErr.Error(),
		ErrorCategory:   string(procErr.Category),
		ErrorSeverity:   string(procErr.Severity),
		ErrorSuggestion: procErr.Suggestion,
	}
	if fp, ok := procErr.Context["fingerprint"]; ok {
		event.Fingerprint = fp
	}

	return s.writeEvent(event)
}

// LogSessionEnd writes the session end event with the accumulated counts
func (s *ScanSession) LogSessionEnd() error {
	stats := s.GetStats()
	return s.writeEvent(ManifestEvent{
		Event:        "session_end",
		Ts:           now(),
		TotalScanned: stats.TotalScanned,
		Added:        stats.Added,
		Duplicates:   stats.Duplicates,
		Sidecars:     stats.Sidecars,
		Companions:   stats.Companions,
		Rejected:     stats.Rejected,
		Skipped:      stats.Skipped,
		ErrorCount:   stats.Errors,
	})
}

// GetStats returns the current session statistics
func (s *ScanSession) GetStats() ScanStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close closes the manifest file and session
func (s *ScanSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ManifestFile != nil {
		err := s.ManifestFile.Close()
		s.ManifestFile = nil
		return err
	}
	return nil
}

// writeEvent writes a manifest event as a JSON line
func (s *ScanSession) writeEvent(event ManifestEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ManifestFile == nil {
		return fmt.Errorf("manifest for session %s is closed", s.ID)
	}
	if _, err := s.ManifestFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to manifest: %w", err)
	}

	return s.ManifestFile.Sync()
}

// ReadManifest parses every event of a manifest.jsonl file.
func ReadManifest(path string) ([]ManifestEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []ManifestEvent
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		var ev ManifestEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return events, fmt.Errorf("manifest %s line %d: %w", path, line, err)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}
