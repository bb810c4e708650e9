package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
)

var (
	ErrRejected        = errors.New("unsupported file type")
	ErrUnknownPath     = errors.New("path was never added")
	ErrNoDate          = errors.New("no date source resolved")
	ErrIntegrity       = errors.New("integrity check failed")
	ErrSnapshot        = errors.New("invalid snapshot")
	ErrSnapshotMerge   = errors.New("snapshot entry already present")
	ErrUnknownFormat   = errors.New("unknown snapshot format")
	ErrSidecarConflict = errors.New("sidecar key conflict")
)

// ErrorCategory represents the type of error encountered
type ErrorCategory string

const (
	ErrorCategoryInput      ErrorCategory = "input_error"        // Unreadable file, hashing or metadata I/O
	ErrorCategoryExtraction ErrorCategory = "extraction_miss"    // One date source found nothing
	ErrorCategoryResolution ErrorCategory = "resolution_failure" // No date source resolved
	ErrorCategoryIntegrity  ErrorCategory = "integrity_warning"  // Data inconsistency worth auditing
	ErrorCategoryUsage      ErrorCategory = "usage_error"        // Caller misuse, e.g. removing an unknown path
	ErrorCategoryUnknown    ErrorCategory = "unknown_error"      // Unexpected errors
)

// ErrorSeverity indicates how critical the error is
type ErrorSeverity string

const (
	ErrorSeverityError   ErrorSeverity = "error"   // File skipped
	ErrorSeverityWarning ErrorSeverity = "warning" // File kept, data needs review
)

// ProcessError represents a categorized error during a scan
type ProcessError struct {
	FilePath    string
	Category    ErrorCategory
	Severity    ErrorSeverity
	OriginalErr error
	Context     map[string]string // Additional context (fingerprint, key, ...)
	Suggestion  string            // User-friendly suggestion to fix
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", e.Severity, e.Category, e.FilePath, e.OriginalErr)
}

func (e *ProcessError) Unwrap() error {
	return e.OriginalErr
}

// CategorizeError analyzes an error and returns a ProcessError with category and severity
func CategorizeError(filePath string, err error) *ProcessError {
	if err == nil {
		return nil
	}

	var procErr *ProcessError
	if errors.As(err, &procErr) {
		return procErr
	}

	procErr = &ProcessError{
		FilePath:    filePath,
		OriginalErr: err,
		Context:     make(map[string]string),
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, ErrUnknownPath), errors.Is(err, ErrRejected):
		procErr.Category = ErrorCategoryUsage
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Only paths previously added with a supported extension can be removed"

	case errors.Is(err, ErrNoDate):
		procErr.Category = ErrorCategoryResolution
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "File is kept but left out of the recommended tree - check that it is still readable"

	case errors.Is(err, ErrIntegrity), errors.Is(err, ErrSidecarConflict):
		procErr.Category = ErrorCategoryIntegrity
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Audit the reported file - its recorded metadata is inconsistent"

	case errors.Is(err, fs.ErrPermission):
		procErr.Category = ErrorCategoryInput
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "Check file permissions on the scanned directories"

	case errors.Is(err, fs.ErrNotExist):
		procErr.Category = ErrorCategoryInput
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "File disappeared during the scan - check if an external drive disconnected"

	case strings.Contains(errStr, "input/output error"):
		procErr.Category = ErrorCategoryInput
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "I/O error - check disk health with SMART tools"

	case strings.Contains(errStr, "exif") || strings.Contains(errStr, "mp4"):
		procErr.Category = ErrorCategoryExtraction
		procErr.Severity = ErrorSeverityWarning
		procErr.Suggestion = "Embedded metadata could not be read - other date sources are used instead"

	default:
		procErr.Category = ErrorCategoryUnknown
		procErr.Severity = ErrorSeverityError
		procErr.Suggestion = "Unexpected error - check logs for details"
	}

	return procErr
}

// ErrorStats tracks every diagnostic recorded during a scan
type ErrorStats struct {
	mu         sync.Mutex
	Total      int
	Errors     int
	Warnings   int
	ByCategory map[ErrorCategory]int
	LastErrors []*ProcessError // Last 5 errors for quick diagnosis
}

func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ByCategory: make(map[ErrorCategory]int),
		LastErrors: make([]*ProcessError, 0, 5),
	}
}

func (s *ErrorStats) Add(err *ProcessError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Total++
	s.ByCategory[err.Category]++

	switch err.Severity {
	case ErrorSeverityError:
		s.Errors++
	case ErrorSeverityWarning:
		s.Warnings++
	}

	// Keep last 5 errors
	if len(s.LastErrors) >= 5 {
		s.LastErrors = s.LastErrors[1:]
	}
	s.LastErrors = append(s.LastErrors, err)
}

// Count returns the number of recorded diagnostics in a category.
func (s *ErrorStats) Count(cat ErrorCategory) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ByCategory[cat]
}

// Len returns the number of recorded diagnostics.
func (s *ErrorStats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Total
}

// GenerateReport creates a human-readable error report
func (s *ErrorStats) GenerateReport() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report strings.Builder

	report.WriteString(fmt.Sprintf("\nScan recorded %d diagnostics:\n\n", s.Total))

	if s.Errors > 0 {
		report.WriteString(fmt.Sprintf("  Errors:   %d (files skipped)\n", s.Errors))
	}
	if s.Warnings > 0 {
		report.WriteString(fmt.Sprintf("  Warnings: %d (files kept, review suggested)\n", s.Warnings))
	}

	report.WriteString("\n")

	report.WriteString("Diagnostic categories:\n")
	for cat, count := range s.ByCategory {
		report.WriteString(fmt.Sprintf("  - %s: %d\n", cat, count))
	}

	report.WriteString("\n")

	report.WriteString("Recent diagnostics:\n")
	for i, err := range s.LastErrors {
		report.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, err.FilePath))
		report.WriteString(fmt.Sprintf("   Category: %s | Severity: %s\n", err.Category, err.Severity))
		report.WriteString(fmt.Sprintf("   Error: %v\n", err.OriginalErr))
		if err.Suggestion != "" {
			report.WriteString(fmt.Sprintf("   Suggestion: %s\n", err.Suggestion))
		}
	}

	report.WriteString("\n")
	report.WriteString(s.generateSuggestions())

	return report.String()
}

func (s *ErrorStats) generateSuggestions() string {
	var suggestions strings.Builder
	suggestions.WriteString("Suggested next steps:\n")

	if s.ByCategory[ErrorCategoryInput] > 0 {
		suggestions.WriteString("  - Check permissions and that removable media is still connected\n")
	}

	if s.ByCategory[ErrorCategoryIntegrity] > 0 {
		suggestions.WriteString("  - Review sidecar files with conflicting values\n")
	}

	if s.ByCategory[ErrorCategoryResolution] > 0 {
		suggestions.WriteString("  - Files without any date are listed in the scan manifest\n")
	}

	if s.ByCategory[ErrorCategoryExtraction] > s.Total/2 {
		suggestions.WriteString("  - Many metadata misses - consider enabling use_exiftool for better compatibility\n")
	}

	suggestions.WriteString("  - Check the scan manifest for the detailed event log\n")

	return suggestions.String()
}
