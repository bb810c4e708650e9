package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DuplicateSet is one piece of content found at several paths.
type DuplicateSet struct {
	Fingerprint string   `json:"fingerprint"`
	Files       []string `json:"files"`
	Size        int64    `json:"size_bytes"`
}

type DateRange struct {
	Earliest Date `json:"earliest"`
	Latest   Date `json:"latest"`
}

// Report summarizes a registry for display.
type Report struct {
	Entries    int            `json:"entries"`
	Statistics []StatLine     `json:"statistics"`
	DateRange  *DateRange     `json:"date_range,omitempty"`
	Duplicates []DuplicateSet `json:"duplicates,omitempty"`
	Unresolved []string       `json:"unresolved,omitempty"`
	MetaGroups int            `json:"meta_groups"`
	Errors     string         `json:"-"`
}

// Report builds a display summary of the current registry state.
func (r *Registry) Report() *Report {
	entries := r.Entries()
	rep := &Report{
		Entries:    len(entries),
		Statistics: r.stats.Listing(),
		MetaGroups: len(r.MetaGroups()),
	}
	if r.errs.Len() > 0 {
		rep.Errors = r.errs.GenerateReport()
	}

	for _, e := range entries {
		if e.RefCount > 1 {
			var size int64
			if fi, err := os.Stat(e.Paths[0]); err == nil {
				size = fi.Size()
			}
			rep.Duplicates = append(rep.Duplicates, DuplicateSet{
				Fingerprint: e.Fingerprint,
				Files:       append([]string(nil), e.Paths...),
				Size:        size,
			})
		}
		if e.Analyzed && e.Resolved == nil {
			rep.Unresolved = append(rep.Unresolved, e.Path())
		}
		if e.Resolved != nil {
			if rep.DateRange == nil {
				rep.DateRange = &DateRange{Earliest: *e.Resolved, Latest: *e.Resolved}
			}
			if e.Resolved.Before(rep.DateRange.Earliest) {
				rep.DateRange.Earliest = *e.Resolved
			}
			if rep.DateRange.Latest.Before(*e.Resolved) {
				rep.DateRange.Latest = *e.Resolved
			}
		}
	}

	sort.Slice(rep.Duplicates, func(i, j int) bool {
		a, b := rep.Duplicates[i], rep.Duplicates[j]
		if len(a.Files) != len(b.Files) {
			return len(a.Files) > len(b.Files)
		}
		return a.Fingerprint < b.Fingerprint
	})
	sort.Strings(rep.Unresolved)
	return rep
}

// WriteStatistics prints the plain name: count listing, or JSON when format is "json".
func WriteStatistics(w io.Writer, stats *Statistics, format string) error {
	if format == "json" {
		return writeJSON(w, stats.Map())
	}
	for _, line := range stats.Listing() {
		if _, err := fmt.Fprintf(w, "%s: %d\n", line.Name, line.Count); err != nil {
			return err
		}
	}
	return nil
}

// WriteReport formats and displays the report
func WriteReport(w io.Writer, rep *Report, format string) error {
	if format == "json" {
		return writeJSON(w, rep)
	}
	return writeTable(w, rep)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeTable outputs the report in human-readable form
func writeTable(w io.Writer, rep *Report) error {
	counts := make(map[string]int, len(rep.Statistics))
	for _, line := range rep.Statistics {
		counts[line.Name] = line.Count
	}

	fmt.Fprintf(w, "=== Photo Cleanup Report ===\n\n")

	fmt.Fprintf(w, "📊 Overview:\n")
	fmt.Fprintf(w, "  - %d unique files (%d collisions)\n", rep.Entries, counts[string(StatCollisions)])
	fmt.Fprintf(w, "  - %d pictures, %d raw, %d videos\n",
		counts[string(StatPictures)], counts[string(StatRaw)], counts[string(StatVideos)])
	fmt.Fprintf(w, "  - %d sidecar files, %d companion files in %d groups\n",
		counts[string(StatMetafiles)], counts[string(StatCompanions)], rep.MetaGroups)
	if n := counts[string(StatRejects)]; n > 0 {
		fmt.Fprintf(w, "  - %d unsupported files rejected\n", n)
	}

	fmt.Fprintf(w, "\n📅 Dates:\n")
	if rep.DateRange != nil {
		fmt.Fprintf(w, "  - Date range: %s to %s\n", rep.DateRange.Earliest, rep.DateRange.Latest)
	}
	for _, src := range sourcePriority {
		n := counts[string(sourceStat(src))]
		fmt.Fprintf(w, "  - %-9s %d (%d%%)\n", src+":", n, percentage(n, rep.Entries))
	}
	if len(rep.Unresolved) > 0 {
		fmt.Fprintf(w, "  ⚠️  %d files without any date:\n", len(rep.Unresolved))
		for _, p := range rep.Unresolved[:min(5, len(rep.Unresolved))] {
			fmt.Fprintf(w, "     %s\n", p)
		}
		if len(rep.Unresolved) > 5 {
			fmt.Fprintf(w, "     ...and %d more\n", len(rep.Unresolved)-5)
		}
	}

	if len(rep.Duplicates) > 0 {
		fmt.Fprintf(w, "\n🔍 Duplicates Found (%d sets):\n", len(rep.Duplicates))
		totalWaste := int64(0)
		for _, dup := range rep.Duplicates {
			totalWaste += dup.Size * int64(len(dup.Files)-1)
		}
		for i, dup := range rep.Duplicates[:min(5, len(rep.Duplicates))] {
			fmt.Fprintf(w, "  - Set %d: %d copies of %s (%s each)\n", i+1, len(dup.Files),
				filepath.Base(dup.Files[0]), formatBytes(dup.Size))
		}
		if len(rep.Duplicates) > 5 {
			fmt.Fprintf(w, "  - ... and %d more sets\n", len(rep.Duplicates)-5)
		}
		fmt.Fprintf(w, "  💾 Potential space savings: %s\n", formatBytes(totalWaste))
	}

	if rep.Errors != "" {
		fmt.Fprintf(w, "\n%s", strings.TrimLeft(rep.Errors, "\n"))
	}
	return nil
}

func percentage(part, total int) int {
	if total == 0 {
		return 0
	}
	return (part * 100) / total
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
