package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LinkTree builds a browsable preview of the recommended layout under
// destDir: every leaf becomes a hardlink to its entry's canonical path.
// Originals are never moved. Files that cannot be linked (for example across
// filesystems) are logged and skipped. It returns the number of links made.
func LinkTree(t *Tree, reg *Registry, destDir string) (int, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create browse directory: %w", err)
	}

	linked := 0
	for _, leaf := range t.Leaves() {
		e, ok := reg.Entry(leaf.Fingerprint)
		if !ok {
			continue
		}
		linkPath := filepath.Join(destDir, filepath.FromSlash(leaf.RecommendedPath))
		log := reg.log.WithFields(logrus.Fields{"path": e.Path(), "link": linkPath})

		if err := os.MkdirAll(filepath.Dir(linkPath), 0755); err != nil {
			log.WithError(err).Warn("Failed to create browse folder")
			continue
		}
		if _, err := os.Lstat(linkPath); err == nil {
			continue
		}
		if err := os.Link(e.Path(), linkPath); err != nil {
			log.WithError(err).Warn("Failed to create hardlink")
			continue
		}
		linked++
	}

	readmePath := filepath.Join(destDir, "README.txt")
	readmeContent := fmt.Sprintf(`Photo Cleanup Browse Structure
==============================

This directory contains hardlinks to unique media files in the
recommended Year/Month/Day layout. Each file appears once, however
many copies were found.
Generated on: %s

Years:
%s
`, time.Now().Format(time.RFC3339), yearList(t))

	if err := os.WriteFile(readmePath, []byte(readmeContent), 0644); err != nil {
		return linked, fmt.Errorf("failed to create README: %w", err)
	}
	return linked, nil
}

func yearList(t *Tree) string {
	var list []string
	for _, year := range t.Root.Children() {
		files := 0
		for _, month := range year.Children() {
			for _, day := range month.Children() {
				files += len(day.Children())
			}
		}
		list = append(list, fmt.Sprintf("- %s: %d files", year.Label, files))
	}
	return strings.Join(list, "\n")
}
