package internal

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Folders skipped while scanning. Caches and previews only hold derived copies.
var defaultSkipPatterns = []string{
	"node_modules",
	".git",
	".cache",
	"cache",
	"Lightroom Previews.lrdata",
	"Lightroom*",
	"@eaDir",
	".thumbnails",
	"Thumbs.db",
	".DS_Store",
	".idea",
	".vscode",
	"__pycache__",
	"venv",
	".venv",
	"vendor",
}

// ScanOptions tunes ScanMediaFiles.
type ScanOptions struct {
	MaxDepth      int  // 0 means unlimited
	IncludeHidden bool // descend into dot folders; dot files are always listed
}

// ScanResult is what a directory walk discovered.
type ScanResult struct {
	Files              []FileRef
	DirectoriesScanned int
	SkippedFolders     []string
}

// ScanMediaFiles walks root and returns every file the classifier accepts,
// paired with its containing directory. With includeRejected, unsupported
// files are returned as well so the registry can count them.
func ScanMediaFiles(root string, classifier *Classifier, opts ScanOptions, includeRejected bool) (*ScanResult, error) {
	res := &ScanResult{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()

		if d.IsDir() {
			if path == root {
				res.DirectoriesScanned++
				return nil
			}
			if (!opts.IncludeHidden && strings.HasPrefix(name, ".")) || shouldSkipFolder(name) {
				res.SkippedFolders = append(res.SkippedFolders, path)
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 {
				rel, _ := filepath.Rel(root, path)
				if strings.Count(rel, string(filepath.Separator))+1 > opts.MaxDepth {
					return filepath.SkipDir
				}
			}
			res.DirectoriesScanned++
			return nil
		}

		// Dot files stay: .picasa.ini is the usual album sidecar
		if !d.Type().IsRegular() {
			return nil
		}
		if !includeRejected && classifier.Classify(name) == CategoryRejected {
			return nil
		}
		res.Files = append(res.Files, FileRef{Path: path, Dir: filepath.Dir(path)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning files: %w", err)
	}
	return res, nil
}

// shouldSkipFolder matches a folder name against the skip list, case-insensitively.
// Patterns ending in * match by prefix.
func shouldSkipFolder(folderName string) bool {
	folderLower := strings.ToLower(folderName)
	for _, pattern := range defaultSkipPatterns {
		p := strings.ToLower(pattern)
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(folderLower, prefix) {
				return true
			}
			continue
		}
		if folderLower == p {
			return true
		}
	}
	return false
}
