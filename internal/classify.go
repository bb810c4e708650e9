package internal

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Category is the kind of file the engine sees, derived from its extension.
type Category int

const (
	CategoryRejected  Category = iota // Not a media or metadata file
	CategoryPicture                   // Still image
	CategoryRaw                       // Camera raw image
	CategoryVideo                     // Video sequence
	CategorySidecar                   // Structured sidecar (album-manager .ini)
	CategoryCompanion                 // Loose companion file (thumbnail, offsets)
)

var categoryNames = map[Category]string{
	CategoryRejected:  "rejected",
	CategoryPicture:   "picture",
	CategoryRaw:       "raw",
	CategoryVideo:     "video",
	CategorySidecar:   "sidecar",
	CategoryCompanion: "companion",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// IsMedia reports whether files of this category become registry entries.
func (c Category) IsMedia() bool {
	return c == CategoryPicture || c == CategoryRaw || c == CategoryVideo
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	for cat, name := range categoryNames {
		if name == string(text) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", string(text))
}

// Default extension tables
var (
	defaultPictureExt   = []string{".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".png", ".gif", ".heic"}
	defaultRawExt       = []string{".arf", ".arw", ".dng", ".cr2", ".nef", ".raf", ".orf"}
	defaultVideoExt     = []string{".mov", ".mp4", ".m4v", ".avi", ".mkv", ".3gp"}
	defaultSidecarExt   = []string{".ini"}
	defaultCompanionExt = []string{".thm", ".aae", ".lrf", ".xmp"}
)

// Classifier maps lowercased file extensions to categories.
type Classifier struct {
	table map[string]Category
}

// NewClassifier builds a classifier from the extension lists in cfg.
// Later lists win when an extension appears twice.
func NewClassifier(cfg *Config) *Classifier {
	c := &Classifier{table: make(map[string]Category)}
	c.register(CategoryPicture, cfg.PictureExt)
	c.register(CategoryRaw, cfg.RawExt)
	c.register(CategoryVideo, cfg.VideoExt)
	c.register(CategorySidecar, cfg.SidecarExt)
	c.register(CategoryCompanion, cfg.CompanionExt)
	return c
}

func (c *Classifier) register(cat Category, exts []string) {
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		c.table[e] = cat
	}
}

// Classify returns the category for a file name. Unknown extensions are rejected.
func (c *Classifier) Classify(name string) Category {
	ext := strings.ToLower(filepath.Ext(name))
	if cat, ok := c.table[ext]; ok {
		return cat
	}
	return CategoryRejected
}

var defaultClassifier = NewClassifier(DefaultConfig())

// Classify uses the built-in extension table.
func Classify(name string) Category {
	return defaultClassifier.Classify(name)
}
