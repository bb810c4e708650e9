package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const snapshotVersion = 1

// SnapshotFormat selects the document encoding.
type SnapshotFormat string

const (
	FormatJSON SnapshotFormat = "json"
	FormatYAML SnapshotFormat = "yaml"
)

// FormatForPath picks the encoding from the file extension.
func FormatForPath(path string) (SnapshotFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// SidecarSection is the persisted form of a SidecarDB.
type SidecarSection struct {
	Records  map[string]SidecarRecord `json:"records" yaml:"records"`
	Contacts map[string]string        `json:"contacts" yaml:"contacts"`
	Global   map[string]string        `json:"global" yaml:"global"`
	Files    []string                 `json:"files" yaml:"files"`
}

// Document is a value copy of a registry. Map keys are emitted sorted by
// both encoders so the output diffs cleanly between runs.
type Document struct {
	Version            int                   `json:"version" yaml:"version"`
	Entries            map[string]MediaEntry `json:"entries" yaml:"entries"`
	Statistics         map[string]int        `json:"statistics" yaml:"statistics"`
	Sidecar            SidecarSection        `json:"sidecar" yaml:"sidecar"`
	TreeCrossReference map[string]string     `json:"treeCrossReference" yaml:"treeCrossReference"`
	MetaGroups         map[string][]string   `json:"metaGroups" yaml:"metaGroups"`
}

// Snapshot copies the registry state into a Document.
func (r *Registry) Snapshot() *Document {
	r.mu.RLock()
	doc := &Document{
		Version:            snapshotVersion,
		Entries:            make(map[string]MediaEntry, len(r.entries)),
		TreeCrossReference: copyStrings(r.treeRefs),
		MetaGroups:         make(map[string][]string, len(r.metaGroups)),
	}
	for fp, e := range r.entries {
		doc.Entries[fp] = e.clone()
	}
	for k, v := range r.metaGroups {
		doc.MetaGroups[k] = append([]string(nil), v...)
	}
	r.mu.RUnlock()

	doc.Statistics = r.stats.Map()
	doc.Sidecar = r.sidecars.section()
	return doc
}

func (doc *Document) validate() error {
	if doc.Version > snapshotVersion {
		return fmt.Errorf("%w: version %d is newer than supported %d", ErrSnapshot, doc.Version, snapshotVersion)
	}
	for fp, e := range doc.Entries {
		if e.Fingerprint != "" && e.Fingerprint != fp {
			return fmt.Errorf("%w: entry %s carries fingerprint %s", ErrSnapshot, fp, e.Fingerprint)
		}
		if e.RefCount < 1 || e.RefCount != len(e.Paths) {
			return fmt.Errorf("%w: entry %s has reference count %d for %d paths", ErrSnapshot, fp, e.RefCount, len(e.Paths))
		}
	}
	return nil
}

// Restore merges a Document into the registry. Entries already present are
// a conflict and leave the registry untouched. Statistics are summed, sidecar
// records and meta groups are merged.
func (r *Registry) Restore(doc *Document) error {
	if err := doc.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	for fp := range doc.Entries {
		if _, ok := r.entries[fp]; ok {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrSnapshotMerge, fp)
		}
	}

	for fp, e := range doc.Entries {
		e := e.clone()
		e.Fingerprint = fp
		r.entries[fp] = &e
		for _, p := range e.Paths {
			r.paths[p] = fp
		}
	}
	for base, paths := range doc.MetaGroups {
		for _, p := range paths {
			if indexOf(r.metaGroups[base], p) < 0 {
				r.metaGroups[base] = append(r.metaGroups[base], p)
			}
		}
	}
	for p, fp := range doc.TreeCrossReference {
		r.treeRefs[p] = fp
	}
	metricEntries.Set(float64(len(r.entries)))
	r.mu.Unlock()

	r.stats.merge(doc.Statistics)
	r.sidecars.merge(doc.Sidecar)

	r.log.WithField("entries", len(doc.Entries)).Info("Restored snapshot")
	return nil
}

// EncodeDocument writes doc to w in the given format.
func EncodeDocument(w io.Writer, doc *Document, format SnapshotFormat) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// DecodeDocument reads a Document from r in the given format.
func DecodeDocument(r io.Reader, format SnapshotFormat) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSnapshot, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return &doc, nil
}

// SaveSnapshot writes the registry to path, atomically replacing any
// previous snapshot. The format follows the file extension.
func (r *Registry) SaveSnapshot(path string) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := EncodeDocument(&buf, r.Snapshot(), format); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	r.log.WithField("path", path).Info("Saved snapshot")
	return nil
}

// ReadSnapshot decodes the snapshot stored at path.
func ReadSnapshot(path string) (*Document, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeDocument(f, format)
}

// LoadSnapshot reads path and merges it into the registry.
func (r *Registry) LoadSnapshot(path string) error {
	doc, err := ReadSnapshot(path)
	if err != nil {
		return err
	}
	return r.Restore(doc)
}

// writeFileAtomic writes to a temp file next to dest and renames it over dest.
func writeFileAtomic(dest string, data []byte) error {
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
