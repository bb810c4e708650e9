package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MediaEntry is one unique piece of content, keyed by its fingerprint.
// RefCount always equals len(Paths).
type MediaEntry struct {
	Fingerprint     string     `json:"fingerprint" yaml:"fingerprint"`
	RefCount        int        `json:"refCount" yaml:"refCount"`
	Name            string     `json:"name" yaml:"name"`
	Dir             string     `json:"dir" yaml:"dir"`
	Category        Category   `json:"category" yaml:"category"`
	Paths           []string   `json:"paths" yaml:"paths"`
	Analyzed        bool       `json:"analyzed" yaml:"analyzed"`
	Candidates      Candidates `json:"candidates" yaml:"candidates"`
	Resolved        *Date      `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	Source          DateSource `json:"source,omitempty" yaml:"source,omitempty"`
	RecommendedPath string     `json:"recommendedPath,omitempty" yaml:"recommendedPath,omitempty"`
}

// Path is the canonical (first seen) path of the entry.
func (e *MediaEntry) Path() string {
	return filepath.Join(e.Dir, e.Name)
}

func (e *MediaEntry) clone() MediaEntry {
	out := *e
	out.Paths = append([]string(nil), e.Paths...)
	out.Candidates = e.Candidates.clone()
	if e.Resolved != nil {
		d := *e.Resolved
		out.Resolved = &d
	}
	return out
}

// AddOutcome tells the caller what Add did with a path.
type AddOutcome int

const (
	OutcomeRejected  AddOutcome = iota // Classifier refused the file
	OutcomeAdded                       // New unique content
	OutcomeDuplicate                   // Content already registered, reference count bumped
	OutcomeSidecar                     // Parsed as a structured sidecar
	OutcomeCompanion                   // Appended to a meta group
	OutcomeFailed                      // Could not be read
)

func (o AddOutcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSidecar:
		return "sidecar"
	case OutcomeCompanion:
		return "companion"
	case OutcomeFailed:
		return "error"
	}
	return "rejected"
}

// FileRef is one discovered file and the directory containing it.
type FileRef struct {
	Path string
	Dir  string
}

// Registry is the content-addressed store of unique media files. It owns the
// statistics, sidecar metadata and meta groups that go with them. All methods
// are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*MediaEntry
	paths      map[string]string // path -> fingerprint memo
	metaGroups map[string][]string
	treeRefs   map[string]string // recommended path -> fingerprint

	stats    *Statistics
	sidecars *SidecarDB
	errs     *ErrorStats

	classifier *Classifier
	hasher     Hasher
	extractor  Extractor
	workers    int
	log        logrus.FieldLogger
	closers    []io.Closer
}

// Option customizes a Registry.
type Option func(*Registry)

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) { r.log = l }
}

func WithMetadataReader(m MetadataReader) Option {
	return func(r *Registry) { r.extractor.Metadata = m }
}

func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewRegistry creates an empty registry. Close releases external helpers
// such as an exiftool process.
func NewRegistry(cfg *Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Registry{
		entries:    make(map[string]*MediaEntry),
		paths:      make(map[string]string),
		metaGroups: make(map[string][]string),
		treeRefs:   make(map[string]string),
		stats:      NewStatistics(),
		sidecars:   NewSidecarDB(),
		errs:       NewErrorStats(),
		classifier: NewClassifier(cfg),
		hasher:     NewHasher(cfg),
		workers:    cfg.Workers,
		log:        logrus.StandardLogger(),
	}
	if r.workers <= 0 {
		r.workers = 1
	}

	if cfg.UseExifTool {
		et, err := NewExifToolReader()
		if err != nil {
			return nil, err
		}
		r.extractor.Metadata = readerChain{et, ExifReader{}, MP4Reader{}}
		r.closers = append(r.closers, et)
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close releases resources held by the registry.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Registry) Stats() *Statistics { return r.stats }

func (r *Registry) Sidecars() *SidecarDB { return r.sidecars }

func (r *Registry) Errors() *ErrorStats { return r.errs }

func (r *Registry) Classifier() *Classifier { return r.classifier }

// record keeps a diagnostic without logging it.
func (r *Registry) record(path string, err error) *ProcessError {
	procErr := CategorizeError(path, err)
	r.errs.Add(procErr)
	return procErr
}

// report records a diagnostic and logs it at the matching level.
func (r *Registry) report(path string, err error) *ProcessError {
	procErr := r.record(path, err)

	entry := r.log.WithFields(logrus.Fields{"path": path, "category": procErr.Category})
	if procErr.Severity == ErrorSeverityWarning {
		entry.Warn(procErr.OriginalErr)
	} else {
		entry.Error(procErr.OriginalErr)
	}
	return procErr
}

// fingerprint resolves a path through the memo, hashing it on a miss.
func (r *Registry) fingerprint(path string) (string, error) {
	r.mu.RLock()
	fp, ok := r.paths[path]
	r.mu.RUnlock()
	if ok {
		return fp, nil
	}
	return r.hasher.Fingerprint(path)
}

// Add registers one discovered path. Rejected files only bump the rejection
// counter. Sidecars are parsed, companions grouped, and everything else is
// fingerprinted and either creates an entry or counts as a collision.
func (r *Registry) Add(path, dir string) (AddOutcome, error) {
	name := filepath.Base(path)
	cat := r.classifier.Classify(name)

	switch cat {
	case CategoryRejected:
		r.stats.Inc(StatRejects)
		metricRejected.Inc()
		r.log.WithField("path", path).Debug("Rejected file")
		return OutcomeRejected, fmt.Errorf("%w: %s", ErrRejected, path)
	case CategorySidecar:
		if err := r.addSidecar(path, dir); err != nil {
			return OutcomeFailed, err
		}
		r.stats.Inc(StatMetafiles)
		return OutcomeSidecar, nil
	case CategoryCompanion:
		r.addCompanion(path)
		return OutcomeCompanion, nil
	}

	fp, err := r.fingerprint(path)
	if err != nil {
		r.report(path, err)
		return OutcomeFailed, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths[path] = fp
	if e, ok := r.entries[fp]; ok {
		if e.RefCount <= 0 {
			r.report(path, fmt.Errorf("%w: entry %s has reference count %d", ErrIntegrity, fp, e.RefCount))
		}
		e.RefCount++
		e.Paths = append(e.Paths, path)
		r.stats.Inc(StatCollisions)
		metricCollisions.Inc()
		r.log.WithFields(logrus.Fields{"path": path, "fingerprint": fp, "original": e.Path()}).Debug("Duplicate content")
		return OutcomeDuplicate, nil
	}

	r.entries[fp] = &MediaEntry{
		Fingerprint: fp,
		RefCount:    1,
		Name:        name,
		Dir:         dir,
		Category:    cat,
		Paths:       []string{path},
	}
	r.stats.Inc(StatTotalFiles)
	r.stats.Inc(categoryStat(cat))
	metricFilesAdded.WithLabelValues(cat.String()).Inc()
	r.log.WithFields(logrus.Fields{"path": path, "fingerprint": fp}).Debug("Added file")
	return OutcomeAdded, nil
}

func (r *Registry) addCompanion(path string) {
	name := filepath.Base(path)
	base := name[:len(name)-len(filepath.Ext(name))]

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.metaGroups[base] {
		if p == path {
			return
		}
	}
	r.metaGroups[base] = append(r.metaGroups[base], path)
	r.stats.Inc(StatCompanions)
}

func (r *Registry) addSidecar(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		r.report(path, err)
		return err
	}
	defer f.Close()

	conflicts, err := r.sidecars.Parse(f, path, dir, r.sidecarTarget, r.log)
	// The parser already logged each conflict
	for _, c := range conflicts {
		r.record(path, c)
	}
	if err != nil {
		r.report(path, err)
		return err
	}
	return nil
}

// sidecarTarget maps the file named by a sidecar section to a fingerprint.
// Missing or unreadable files are keyed by a hash of the path itself.
func (r *Registry) sidecarTarget(path string) string {
	if _, err := os.Stat(path); err == nil {
		fp, err := r.fingerprint(path)
		if err == nil {
			return fp
		}
		r.report(path, err)
	}
	return r.hasher.FingerprintString(path)
}

// Contains returns the reference count of the content behind path, or 0 if
// the path is not currently registered.
func (r *Registry) Contains(path string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fp, ok := r.paths[path]
	if !ok {
		return 0
	}
	e, ok := r.entries[fp]
	if !ok || indexOf(e.Paths, path) < 0 {
		return 0
	}
	return e.RefCount
}

// Remove drops one reference to the content behind path and deletes the
// entry when the last reference goes away.
func (r *Registry) Remove(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp, ok := r.paths[path]
	var e *MediaEntry
	if ok {
		e = r.entries[fp]
	}
	idx := -1
	if e != nil {
		idx = indexOf(e.Paths, path)
	}
	if idx < 0 {
		err := fmt.Errorf("%w: %s", ErrUnknownPath, path)
		r.report(path, err)
		return err
	}

	if e.RefCount <= 0 {
		r.report(path, fmt.Errorf("%w: entry %s has reference count %d", ErrIntegrity, fp, e.RefCount))
	}

	e.Paths = append(e.Paths[:idx], e.Paths[idx+1:]...)
	e.RefCount--
	if indexOf(e.Paths, path) < 0 {
		delete(r.paths, path)
	}

	if e.RefCount > 0 {
		r.stats.Dec(StatCollisions)
		if e.Path() == path && len(e.Paths) > 0 {
			e.Name = filepath.Base(e.Paths[0])
			e.Dir = filepath.Dir(e.Paths[0])
		}
		return nil
	}

	delete(r.entries, fp)
	r.stats.Dec(StatTotalFiles)
	r.stats.Dec(categoryStat(e.Category))
	if e.Analyzed {
		for _, src := range e.Candidates.Resolved() {
			r.stats.Dec(sourceStat(src))
		}
		if e.Resolved == nil {
			r.stats.Dec(StatUnresolved)
		}
	}
	if e.RecommendedPath != "" {
		delete(r.treeRefs, e.RecommendedPath)
	}
	r.log.WithFields(logrus.Fields{"path": path, "fingerprint": fp}).Debug("Removed file")
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// AddAll fingerprints files concurrently and registers them. Per-file
// failures are recorded and do not stop the scan; only cancellation does.
// done, when not nil, is called once per file and may be called concurrently.
func (r *Registry) AddAll(ctx context.Context, files []FileRef, done func(FileRef, AddOutcome, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := r.Add(f.Path, f.Dir)
			if done != nil {
				done(f, outcome, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type pendingEntry struct {
	fingerprint string
	path        string
	dir         string
	name        string
}

// Update analyzes every entry not analyzed yet. Extraction runs outside the
// registry lock across the configured number of workers; an entry is only
// marked analyzed once all four extractors have run for it.
func (r *Registry) Update(ctx context.Context) error {
	r.mu.RLock()
	pending := make([]pendingEntry, 0)
	for fp, e := range r.entries {
		if !e.Analyzed {
			pending = append(pending, pendingEntry{fingerprint: fp, path: e.Path(), dir: e.Dir, name: e.Name})
		}
	}
	r.mu.RUnlock()
	sort.Slice(pending, func(i, j int) bool { return pending[i].fingerprint < pending[j].fingerprint })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, p := range pending {
		if gctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.log.WithField("path", p.path).Debug("Analyzing")
			c, err := r.extractor.Extract(p.path, p.dir, p.name)
			if err != nil {
				r.report(p.path, err)
			}
			r.commitAnalysis(p, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.mu.RLock()
	metricEntries.Set(float64(len(r.entries)))
	r.mu.RUnlock()
	return ctx.Err()
}

func (r *Registry) commitAnalysis(p pendingEntry, c Candidates) {
	r.mu.Lock()
	e, ok := r.entries[p.fingerprint]
	if !ok || e.Analyzed {
		r.mu.Unlock()
		return
	}

	e.Candidates = c
	e.Analyzed = true
	for _, src := range c.Resolved() {
		r.stats.Inc(sourceStat(src))
	}

	d, src, ok := Arbitrate(c)
	if ok {
		e.Resolved = &d
		e.Source = src
	} else {
		r.stats.Inc(StatUnresolved)
	}
	r.mu.Unlock()

	if !ok {
		metricDatesUnresolved.Inc()
		r.report(p.path, fmt.Errorf("%w for %s", ErrNoDate, p.path))
		return
	}
	metricDatesResolved.WithLabelValues(string(src)).Inc()
	r.log.WithFields(logrus.Fields{"path": p.path, "date": d.String(), "source": src}).Debug("Resolved date")
}

// Entry returns a copy of the entry with the given fingerprint.
func (r *Registry) Entry(fingerprint string) (MediaEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[fingerprint]
	if !ok {
		return MediaEntry{}, false
	}
	return e.clone(), true
}

// Lookup returns a copy of the entry registered for path.
func (r *Registry) Lookup(path string) (MediaEntry, bool) {
	r.mu.RLock()
	fp, ok := r.paths[path]
	r.mu.RUnlock()
	if !ok || r.Contains(path) == 0 {
		return MediaEntry{}, false
	}
	return r.Entry(fp)
}

// Entries returns copies of all entries sorted by fingerprint.
func (r *Registry) Entries() []MediaEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MediaEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// Len returns the number of unique entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// MetaGroups returns a copy of the companion file groups keyed by base name.
func (r *Registry) MetaGroups() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.metaGroups))
	for k, v := range r.metaGroups {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Known reports whether path was already ingested in any role. Resumed scans
// use it to skip work done by a previous run.
func (r *Registry) Known(path string) bool {
	if r.Contains(path) > 0 || r.sidecars.Parsed(path) {
		return true
	}
	name := filepath.Base(path)
	base := name[:len(name)-len(filepath.Ext(name))]
	r.mu.RLock()
	defer r.mu.RUnlock()
	return indexOf(r.metaGroups[base], path) >= 0
}
