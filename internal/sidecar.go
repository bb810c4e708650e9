package internal

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Section headers with a fixed meaning in album-manager sidecar files.
const (
	sectionContacts = "Contacts2"
	sectionEncoding = "encoding"
	sectionAlbum    = "Picasa"
)

// benignSidecarKey legitimately differs between sidecar files describing the same image.
const benignSidecarKey = "backuphash"

// Picasa writes whole face and keyword lists on one line.
const maxSidecarLine = 4 << 20

var sectionHeader = regexp.MustCompile(`^\[(?P<name>[^\[\]]+)\]$`)

// SidecarRecord is the metadata contributed by sidecar files for one image,
// keyed by the image's content fingerprint.
type SidecarRecord struct {
	Values   map[string]string `json:"values" yaml:"values"`
	RefCount int               `json:"refCount" yaml:"refCount"`
	Sources  []string          `json:"sources" yaml:"sources"`
}

func (r *SidecarRecord) clone() SidecarRecord {
	out := SidecarRecord{
		Values:   make(map[string]string, len(r.Values)),
		RefCount: r.RefCount,
		Sources:  append([]string(nil), r.Sources...),
	}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// SidecarDB holds per-image sidecar records plus the global sections.
type SidecarDB struct {
	mu       sync.Mutex
	records  map[string]*SidecarRecord
	contacts map[string]string
	global   map[string]string
	files    map[string]bool
}

func NewSidecarDB() *SidecarDB {
	return &SidecarDB{
		records:  make(map[string]*SidecarRecord),
		contacts: make(map[string]string),
		global:   make(map[string]string),
		files:    make(map[string]bool),
	}
}

// Record returns a copy of the record for an image fingerprint.
func (db *SidecarDB) Record(fingerprint string) (SidecarRecord, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.records[fingerprint]
	if !ok {
		return SidecarRecord{}, false
	}
	return rec.clone(), true
}

// Contacts returns a copy of the shared contacts section.
func (db *SidecarDB) Contacts() map[string]string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return copyStrings(db.contacts)
}

// Global returns a copy of the shared non-contact sections.
func (db *SidecarDB) Global() map[string]string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return copyStrings(db.global)
}

// Files lists every parsed sidecar path.
func (db *SidecarDB) Files() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, len(db.files))
	for f := range db.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Parsed reports whether the sidecar file at path was already ingested.
func (db *SidecarDB) Parsed(path string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.files[path]
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type parserState int

const (
	stateIdle parserState = iota
	stateContacts
	stateImage
	stateGlobal
)

// sidecarParser is the line state machine for one sidecar file.
type sidecarParser struct {
	db      *SidecarDB
	source  string
	dir     string
	resolve func(path string) string
	log     logrus.FieldLogger

	state     parserState
	image     string // fingerprint of the active image section
	imageName string
	conflicts []error
}

// Parse ingests one sidecar file read from r. dir is the directory holding
// the sidecar; image sections are resolved relative to it and turned into
// fingerprints by resolve. Key conflicts are returned but never stop parsing.
func (db *SidecarDB) Parse(r io.Reader, source, dir string, resolve func(string) string, log logrus.FieldLogger) ([]error, error) {
	p := &sidecarParser{
		db:      db,
		source:  source,
		dir:     dir,
		resolve: resolve,
		log:     log,
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSidecarLine)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return p.conflicts, fmt.Errorf("read sidecar %s: %w", source, err)
	}

	db.mu.Lock()
	db.files[source] = true
	db.mu.Unlock()

	return p.conflicts, nil
}

func (p *sidecarParser) line(raw string) {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if s == "" || strings.HasPrefix(s, ";") || strings.HasPrefix(s, "#") {
		return
	}

	if m := sectionHeader.FindStringSubmatch(s); m != nil {
		p.section(m[sectionHeader.SubexpIndex("name")])
		return
	}

	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		p.log.WithField("sidecar", p.source).Debugf("Ignoring malformed line %q", s)
		return
	}
	p.value(key, strings.TrimSpace(value))
}

func (p *sidecarParser) section(name string) {
	switch name {
	case sectionContacts:
		p.state = stateContacts
		return
	case sectionEncoding, sectionAlbum:
		p.state = stateGlobal
		return
	}

	fp := p.resolve(filepath.Join(p.dir, name))
	p.state = stateImage
	p.image = fp
	p.imageName = name

	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	rec, ok := p.db.records[fp]
	if !ok {
		rec = &SidecarRecord{Values: make(map[string]string)}
		p.db.records[fp] = rec
	}
	rec.RefCount++
	rec.Sources = append(rec.Sources, p.source)
}

func (p *sidecarParser) value(key, value string) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	switch p.state {
	case stateContacts:
		p.db.contacts[key] = value
	case stateGlobal:
		p.db.global[key] = value
	case stateImage:
		rec := p.db.records[p.image]
		if old, exists := rec.Values[key]; exists && old != value && key != benignSidecarKey {
			err := fmt.Errorf("%w: %s key %q was %q, now %q", ErrSidecarConflict, p.imageName, key, old, value)
			p.conflicts = append(p.conflicts, err)
			p.log.WithFields(logrus.Fields{
				"sidecar":     p.source,
				"image":       p.imageName,
				"fingerprint": p.image,
				"key":         key,
			}).Warnf("Conflicting sidecar value %q replaces %q", value, old)
		}
		rec.Values[key] = value
	default:
		// key=value before any section carries no owner
	}
}

// merge folds a snapshot section into the live database.
func (db *SidecarDB) merge(sec SidecarSection) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for fp, rec := range sec.Records {
		cur, ok := db.records[fp]
		if !ok {
			cp := rec.clone()
			db.records[fp] = &cp
			continue
		}
		cur.RefCount += rec.RefCount
		cur.Sources = append(cur.Sources, rec.Sources...)
		for k, v := range rec.Values {
			cur.Values[k] = v
		}
	}
	for k, v := range sec.Contacts {
		db.contacts[k] = v
	}
	for k, v := range sec.Global {
		db.global[k] = v
	}
	for _, f := range sec.Files {
		db.files[f] = true
	}
}

func (db *SidecarDB) section() SidecarSection {
	db.mu.Lock()
	defer db.mu.Unlock()
	sec := SidecarSection{
		Records:  make(map[string]SidecarRecord, len(db.records)),
		Contacts: copyStrings(db.contacts),
		Global:   copyStrings(db.global),
		Files:    make([]string, 0, len(db.files)),
	}
	for fp, rec := range db.records {
		sec.Records[fp] = rec.clone()
	}
	for f := range db.files {
		sec.Files = append(sec.Files, f)
	}
	sort.Strings(sec.Files)
	return sec
}
