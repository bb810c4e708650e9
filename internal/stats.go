package internal

import (
	"sort"
	"sync"
)

// StatKey names a statistics counter.
type StatKey string

const (
	StatTotalFiles StatKey = "Total files"
	StatPictures   StatKey = "Picture count"
	StatRaw        StatKey = "Raw count"
	StatVideos     StatKey = "Video count"
	StatMetafiles  StatKey = "Metafile count"
	StatCompanions StatKey = "Companion count"
	StatRejects    StatKey = "Reject count"
	StatCollisions StatKey = "Collision count"
	StatErrors     StatKey = "Error"

	StatDateMetadata  StatKey = "Date from metadata"
	StatDateFilename  StatKey = "Date from filename"
	StatDateDirectory StatKey = "Date from directory"
	StatDateMtime     StatKey = "Date from mtime"
	StatUnresolved    StatKey = "Unresolved dates"
)

var allStatKeys = []StatKey{
	StatTotalFiles, StatPictures, StatRaw, StatVideos, StatMetafiles, StatCompanions,
	StatRejects, StatCollisions, StatErrors,
	StatDateMetadata, StatDateFilename, StatDateDirectory, StatDateMtime, StatUnresolved,
}

func categoryStat(c Category) StatKey {
	switch c {
	case CategoryPicture:
		return StatPictures
	case CategoryRaw:
		return StatRaw
	case CategoryVideo:
		return StatVideos
	case CategorySidecar:
		return StatMetafiles
	case CategoryCompanion:
		return StatCompanions
	case CategoryRejected:
		return StatRejects
	}
	return StatErrors
}

func sourceStat(src DateSource) StatKey {
	switch src {
	case SourceMetadata:
		return StatDateMetadata
	case SourceFilename:
		return StatDateFilename
	case SourceDirectory:
		return StatDateDirectory
	}
	return StatDateMtime
}

// Statistics is a set of counters mutated alongside the registry.
type Statistics struct {
	mu     sync.Mutex
	counts map[StatKey]int
}

// StatLine is one row of a statistics listing.
type StatLine struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func NewStatistics() *Statistics {
	s := &Statistics{counts: make(map[StatKey]int, len(allStatKeys))}
	for _, k := range allStatKeys {
		s.counts[k] = 0
	}
	return s
}

func (s *Statistics) Add(key StatKey, n int) {
	s.mu.Lock()
	s.counts[key] += n
	s.mu.Unlock()
}

func (s *Statistics) Inc(key StatKey) { s.Add(key, 1) }
func (s *Statistics) Dec(key StatKey) { s.Add(key, -1) }

func (s *Statistics) Get(key StatKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Map returns a copy of the counters keyed by name.
func (s *Statistics) Map() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[string(k)] = v
	}
	return out
}

// Listing returns every counter sorted by name.
func (s *Statistics) Listing() []StatLine {
	m := s.Map()
	lines := make([]StatLine, 0, len(m))
	for name, count := range m {
		lines = append(lines, StatLine{Name: name, Count: count})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
	return lines
}

// merge adds counters loaded from a snapshot.
func (s *Statistics) merge(m map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range m {
		s.counts[StatKey(k)] += v
	}
}
