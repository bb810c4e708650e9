package internal

// DateSource names where a resolved date came from.
type DateSource string

const (
	SourceMetadata  DateSource = "metadata"
	SourceFilename  DateSource = "filename"
	SourceDirectory DateSource = "directory"
	SourceMtime     DateSource = "mtime"
)

// sourcePriority is the override order, most trustworthy first.
var sourcePriority = []DateSource{SourceMetadata, SourceFilename, SourceDirectory, SourceMtime}

// Candidates holds one optional date per source. Nil means unresolved.
type Candidates struct {
	Metadata  *Date `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Filename  *Date `json:"filename,omitempty" yaml:"filename,omitempty"`
	Directory *Date `json:"directory,omitempty" yaml:"directory,omitempty"`
	Mtime     *Date `json:"mtime,omitempty" yaml:"mtime,omitempty"`
}

// Get returns the candidate for src.
func (c Candidates) Get(src DateSource) (Date, bool) {
	var d *Date
	switch src {
	case SourceMetadata:
		d = c.Metadata
	case SourceFilename:
		d = c.Filename
	case SourceDirectory:
		d = c.Directory
	case SourceMtime:
		d = c.Mtime
	}
	if d == nil {
		return Date{}, false
	}
	return *d, true
}

// Resolved lists every source that produced a date, in priority order.
func (c Candidates) Resolved() []DateSource {
	var out []DateSource
	for _, src := range sourcePriority {
		if _, ok := c.Get(src); ok {
			out = append(out, src)
		}
	}
	return out
}

func (c Candidates) clone() Candidates {
	cp := func(d *Date) *Date {
		if d == nil {
			return nil
		}
		v := *d
		return &v
	}
	return Candidates{
		Metadata:  cp(c.Metadata),
		Filename:  cp(c.Filename),
		Directory: cp(c.Directory),
		Mtime:     cp(c.Mtime),
	}
}

// Arbitrate picks the first available candidate in priority order. There is
// no voting: an embedded date always beats path-derived ones.
func Arbitrate(c Candidates) (Date, DateSource, bool) {
	for _, src := range sourcePriority {
		if d, ok := c.Get(src); ok {
			return d, src, true
		}
	}
	return Date{}, "", false
}
