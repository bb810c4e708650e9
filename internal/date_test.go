package internal

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"
)

func TestFromFileName(t *testing.T) {
	tests := []struct {
		name string
		want Date
		ok   bool
	}{
		{"07-04-2019 fireworks.jpg", Date{2019, 7, 4}, true},
		{"party_12_31_1999.jpg", Date{1999, 12, 31}, true},
		{"07042019.jpg", Date{2019, 7, 4}, true},
		{"scan 2001-09-11.tif", Date{2001, 9, 11}, true},
		{"20200501.jpg", Date{2020, 5, 1}, true},
		{"IMG_20190704_102030.jpg", Date{2019, 7, 4}, true},
		{"1-2-2003.jpg", Date{2003, 1, 2}, true},
		// Plausible years only
		{"07-04-1850.jpg", Date{}, false},
		{"21000101.jpg", Date{}, false},
		// No real day
		{"02-30-2019.jpg", Date{}, false},
		// Compact forms never match inside longer digit runs
		{"IMG_1201201900.jpg", Date{}, false},
		{"DSC_0001.jpg", Date{}, false},
		// The extension is not part of the name
		{"clip.20200501", Date{}, false},
	}

	for _, tt := range tests {
		got, ok := FromFileName(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: expected %v %v, got %v %v", tt.name, tt.want, tt.ok, got, ok)
		}
	}
}

func TestFromFileName_FirstPatternWins(t *testing.T) {
	// MM-DD-YYYY is tried before YYYY-MM-DD
	got, ok := FromFileName("2018-01-02 then 03-04-2005.jpg")
	if !ok || got != (Date{2005, 3, 4}) {
		t.Errorf("Expected 2005-03-04, got %v %v", got, ok)
	}
}

func TestFromDirectoryName(t *testing.T) {
	tests := []struct {
		dir  string
		want Date
		ok   bool
	}{
		{"/photos/07-04-2019 Picnic", Date{2019, 7, 4}, true},
		{"/photos/2010-01-01/trip 2012-06-15", Date{2012, 6, 15}, true},
		{"/photos/2010-01-01/misc", Date{2010, 1, 1}, true},
		{`C:\photos\20150505`, Date{2015, 5, 5}, true},
		{"/photos/misc", Date{}, false},
	}

	for _, tt := range tests {
		got, ok := FromDirectoryName(tt.dir)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s: expected %v %v, got %v %v", tt.dir, tt.want, tt.ok, got, ok)
		}
	}
}

func TestFromModificationTime(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "a.jpg"), []byte("x"))
	setMtime(t, path, 2015, time.March, 3)

	got, ok := FromModificationTime(path)
	if !ok || got != (Date{2015, 3, 3}) {
		t.Errorf("Expected 2015-03-03, got %v %v", got, ok)
	}

	if _, ok := FromModificationTime(filepath.Join(t.TempDir(), "gone.jpg")); ok {
		t.Error("Expected missing file to be unresolved")
	}
}

func TestFromEmbeddedMetadata_Exif(t *testing.T) {
	path := writeExifJPEG(t, filepath.Join(t.TempDir(), "exif.jpg"), "2019:07:04 10:20:30")

	got, ok := FromEmbeddedMetadata(path)
	if !ok || got != (Date{2019, 7, 4}) {
		t.Errorf("Expected 2019-07-04, got %v %v", got, ok)
	}
}

func TestFromEmbeddedMetadata_Tolerant(t *testing.T) {
	dir := t.TempDir()
	cases := map[string][]byte{
		"plain.jpg":   []byte("not a jpeg at all"),
		"empty.jpg":   {},
		"broken.mp4":  []byte("\x00\x00\x00\x08ftyp"),
		"clip.avi":    []byte("RIFF"),
		"header.jpeg": {0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x40, 'E', 'x', 'i', 'f', 0, 0, 'I', 'I'},
	}
	for name, data := range cases {
		path := writeFile(t, filepath.Join(dir, name), data)
		if d, ok := FromEmbeddedMetadata(path); ok {
			t.Errorf("%s: expected unresolved, got %v", name, d)
		}
		if _, _, err := fromReader(defaultMetadataReader, path); err != nil {
			t.Errorf("%s: expected a decode miss to stay silent, got %v", name, err)
		}
	}
	if _, ok := FromEmbeddedMetadata(filepath.Join(dir, "gone.jpg")); ok {
		t.Error("Expected missing file to be unresolved")
	}
}

func TestExtractor_ReadError(t *testing.T) {
	dir := t.TempDir()
	gone := filepath.Join(dir, "gone.jpg")

	// The exif reader fails to open the file; the mp4 reader only skips it
	if _, err := (readerChain{ExifReader{}, MP4Reader{}}).DateTaken(gone); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected the open failure to win over a later miss, got %v", err)
	}

	c, err := Extractor{Metadata: readerChain{ExifReader{}, MP4Reader{}}}.Extract(gone, "/photos/2012-06-15", "gone.jpg")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected ErrNotExist from Extract, got %v", err)
	}
	if d, ok := c.Get(SourceDirectory); !ok || d != (Date{2012, 6, 15}) {
		t.Errorf("Expected other sources to resolve, got %v %v", d, ok)
	}
}

func TestMP4Reader_SkipsOtherExtensions(t *testing.T) {
	path := writeExifJPEG(t, filepath.Join(t.TempDir(), "exif.jpg"), "2019:07:04 10:20:30")
	if _, err := (MP4Reader{}).DateTaken(path); err != errNoDateTag {
		t.Errorf("Expected errNoDateTag for a jpeg, got %v", err)
	}
}

func TestDate_Valid(t *testing.T) {
	tests := map[Date]bool{
		{2020, 2, 29}: true,
		{2019, 2, 29}: false,
		{1899, 1, 1}:  false,
		{2100, 1, 1}:  false,
		{2020, 13, 1}: false,
		{2020, 4, 31}: false,
		{1900, 1, 1}:  true,
	}
	for d, want := range tests {
		if d.Valid() != want {
			t.Errorf("%v: expected valid=%v", d, want)
		}
	}
}

func TestExtractor_AllSources(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "2012-06-15 trip")
	path := writeFile(t, filepath.Join(dir, "07-04-2019.jpg"), []byte("x"))
	setMtime(t, path, 2015, time.March, 3)

	x := Extractor{Metadata: stubReader{"07-04-2019.jpg": time.Date(2001, 2, 3, 4, 5, 6, 0, time.Local)}}
	c, err := x.Extract(path, dir, "07-04-2019.jpg")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	want := map[DateSource]Date{
		SourceMetadata:  {2001, 2, 3},
		SourceFilename:  {2019, 7, 4},
		SourceDirectory: {2012, 6, 15},
		SourceMtime:     {2015, 3, 3},
	}
	for src, d := range want {
		got, ok := c.Get(src)
		if !ok || got != d {
			t.Errorf("%s: expected %v, got %v %v", src, d, got, ok)
		}
	}
}
