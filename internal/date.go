package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	mp4 "github.com/abema/go-mp4"
	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
)

// Date is a calendar day with no time or zone.
type Date struct {
	Year  int `json:"year" yaml:"year"`
	Month int `json:"month" yaml:"month"`
	Day   int `json:"day" yaml:"day"`
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Valid reports whether d is a real day in the 1900-2099 range.
func (d Date) Valid() bool {
	if d.Year < 1900 || d.Year > 2099 || d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return t.Day() == d.Day
}

// Before orders dates chronologically.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func dateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// datePatterns are tried in order; the first valid match wins. The compact
// forms must be bounded by non-digits so longer digit runs never match.
var datePatterns = []struct {
	re   *regexp.Regexp
	desc string
}{
	{regexp.MustCompile(`(?P<month>\d{1,2})-(?P<day>\d{1,2})-(?P<year>(?:19|20)\d{2})`), "MM-DD-YYYY"},
	{regexp.MustCompile(`(?P<month>\d{1,2})_(?P<day>\d{1,2})_(?P<year>(?:19|20)\d{2})`), "MM_DD_YYYY"},
	{regexp.MustCompile(`(?:^|\D)(?P<month>\d{2})(?P<day>\d{2})(?P<year>(?:19|20)\d{2})(?:\D|$)`), "MMDDYYYY"},
	{regexp.MustCompile(`(?P<year>(?:19|20)\d{2})-(?P<month>\d{1,2})-(?P<day>\d{1,2})`), "YYYY-MM-DD"},
	{regexp.MustCompile(`(?:^|\D)(?P<year>(?:19|20)\d{2})(?P<month>\d{2})(?P<day>\d{2})(?:\D|$)`), "YYYYMMDD"},
}

func submatchInt(re *regexp.Regexp, m []string, name string) int {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(m) {
		return 0
	}
	n, err := strconv.Atoi(m[idx])
	if err != nil {
		return 0
	}
	return n
}

// matchDate looks for the first date-like substring in s.
func matchDate(s string) (Date, bool) {
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatch(s, -1) {
			d := Date{
				Year:  submatchInt(p.re, m, "year"),
				Month: submatchInt(p.re, m, "month"),
				Day:   submatchInt(p.re, m, "day"),
			}
			if d.Valid() {
				return d, true
			}
		}
	}
	return Date{}, false
}

// FromFileName extracts a date from a file's base name, extension excluded.
func FromFileName(name string) (Date, bool) {
	base := filepath.Base(name)
	return matchDate(strings.TrimSuffix(base, filepath.Ext(base)))
}

// FromDirectoryName extracts a date from the containing directory, trying the
// deepest path element first.
func FromDirectoryName(dir string) (Date, bool) {
	parts := strings.FieldsFunc(dir, func(r rune) bool { return r == '/' || r == '\\' })
	for i := len(parts) - 1; i >= 0; i-- {
		if d, ok := matchDate(parts[i]); ok {
			return d, true
		}
	}
	return Date{}, false
}

// FromModificationTime returns the local calendar day of the file's mtime.
func FromModificationTime(path string) (Date, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return Date{}, false
	}
	return dateOf(fi.ModTime()), true
}

// FromEmbeddedMetadata reads the capture date with the built-in readers.
func FromEmbeddedMetadata(path string) (Date, bool) {
	d, ok, _ := fromReader(defaultMetadataReader, path)
	return d, ok
}

// fromReader returns the reader's error only when the file could not be
// read. Missing or undecodable tags are an ordinary miss.
func fromReader(r MetadataReader, path string) (Date, bool, error) {
	t, err := r.DateTaken(path)
	if err != nil {
		if isReadError(err) {
			return Date{}, false, err
		}
		return Date{}, false, nil
	}
	if t.IsZero() {
		return Date{}, false, nil
	}
	d := dateOf(t)
	return d, d.Valid(), nil
}

func isReadError(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe)
}

// MetadataReader reads the capture time stored inside a media file.
type MetadataReader interface {
	DateTaken(path string) (time.Time, error)
}

var errNoDateTag = errors.New("no date tag")

const exifLayout = "2006:01:02 15:04:05"

func parseExifTime(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if len(s) > len(exifLayout) {
		s = s[:len(exifLayout)]
	}
	return time.Parse(exifLayout, s)
}

// ExifReader decodes EXIF DateTimeOriginal with goexif.
type ExifReader struct{}

func (ExifReader) DateTaken(path string) (t time.Time, err error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	// goexif panics on some truncated tiff structures.
	defer func() {
		if r := recover(); r != nil {
			t, err = time.Time{}, fmt.Errorf("exif decode %s: %v", path, r)
		}
	}()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, err
	}

	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, err
	}

	dateStr, err := tag.StringVal()
	if err != nil {
		return time.Time{}, err
	}

	return parseExifTime(dateStr)
}

// Seconds between 1904-01-01 (QuickTime epoch) and 1970-01-01.
const appleEpochOffset = 2082844800

var mp4Extensions = map[string]bool{".mp4": true, ".mov": true, ".m4v": true, ".3gp": true}

// MP4Reader reads the movie header creation time of ISO-BMFF videos.
type MP4Reader struct{}

func (MP4Reader) DateTaken(path string) (time.Time, error) {
	if !mp4Extensions[strings.ToLower(filepath.Ext(path))] {
		return time.Time{}, errNoDateTag
	}

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	boxes, err := mp4.ExtractBoxesWithPayload(f, nil, []mp4.BoxPath{
		{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("mp4 structure %s: %w", path, err)
	}

	for _, box := range boxes {
		mvhd, ok := box.Payload.(*mp4.Mvhd)
		if !ok {
			continue
		}
		var created uint64
		if mvhd.GetVersion() == 0 {
			created = uint64(mvhd.CreationTimeV0)
		} else {
			created = mvhd.CreationTimeV1
		}
		if created <= appleEpochOffset {
			return time.Time{}, errNoDateTag
		}
		return time.Unix(int64(created)-appleEpochOffset, 0), nil
	}
	return time.Time{}, errNoDateTag
}

// ExifToolReader asks a running exiftool process for the capture date.
// It understands far more containers than the pure Go readers.
type ExifToolReader struct {
	et *exiftool.Exiftool
}

// NewExifToolReader starts exiftool. Close must be called to stop it.
func NewExifToolReader() (*ExifToolReader, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("failed to start exiftool: %w", err)
	}
	return &ExifToolReader{et: et}, nil
}

func (r *ExifToolReader) DateTaken(path string) (time.Time, error) {
	infos := r.et.ExtractMetadata(path)
	if len(infos) == 0 {
		return time.Time{}, errNoDateTag
	}
	if infos[0].Err != nil {
		return time.Time{}, infos[0].Err
	}
	for _, key := range []string{"DateTimeOriginal", "CreateDate", "MediaCreateDate"} {
		s, err := infos[0].GetString(key)
		if err != nil {
			continue
		}
		if t, err := parseExifTime(s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errNoDateTag
}

func (r *ExifToolReader) Close() error {
	return r.et.Close()
}

// readerChain returns the first successful reader's answer.
type readerChain []MetadataReader

func (c readerChain) DateTaken(path string) (time.Time, error) {
	err := errNoDateTag
	for _, r := range c {
		t, rerr := r.DateTaken(path)
		if rerr == nil && !t.IsZero() {
			return t, nil
		}
		// A read failure outranks a decode miss from a later reader
		if rerr != nil && !isReadError(err) {
			err = rerr
		}
	}
	return time.Time{}, err
}

var defaultMetadataReader MetadataReader = readerChain{ExifReader{}, MP4Reader{}}

// Extractor runs the four date extractors for one file.
type Extractor struct {
	Metadata MetadataReader
}

// Extract resolves each source or leaves it nil. The error reports a file
// whose metadata could not be read at all; the candidates are still usable.
func (x Extractor) Extract(path, dir, name string) (Candidates, error) {
	var c Candidates
	meta := x.Metadata
	if meta == nil {
		meta = defaultMetadataReader
	}
	d, ok, readErr := fromReader(meta, path)
	if ok {
		c.Metadata = &d
	}
	if d, ok := FromFileName(name); ok {
		c.Filename = &d
	}
	if d, ok := FromDirectoryName(dir); ok {
		c.Directory = &d
	}
	if d, ok := FromModificationTime(path); ok {
		c.Mtime = &d
	}
	if readErr != nil {
		return c, fmt.Errorf("read metadata: %w", readErr)
	}
	return c, nil
}
