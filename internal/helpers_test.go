package internal

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// writeFile creates path with data, making parent folders as needed.
func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

// setMtime moves a file's modification time to noon on the given day.
func setMtime(t *testing.T, path string, year int, month time.Month, day int) {
	t.Helper()
	ts := time.Date(year, month, day, 12, 0, 0, 0, time.Local)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}
}

// stubReader answers DateTaken by file base name.
type stubReader map[string]time.Time

func (s stubReader) DateTaken(path string) (time.Time, error) {
	if ts, ok := s[filepath.Base(path)]; ok {
		return ts, nil
	}
	return time.Time{}, errNoDateTag
}

// newTestRegistry returns a registry logging into a test hook. Embedded
// metadata is read from stubReader{} unless another reader is passed.
func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := DefaultConfig()
	cfg.Workers = 4
	all := append([]Option{WithLogger(logger), WithMetadataReader(stubReader{})}, opts...)
	reg, err := NewRegistry(cfg, all...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg, hook
}

// createTestImage creates a test image with a simple gradient
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: uint8((x + y) % 255),
				A: 255,
			})
		}
	}
	return img
}

// exifSegment builds an APP1 segment holding a little-endian TIFF with a
// single DateTimeOriginal tag.
func exifSegment(dateTime string) []byte {
	le := binary.LittleEndian
	tiff := make([]byte, 64)
	copy(tiff, "II")
	le.PutUint16(tiff[2:], 42)
	le.PutUint32(tiff[4:], 8)

	// IFD0: one entry pointing at the Exif IFD
	le.PutUint16(tiff[8:], 1)
	le.PutUint16(tiff[10:], 0x8769)
	le.PutUint16(tiff[12:], 4)
	le.PutUint32(tiff[14:], 1)
	le.PutUint32(tiff[18:], 26)
	le.PutUint32(tiff[22:], 0)

	// Exif IFD: DateTimeOriginal, ASCII, 20 bytes at offset 44
	le.PutUint16(tiff[26:], 1)
	le.PutUint16(tiff[28:], 0x9003)
	le.PutUint16(tiff[30:], 2)
	le.PutUint32(tiff[32:], 20)
	le.PutUint32(tiff[36:], 44)
	le.PutUint32(tiff[40:], 0)
	copy(tiff[44:], dateTime+"\x00")

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

// writeExifJPEG saves a small JPEG whose EXIF DateTimeOriginal is dateTime
// ("2006:01:02 15:04:05").
func writeExifJPEG(t *testing.T, path, dateTime string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, createTestImage(16, 16), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	raw := buf.Bytes()
	data := append([]byte{}, raw[:2]...)
	data = append(data, exifSegment(dateTime)...)
	data = append(data, raw[2:]...)
	return writeFile(t, path, data)
}

func removeFile(path string) error {
	return os.Remove(path)
}
