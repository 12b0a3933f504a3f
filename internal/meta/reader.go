// Package meta reads file-level and embedded metadata for a single image.
package meta

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"photodedup/internal/models"
)

// ErrNotImage is returned when a file's leading bytes match no known image signature.
var ErrNotImage = models.ErrNotImage

// exifLayout is the EXIF date format "YYYY:MM:DD HH:MM:SS".
const exifLayout = "2006:01:02 15:04:05"

// sniffLen is the header size filetype needs to match every signature it knows.
const sniffLen = 262

var supportedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".bmp":  {},
	".webp": {},
	".tiff": {},
	".tif":  {},
	".ico":  {},
	".heic": {},
	".heif": {},
}

// IsSupportedImage checks if a file has an image extension from the allow-list
func IsSupportedImage(path string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Reader extracts size, dimensions, format and embedded metadata.
type Reader struct {
	loc *time.Location
}

// NewReader creates a Reader that interprets EXIF timestamps in loc.
// A nil loc means time.Local.
func NewReader(loc *time.Location) *Reader {
	if loc == nil {
		loc = time.Local
	}
	return &Reader{loc: loc}
}

// Read builds an ImageRecord for path. It fails only when the file cannot be
// opened or is not an image at all; undecodable headers and missing EXIF
// leave the corresponding fields empty.
func (r *Reader) Read(path string) (*models.ImageRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, models.PathError(path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	head = head[:n]
	if !filetype.IsImage(head) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotImage)
	}

	rec := &models.ImageRecord{
		Path:    path,
		Size:    stat.Size(),
		ModTime: stat.ModTime(),
	}
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		rec.Format = normalizeFormat(kind.Extension)
	}

	if _, err := file.Seek(0, io.SeekStart); err == nil {
		if cfg, format, err := image.DecodeConfig(file); err == nil {
			rec.Width = cfg.Width
			rec.Height = cfg.Height
			rec.Format = normalizeFormat(format)
		}
	}

	if _, err := file.Seek(0, io.SeekStart); err == nil {
		r.readExif(file, rec)
	}

	rec.Score = models.QualityScore(rec)
	return rec, nil
}

// readExif fills EXIF-derived fields. Missing or malformed EXIF is not an error.
func (r *Reader) readExif(rd io.Reader, rec *models.ImageRecord) {
	x, err := exif.Decode(rd)
	if err != nil {
		return
	}
	rec.HasExif = true

	if t, ok := r.exifTime(x); ok {
		rec.CreatedAt = &t
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			rec.Orientation = v
		}
	}
	rec.CameraMake = stringTag(x, exif.Make)
	rec.CameraModel = stringTag(x, exif.Model)
}

// exifTime tries DateTimeOriginal, DateTimeDigitized and DateTime in that order.
func (r *Reader) exifTime(x *exif.Exif) (time.Time, bool) {
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		if t, err := parseExifTime(tag, r.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseExifTime(tag *tiff.Tag, loc *time.Location) (time.Time, error) {
	s, err := tag.StringVal()
	if err != nil {
		return time.Time{}, err
	}
	s = strings.TrimRight(strings.TrimSpace(s), "\x00")
	if t, err := time.ParseInLocation(exifLayout, s, loc); err == nil {
		return t, nil
	}
	// Some cameras only write the date part
	return time.ParseInLocation("2006:01:02", s, loc)
}

func stringTag(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// CaptureTime returns the best-known date for path: the EXIF creation time
// if present, otherwise the filesystem modification time.
func (r *Reader) CaptureTime(path string) (time.Time, error) {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, models.PathError(path, err)
	}
	defer file.Close()

	if x, err := exif.Decode(file); err == nil {
		if t, ok := r.exifTime(x); ok {
			return t, nil
		}
	}

	stat, err := file.Stat()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat file: %w", err)
	}
	return stat.ModTime().In(r.loc), nil
}

func normalizeFormat(format string) string {
	switch f := strings.ToLower(format); f {
	case "jpg":
		return "jpeg"
	case "tif":
		return "tiff"
	default:
		return f
	}
}
