// Package thumb generates and caches small JPEG previews.
package thumb

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"

	"photodedup/internal/models"
)

// DefaultSize is the longest side of a generated thumbnail.
const DefaultSize = 256

// Generator writes thumbnails into a directory, keyed by file identity.
type Generator struct {
	dir  string
	size int
}

// New creates a Generator storing thumbnails in dir.
func New(dir string, size int) *Generator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Generator{dir: dir, size: size}
}

// Key identifies a source file version. A modified file gets a new key.
func Key(path string, info os.FileInfo, size int) string {
	h := xxhash.New()
	h.WriteString(path)
	binary.Write(h, binary.LittleEndian, info.Size())
	binary.Write(h, binary.LittleEndian, info.ModTime().UnixNano())
	binary.Write(h, binary.LittleEndian, int64(size))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Thumbnail returns the path of the preview for path, generating it on the
// first request.
func (g *Generator) Thumbnail(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", models.PathError(path, err)
	}

	dest := filepath.Join(g.dir, Key(path, info, g.size)+".jpg")
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", &models.DecodeError{Path: path, Err: err}
	}
	img = imaging.Fit(img, g.size, g.size, imaging.Lanczos)

	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	// Write under a temporary name so readers never see a partial file
	tmp, err := os.CreateTemp(g.dir, "thumb-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail: %w", err)
	}
	tmpPath := tmp.Name()
	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store thumbnail: %w", err)
	}
	return dest, nil
}
