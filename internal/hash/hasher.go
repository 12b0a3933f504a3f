package hash

import (
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"math/bits"
	"os"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	sha256 "github.com/minio/sha256-simd"
	_ "golang.org/x/image/webp"

	"photodedup/internal/models"
)

// Algorithm selects the perceptual hash variant.
type Algorithm string

const (
	Average    Algorithm = "average"    // 8x8 mean threshold
	Difference Algorithm = "difference" // 9x8 row gradient
	Perception Algorithm = "perception" // 64x64 DCT, low frequencies vs median
)

// algorithmRevision is bumped whenever hashing output changes for the same
// input (resampling bound, orientation handling, library upgrade).
const algorithmRevision = 1

// DefaultMaxSide bounds the decoded image before perceptual hashing.
const DefaultMaxSide = 256

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case Average, Difference, Perception:
		return a, nil
	case "ahash":
		return Average, nil
	case "dhash":
		return Difference, nil
	case "phash", "dct":
		return Perception, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", s)
	}
}

// Hasher computes content and perceptual hashes for images
type Hasher struct {
	algo    Algorithm
	maxSide int
}

// Option configures a Hasher
type Option func(*Hasher)

// WithAlgorithm sets the perceptual hash variant
func WithAlgorithm(a Algorithm) Option {
	return func(h *Hasher) {
		if a != "" {
			h.algo = a
		}
	}
}

// WithMaxSide bounds the resampled image used for perceptual hashing
func WithMaxSide(n int) Option {
	return func(h *Hasher) {
		if n > 0 {
			h.maxSide = n
		}
	}
}

// NewHasher creates a new Hasher
func NewHasher(opts ...Option) *Hasher {
	h := &Hasher{
		algo:    Perception,
		maxSide: DefaultMaxSide,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Algorithm returns the configured perceptual hash variant.
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

// Version identifies the hash output. Cached hashes with a different version
// are stale.
func (h *Hasher) Version() string {
	return fmt.Sprintf("%s/v%d/%d", h.algo, algorithmRevision, h.maxSide)
}

// HashFile decodes the image at path and computes its HashSet. The content
// digest covers every byte of the file, read in the same pass as decoding.
func (h *Hasher) HashFile(path string) (*models.HashSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, models.PathError(path, err)
	}
	defer file.Close()

	digest := sha256.New()
	img, err := imaging.Decode(io.TeeReader(file, digest), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &models.DecodeError{Path: path, Err: err}
	}
	if _, err := io.Copy(digest, file); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	perceptual, err := h.Perceptual(img)
	if err != nil {
		return nil, &models.DecodeError{Path: path, Err: err}
	}

	return &models.HashSet{
		ContentHash: hex.EncodeToString(digest.Sum(nil)),
		Perceptual:  perceptual,
		Algorithm:   string(h.algo),
		Version:     h.Version(),
	}, nil
}

// Perceptual computes the configured perceptual hash of a decoded image.
func (h *Hasher) Perceptual(img image.Image) (uint64, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0, fmt.Errorf("empty image")
	}
	if b.Dx() > h.maxSide || b.Dy() > h.maxSide {
		img = imaging.Fit(img, h.maxSide, h.maxSide, imaging.Lanczos)
	}

	var (
		ih  *goimagehash.ImageHash
		err error
	)
	switch h.algo {
	case Average:
		ih, err = goimagehash.AverageHash(img)
	case Difference:
		ih, err = goimagehash.DifferenceHash(img)
	default:
		ih, err = goimagehash.PerceptionHash(img)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to compute hash: %w", err)
	}
	return ih.GetHash(), nil
}

// HammingDistance calculates the Hamming distance between two hashes
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}
