package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"photodedup/internal/models"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0, 0, 0},
		{"one bit", 1, 0, 1},
		{"two bits", 3, 0, 2},
		{"all bits", 0xFFFFFFFFFFFFFFFF, 0, 64},
		{"half bits", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
		{"similar", 0x8000000000000000, 0x8000000000000001, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HammingDistance(tt.hash1, tt.hash2)
			if got != tt.expected {
				t.Errorf("HammingDistance(%x, %x) = %d, want %d", tt.hash1, tt.hash2, got, tt.expected)
			}
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"average", Average, false},
		{"ahash", Average, false},
		{"difference", Difference, false},
		{"dhash", Difference, false},
		{"perception", Perception, false},
		{"phash", Perception, false},
		{"dct", Perception, false},
		{"wavelet", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAlgorithm(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAlgorithm(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVersion_ChangesWithAlgorithm(t *testing.T) {
	seen := make(map[string]Algorithm)
	for _, a := range []Algorithm{Average, Difference, Perception} {
		v := NewHasher(WithAlgorithm(a)).Version()
		if other, ok := seen[v]; ok {
			t.Errorf("algorithms %s and %s share version %q", a, other, v)
		}
		seen[v] = a
	}

	if NewHasher(WithMaxSide(128)).Version() == NewHasher(WithMaxSide(256)).Version() {
		t.Error("resample bound should be part of the version")
	}
}

func TestHashFile_ContentHashMatchesFileDigest(t *testing.T) {
	path := writeQuadrants(t, t.TempDir(), "q.png", 64)

	hs, err := NewHasher().HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	if want := hex.EncodeToString(sum[:]); hs.ContentHash != want {
		t.Errorf("content hash = %s, want %s", hs.ContentHash, want)
	}
	if hs.Algorithm != string(Perception) {
		t.Errorf("algorithm = %q, want %q", hs.Algorithm, Perception)
	}
}

func TestHashFile_SameImage_IdenticalHash(t *testing.T) {
	path := writeQuadrants(t, t.TempDir(), "q.png", 64)

	for _, algo := range []Algorithm{Average, Difference, Perception} {
		t.Run(string(algo), func(t *testing.T) {
			h := NewHasher(WithAlgorithm(algo))

			first, err := h.HashFile(path)
			if err != nil {
				t.Fatalf("first HashFile failed: %v", err)
			}
			second, err := h.HashFile(path)
			if err != nil {
				t.Fatalf("second HashFile failed: %v", err)
			}
			if !first.Equal(second) {
				t.Errorf("same image should have identical hashes: %+v != %+v", first, second)
			}
		})
	}
}

func TestHashFile_ResizedCopyIsClose(t *testing.T) {
	dir := t.TempDir()
	big := writeQuadrants(t, dir, "big.png", 512)
	small := writeQuadrants(t, dir, "small.png", 32)

	h := NewHasher(WithAlgorithm(Average))
	a, err := h.HashFile(big)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.HashFile(small)
	if err != nil {
		t.Fatal(err)
	}
	if d := HammingDistance(a.Perceptual, b.Perceptual); d > 3 {
		t.Errorf("distance between resized copies = %d, want <= 3", d)
	}
	if a.ContentHash == b.ContentHash {
		t.Error("different files should have different content hashes")
	}
}

func TestHashFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	data := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0xde, 0xad, 0xbe, 0xef}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := NewHasher().HashFile(path)
	var decodeErr *models.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Path != path {
		t.Errorf("DecodeError.Path = %q, want %q", decodeErr.Path, path)
	}
}

func TestHashFile_Missing(t *testing.T) {
	_, err := NewHasher().HashFile(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, models.ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}
}

func TestPerceptual_BoundsLargeImages(t *testing.T) {
	h := NewHasher(WithAlgorithm(Average), WithMaxSide(64))
	img := imaging.New(2000, 1000, color.White)

	if _, err := h.Perceptual(img); err != nil {
		t.Fatalf("Perceptual failed: %v", err)
	}
	if _, err := h.Perceptual(image.NewGray(image.Rect(0, 0, 0, 0))); err == nil {
		t.Error("expected error for empty image")
	}
}

// writeQuadrants writes a size x size PNG split into black and white quadrants.
func writeQuadrants(t *testing.T, dir, name string, size int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	half := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x < half) == (y < half) {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}
