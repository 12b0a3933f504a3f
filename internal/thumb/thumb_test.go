package thumb

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"photodedup/internal/models"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestThumbnail_GeneratesOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.png")
	writePNG(t, src, 400, 200)

	g := New(filepath.Join(dir, "thumbs"), 64)
	first, err := g.Thumbnail(src)
	if err != nil {
		t.Fatalf("Thumbnail failed: %v", err)
	}

	img, err := imaging.Open(first)
	if err != nil {
		t.Fatalf("thumbnail is not a readable image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("thumbnail size = %dx%d, want 64x32", b.Dx(), b.Dy())
	}

	info1, _ := os.Stat(first)
	second, err := g.Thumbnail(src)
	if err != nil {
		t.Fatal(err)
	}
	info2, _ := os.Stat(second)
	if first != second || !info1.ModTime().Equal(info2.ModTime()) {
		t.Error("second request should reuse the cached thumbnail")
	}
}

func TestThumbnail_ModifiedSourceGetsNewKey(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writePNG(t, src, 50, 50)

	g := New(filepath.Join(dir, "thumbs"), 0)
	first, err := g.Thumbnail(src)
	if err != nil {
		t.Fatal(err)
	}

	later := time.Now().Add(time.Hour)
	os.Chtimes(src, later, later)
	second, err := g.Thumbnail(src)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("a modified source should get a fresh thumbnail")
	}
}

func TestThumbnail_Errors(t *testing.T) {
	dir := t.TempDir()
	g := New(filepath.Join(dir, "thumbs"), 0)

	if _, err := g.Thumbnail(filepath.Join(dir, "missing.png")); !errors.Is(err, models.ErrPathNotFound) {
		t.Errorf("expected ErrPathNotFound, got %v", err)
	}

	bad := filepath.Join(dir, "bad.png")
	os.WriteFile(bad, []byte("nope"), 0644)
	var decodeErr *models.DecodeError
	if _, err := g.Thumbnail(bad); !errors.As(err, &decodeErr) {
		t.Errorf("expected DecodeError, got %v", err)
	}
}
