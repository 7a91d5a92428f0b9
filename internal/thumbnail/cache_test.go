package thumbnail

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestCacheGeneratesAndReuses(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "photo.png")
	if err := imaging.Save(imaging.New(800, 400, color.NRGBA{R: 30, G: 60, B: 90, A: 255}), src); err != nil {
		t.Fatalf("save source: %v", err)
	}

	cache, err := New(filepath.Join(tmp, "thumbs"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	first, err := cache.Get(src)
	if err != nil {
		t.Fatalf("get thumbnail: %v", err)
	}
	if filepath.Base(first) != Key(src) {
		t.Fatalf("expected thumbnail named %s, got %s", Key(src), filepath.Base(first))
	}

	f, err := os.Open(first)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if format != "jpeg" || cfg.Width != 200 || cfg.Height != 100 {
		t.Fatalf("expected 200x100 jpeg, got %dx%d %s", cfg.Width, cfg.Height, format)
	}

	if err := os.Remove(src); err != nil {
		t.Fatalf("remove source: %v", err)
	}
	second, err := cache.Get(src)
	if err != nil {
		t.Fatalf("expected cached thumbnail without source: %v", err)
	}
	if second != first {
		t.Fatalf("expected same cache path, got %s and %s", first, second)
	}
}

func TestCacheMissingSource(t *testing.T) {
	cache, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if _, err := cache.Get("/does/not/exist.png"); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestKeyIsStable(t *testing.T) {
	if Key("a/b.png") != Key("a/./b.png") {
		t.Fatal("expected cleaned paths to share a key")
	}
	if Key("a/b.png") == Key("a/c.png") {
		t.Fatal("expected different paths to differ")
	}
}
