// Package thumbnail keeps small JPEG previews of processed images on disk.
package thumbnail

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelbatch/internal/transform"
)

const (
	DefaultSize    = 200
	defaultQuality = 85
)

type Cache struct {
	Dir  string
	Size int
}

func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("thumbnail directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}
	return &Cache{Dir: dir, Size: DefaultSize}, nil
}

// Key derives the cache file name for a source image path.
func Key(path string) string {
	return strconv.FormatUint(xxhash.Sum64String(filepath.Clean(path)), 16) + ".jpg"
}

// Get returns the path of the thumbnail for src, generating it on first use.
func (c *Cache) Get(src string) (string, error) {
	dst := filepath.Join(c.Dir, Key(src))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat thumbnail: %w", err)
	}

	img, err := imaging.Open(src)
	if err != nil {
		return "", fmt.Errorf("open thumbnail source: %w", err)
	}

	size := c.Size
	if size <= 0 {
		size = DefaultSize
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	tmp, err := os.CreateTemp(c.Dir, ".thumb-*")
	if err != nil {
		return "", fmt.Errorf("create thumbnail temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := imaging.Encode(tmp, transform.Flatten(thumb), imaging.JPEG, imaging.JPEGQuality(defaultQuality)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close thumbnail temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	return dst, nil
}
