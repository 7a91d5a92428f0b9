// Package geometry resolves the target size of a transform from the requested
// dimensions, the aspect-lock flag and the named size presets.
package geometry

import (
	"fmt"
	"strings"

	"github.com/dunamismax/pixelbatch/internal/domain"
)

type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Presets maps a preset name to a fixed target size.
type Presets map[string]Size

// DefaultPresets returns the built-in preset table.
func DefaultPresets() Presets {
	return Presets{
		"instagram_story":   {Width: 1080, Height: 1920},
		"youtube_thumbnail": {Width: 1280, Height: 720},
	}
}

// Merge returns a new table with extra entries layered over p.
func (p Presets) Merge(extra Presets) Presets {
	out := make(Presets, len(p)+len(extra))
	for name, size := range p {
		out[name] = size
	}
	for name, size := range extra {
		if size.Width > 0 && size.Height > 0 {
			out[strings.ToLower(strings.TrimSpace(name))] = size
		}
	}
	return out
}

func (p Presets) Lookup(name string) (Size, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Size{}, false
	}
	size, ok := p[name]
	return size, ok
}

type Request struct {
	Width        int
	Height       int
	LockAspect   bool
	Preset       string
	CompressOnly bool
}

func FromTransform(req domain.TransformRequest) Request {
	return Request{
		Width:        req.Width,
		Height:       req.Height,
		LockAspect:   req.LockAspect,
		Preset:       req.Preset,
		CompressOnly: req.CompressOnly,
	}
}

// Resolve computes the target size for an image of size orig.
//
// Compress-only keeps the source size whatever else was requested. Otherwise
// a known preset wins and ignores the aspect lock. With the aspect lock
// on, a single supplied dimension derives the other by truncating the scaled
// product, and when both are supplied the width is kept and the height is
// recomputed. Without the lock the supplied values are used as-is and a
// missing one falls back to the source dimension.
func Resolve(orig Size, req Request, presets Presets) (Size, error) {
	if orig.Width <= 0 || orig.Height <= 0 {
		return Size{}, fmt.Errorf("source image has invalid dimensions %s", orig)
	}

	if req.CompressOnly {
		return orig, nil
	}
	if size, ok := presets.Lookup(req.Preset); ok {
		return size, nil
	}

	if req.Width <= 0 && req.Height <= 0 {
		return Size{}, domain.ErrInvalidDimensions
	}

	width, height := req.Width, req.Height
	switch {
	case req.LockAspect && width > 0:
		height = atLeastOne(int(float64(width) / float64(orig.Width) * float64(orig.Height)))
	case req.LockAspect && height > 0:
		width = atLeastOne(int(float64(height) / float64(orig.Height) * float64(orig.Width)))
	default:
		if width <= 0 {
			width = orig.Width
		}
		if height <= 0 {
			height = orig.Height
		}
	}

	return Size{Width: width, Height: height}, nil
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// Check reports ErrInvalidDimensions for requests that cannot resolve to a
// size for any source image.
func Check(req Request, presets Presets) error {
	if _, ok := presets.Lookup(req.Preset); ok || req.CompressOnly {
		return nil
	}
	if req.Width <= 0 && req.Height <= 0 {
		return domain.ErrInvalidDimensions
	}
	return nil
}
