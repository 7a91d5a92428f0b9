package domain

import (
	"fmt"
	"strings"
)

const (
	ResizeStretch = "stretch"
	ResizeCrop    = "crop"
	ResizeFit     = "fit"
	ResizePad     = "pad"

	FilterNone      = "none"
	FilterGrayscale = "grayscale"
	FilterSepia     = "sepia"
	FilterBlur      = "blur"
	FilterSharpen   = "sharpen"

	DefaultFormat  = "jpg"
	DefaultQuality = 80

	maxDimension = 10000
)

var outputFormats = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
	"bmp":  true,
	"tiff": true,
}

// TransformRequest is the shared, per-batch option set. It is treated as
// immutable once a batch starts.
type TransformRequest struct {
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	LockAspect       bool   `json:"lock_aspect,omitempty"`
	ResizeMode       string `json:"resize_mode,omitempty"`
	Format           string `json:"format,omitempty"`
	Quality          int    `json:"quality,omitempty"`
	Prefix           string `json:"prefix,omitempty"`
	Preset           string `json:"preset,omitempty"`
	Filter           string `json:"filter,omitempty"`
	RemoveBackground bool   `json:"remove_bg,omitempty"`
	WatermarkPath    string `json:"watermark_path,omitempty"`
	WatermarkText    string `json:"watermark_text,omitempty"`
	StripMetadata    bool   `json:"strip_metadata,omitempty"`
	CompressOnly     bool   `json:"compress_only,omitempty"`
	UserID           string `json:"-"`
}

// Normalize returns a copy with defaults applied and enum values lower-cased.
func (r TransformRequest) Normalize() TransformRequest {
	r.ResizeMode = strings.ToLower(strings.TrimSpace(r.ResizeMode))
	if r.ResizeMode == "" {
		r.ResizeMode = ResizeStretch
	}
	r.Filter = strings.ToLower(strings.TrimSpace(r.Filter))
	if r.Filter == "" {
		r.Filter = FilterNone
	}
	r.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.Format), "."))
	if r.Format == "" {
		r.Format = DefaultFormat
	}
	if r.Quality == 0 {
		r.Quality = DefaultQuality
	}
	r.Preset = strings.TrimSpace(r.Preset)
	r.WatermarkText = strings.TrimSpace(r.WatermarkText)
	r.WatermarkPath = strings.TrimSpace(r.WatermarkPath)
	return r
}

func (r TransformRequest) Validate() error {
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("%w: width and height must not be negative", ErrInvalidInput)
	}
	if r.Width > maxDimension || r.Height > maxDimension {
		return fmt.Errorf("%w: width and height must be at most %d", ErrInvalidInput, maxDimension)
	}
	if r.Quality < 1 || r.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 1 and 100, got %d", ErrInvalidInput, r.Quality)
	}
	switch r.ResizeMode {
	case ResizeStretch, ResizeCrop, ResizeFit, ResizePad:
	default:
		return fmt.Errorf("%w: unsupported resize_mode %q", ErrInvalidInput, r.ResizeMode)
	}
	switch r.Filter {
	case FilterNone, FilterGrayscale, FilterSepia, FilterBlur, FilterSharpen:
	default:
		return fmt.Errorf("%w: unsupported filter %q", ErrInvalidInput, r.Filter)
	}
	if !outputFormats[r.Format] {
		return fmt.Errorf("%w: unsupported output format %q", ErrInvalidInput, r.Format)
	}
	return nil
}

// HasExplicitSize reports whether the caller supplied any target dimension.
func (r TransformRequest) HasExplicitSize() bool {
	return r.Width > 0 || r.Height > 0
}
