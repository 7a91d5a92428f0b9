package transform

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelbatch/internal/domain"
)

// PadFill is the color used for the empty area in pad mode.
var PadFill = color.NRGBA{R: 255, G: 255, B: 255, A: 0}

// Resize maps src into a width x height box using one of the resize modes.
// The mode is expected to be validated by the caller.
func Resize(src image.Image, width, height int, mode string) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("resize requires positive target size, got %dx%d", width, height)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("source image has invalid dimensions")
	}

	switch mode {
	case domain.ResizeCrop:
		return imaging.Fill(src, width, height, imaging.Center, imaging.Lanczos), nil
	case domain.ResizeFit:
		w, h := containSize(bounds.Dx(), bounds.Dy(), width, height)
		return imaging.Resize(src, w, h, imaging.Lanczos), nil
	case domain.ResizePad:
		w, h := containSize(bounds.Dx(), bounds.Dy(), width, height)
		canvas := imaging.New(width, height, PadFill)
		return imaging.PasteCenter(canvas, imaging.Resize(src, w, h, imaging.Lanczos)), nil
	default:
		return imaging.Resize(src, width, height, imaging.Lanczos), nil
	}
}

// containSize returns the largest size with the source aspect ratio that fits
// inside the box. It scales up as well as down.
func containSize(srcW, srcH, boxW, boxH int) (int, int) {
	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	return clamp(w, 1, boxW), clamp(h, 1, boxH)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
