package transform

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelbatch/internal/domain"
)

const (
	blurSigma    = 2.0
	sharpenSigma = 1.0
)

// Sepia channel multipliers applied to the grayscale value.
const (
	sepiaRed   = 1.07
	sepiaGreen = 0.74
	sepiaBlue  = 0.43
)

// ApplyFilter runs the named filter. A failing filter leaves the image as it
// was and reports the stage as skipped.
func ApplyFilter(src *image.NRGBA, name string) (out *image.NRGBA, outcome StageOutcome) {
	if name == "" || name == domain.FilterNone {
		return src, notRequested(StageFilter)
	}

	defer func() {
		if r := recover(); r != nil {
			out, outcome = src, skipped(StageFilter, fmt.Sprintf("filter %s failed: %v", name, r))
		}
	}()

	switch name {
	case domain.FilterGrayscale:
		return imaging.Grayscale(src), applied(StageFilter)
	case domain.FilterSepia:
		return Sepia(src), applied(StageFilter)
	case domain.FilterBlur:
		return imaging.Blur(src, blurSigma), applied(StageFilter)
	case domain.FilterSharpen:
		return imaging.Sharpen(src, sharpenSigma), applied(StageFilter)
	default:
		return src, skipped(StageFilter, fmt.Sprintf("unknown filter %q", name))
	}
}

// Sepia converts to grayscale and then tints each channel with fixed
// coefficients.
func Sepia(src image.Image) *image.NRGBA {
	gray := imaging.Grayscale(src)
	return imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := float64(c.R)
		return color.NRGBA{
			R: scaleChannel(v, sepiaRed),
			G: scaleChannel(v, sepiaGreen),
			B: scaleChannel(v, sepiaBlue),
			A: c.A,
		}
	})
}

func scaleChannel(v, k float64) uint8 {
	out := v * k
	if out > 255 {
		return 255
	}
	return uint8(out)
}
