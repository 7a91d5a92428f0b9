package transform

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// WatermarkScale caps the overlay at this fraction of the base width and height.
	WatermarkScale  = 0.25
	watermarkMargin = 10

	textLeft         = 10
	textBottomOffset = 20
)

var textColor = color.NRGBA{R: 255, G: 255, B: 255, A: 128}

// OverlayImage composites the watermark asset at path onto the bottom-right
// corner of base. Any load or decode error skips the stage.
func OverlayImage(base *image.NRGBA, path string) (*image.NRGBA, StageOutcome) {
	if path == "" {
		return base, notRequested(StageWatermarkMark)
	}

	mark, err := imaging.Open(path)
	if err != nil {
		return base, skipped(StageWatermarkMark, fmt.Sprintf("load watermark: %v", err))
	}
	return OverlayMark(base, mark)
}

func OverlayMark(base *image.NRGBA, mark image.Image) (*image.NRGBA, StageOutcome) {
	bounds := base.Bounds()
	maxW := int(float64(bounds.Dx()) * WatermarkScale)
	maxH := int(float64(bounds.Dy()) * WatermarkScale)
	if maxW < 1 || maxH < 1 {
		return base, skipped(StageWatermarkMark, "image too small for watermark")
	}

	scaled := imaging.Fit(mark, maxW, maxH, imaging.Lanczos)
	pos := image.Pt(
		max(0, bounds.Dx()-scaled.Bounds().Dx()-watermarkMargin),
		max(0, bounds.Dy()-scaled.Bounds().Dy()-watermarkMargin),
	)
	return imaging.Overlay(base, scaled, pos, 1.0), applied(StageWatermarkMark)
}

// DrawText writes text near the bottom-left corner in semi-transparent white
// using the built-in bitmap face.
func DrawText(base *image.NRGBA, text string) (out *image.NRGBA, outcome StageOutcome) {
	if text == "" {
		return base, notRequested(StageWatermarkText)
	}

	defer func() {
		if r := recover(); r != nil {
			out, outcome = base, skipped(StageWatermarkText, fmt.Sprintf("render text: %v", r))
		}
	}()

	dst := imaging.Clone(base)
	face := basicfont.Face7x13
	top := dst.Bounds().Dy() - textBottomOffset
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(textLeft, top+face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(text)
	return dst, applied(StageWatermarkText)
}

