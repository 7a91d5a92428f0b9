package transform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
)

// NearWhiteThreshold is the per-channel value above which the fallback
// strategy treats a pixel as background.
const NearWhiteThreshold = 240

const DefaultModelTimeout = 20 * time.Second

// ErrModelUnavailable reports that no segmentation model is configured.
var ErrModelUnavailable = errors.New("background model unavailable")

// Segmenter separates subject from background and returns an image of the
// same size whose alpha channel masks out the background.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (image.Image, error)
}

// BackgroundRemover tries the model strategy first and falls back to the
// near-white threshold when the model is missing, fails or times out.
type BackgroundRemover struct {
	Model   Segmenter
	Timeout time.Duration
}

func (b BackgroundRemover) Remove(ctx context.Context, src *image.NRGBA) (*image.NRGBA, StageOutcome) {
	out, err := b.segment(ctx, src)
	if err == nil {
		return out, applied(StageBackground)
	}
	return RemoveNearWhite(src), StageOutcome{
		Stage:  StageBackground,
		Status: StatusFellBack,
		Reason: err.Error(),
	}
}

func (b BackgroundRemover) segment(ctx context.Context, src *image.NRGBA) (*image.NRGBA, error) {
	if b.Model == nil {
		return nil, ErrModelUnavailable
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		img image.Image
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("segmenter panicked: %v", r)}
			}
		}()
		img, err := b.Model.Segment(ctx, src)
		done <- reply{img: img, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("background model: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("background model: %w", r.err)
		}
		if r.img == nil {
			return nil, errors.New("background model returned no image")
		}
		if r.img.Bounds().Size() != src.Bounds().Size() {
			return nil, fmt.Errorf("background model returned %v, want %v", r.img.Bounds().Size(), src.Bounds().Size())
		}
		return imaging.Clone(r.img), nil
	}
}

// RemoveNearWhite makes every pixel whose channels all exceed
// NearWhiteThreshold fully transparent.
func RemoveNearWhite(src *image.NRGBA) *image.NRGBA {
	dst := imaging.Clone(src)
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		if dst.Pix[i] > NearWhiteThreshold && dst.Pix[i+1] > NearWhiteThreshold && dst.Pix[i+2] > NearWhiteThreshold {
			dst.Pix[i+3] = 0
		}
	}
	return dst
}
