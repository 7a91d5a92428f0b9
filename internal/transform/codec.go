package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelbatch/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Background is the opaque fill used when flattening transparency for formats
// without an alpha channel.
var Background = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Decode reads an image from raw bytes. Unknown or corrupt data is reported as
// domain.ErrUnreadableImage.
func Decode(data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", domain.ErrUnreadableImage)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrUnreadableImage, err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: image has no pixels", domain.ErrUnreadableImage)
	}
	return imaging.Clone(src), format, nil
}

// NormalizeFormat maps a requested output format to its codec name.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	switch format {
	case "jpg", "jpeg":
		return "jpeg"
	case "tif", "tiff":
		return "tiff"
	default:
		return format
	}
}

// SupportsAlpha reports whether the codec can store transparency.
func SupportsAlpha(format string) bool {
	switch NormalizeFormat(format) {
	case "jpeg", "bmp":
		return false
	default:
		return true
	}
}

func ContentType(format string) string {
	switch NormalizeFormat(format) {
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Flatten composites img over the opaque Background.
func Flatten(img image.Image) *image.NRGBA {
	dst := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), Background)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}

// Encode writes img in the requested format. Formats without alpha support are
// flattened first so transparent regions become the background fill.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("encode: nil image")
	}
	if quality <= 0 || quality > 100 {
		quality = domain.DefaultQuality
	}

	codec := NormalizeFormat(format)
	if !SupportsAlpha(codec) && !isOpaque(img) {
		img = Flatten(img)
	}

	var buf bytes.Buffer
	var err error
	switch codec {
	case "jpeg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "png":
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngLevel(quality)))
	case "gif":
		err = imaging.Encode(&buf, img, imaging.GIF)
	case "bmp":
		err = imaging.Encode(&buf, img, imaging.BMP)
	case "tiff":
		err = imaging.Encode(&buf, img, imaging.TIFF)
	case "webp":
		var data []byte
		data, err = encodeWebP(img, quality)
		buf.Write(data)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", codec, err)
	}
	return buf.Bytes(), nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
