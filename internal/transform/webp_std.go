//go:build !govips || !cgo

package transform

import (
	"bytes"
	"image"

	"github.com/chai2010/webp"
)

func Startup() error {
	return nil
}

func Shutdown() {}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
