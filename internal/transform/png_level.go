package transform

import "image/png"

// pngLevel maps the 1-100 quality knob onto PNG compression effort. PNG is
// lossless, so lower quality trades CPU for smaller files.
func pngLevel(quality int) png.CompressionLevel {
	switch {
	case quality < 20:
		return png.BestCompression
	case quality < 80:
		return png.DefaultCompression
	default:
		return png.BestSpeed
	}
}
