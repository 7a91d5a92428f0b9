package transform

import (
	"bytes"
	"encoding/binary"
)

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerSOS    = 0xDA
	markerAPP1   = 0xE1
)

// ExtractJPEGMetadata returns the APP1 segments (EXIF and XMP) of a JPEG
// stream, marker and length included. Non-JPEG input yields nil.
func ExtractJPEGMetadata(data []byte) [][]byte {
	if len(data) < 4 || data[0] != markerPrefix || data[1] != markerSOI {
		return nil
	}

	var segments [][]byte
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != markerPrefix {
			return segments
		}
		marker := data[pos+1]
		if marker == markerPrefix {
			pos++
			continue
		}
		if marker == markerSOS {
			return segments
		}
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		end := pos + 2 + length
		if length < 2 || end > len(data) {
			return segments
		}
		if marker == markerAPP1 {
			segments = append(segments, bytes.Clone(data[pos:end]))
		}
		pos = end
	}
	return segments
}

// InjectJPEGMetadata inserts segments immediately after the SOI marker of an
// encoded JPEG. The input is returned unchanged when it is not a JPEG.
func InjectJPEGMetadata(encoded []byte, segments [][]byte) []byte {
	if len(segments) == 0 || len(encoded) < 2 || encoded[0] != markerPrefix || encoded[1] != markerSOI {
		return encoded
	}

	size := len(encoded)
	for _, s := range segments {
		size += len(s)
	}
	out := make([]byte, 0, size)
	out = append(out, encoded[:2]...)
	for _, s := range segments {
		out = append(out, s...)
	}
	return append(out, encoded[2:]...)
}

// CarryMetadata applies the metadata policy to an encoded output. Stripping
// is the default since re-encoding drops all source metadata.
func CarryMetadata(source, encoded []byte, targetFormat string, strip bool) ([]byte, StageOutcome) {
	if strip {
		return encoded, applied(StageMetadata)
	}
	segments := ExtractJPEGMetadata(source)
	if len(segments) == 0 {
		return encoded, skipped(StageMetadata, "source has no metadata to preserve")
	}
	if NormalizeFormat(targetFormat) != "jpeg" {
		return encoded, skipped(StageMetadata, "target format cannot carry source metadata")
	}
	return InjectJPEGMetadata(encoded, segments), applied(StageMetadata)
}
