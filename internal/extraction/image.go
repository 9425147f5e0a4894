package extraction

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/heic"
)

// isHEIC checks for the HEIC/HEIF ftyp box magic bytes. iPhone photos
// often arrive with a misleading or missing MIME type, so the content
// check runs regardless of the sniffed type.
func isHEIC(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// heicToPNG decodes a HEIC/HEIF image and re-encodes it as PNG.
func heicToPNG(data []byte) ([]byte, error) {
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}

	return buf.Bytes(), nil
}
