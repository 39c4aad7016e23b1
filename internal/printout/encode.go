package printout

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("printout: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
