package media

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// recompress downscales a capture to the configured long edge and
// re-encodes it as JPEG. Payloads that do not decode as an image are
// stored untouched. The capture layer is treated as a producer of opaque
// binary payloads, and an undecodable one is still evidence worth
// keeping.
func (p *Pipeline) recompress(data []byte, mimeType string) ([]byte, string) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mimeType
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	long := width
	if height > long {
		long = height
	}

	if long > p.cfg.MaxLongEdge {
		scale := float64(p.cfg.MaxLongEdge) / float64(long)
		dst := image.NewRGBA(image.Rect(0, 0, scaled(width, scale), scaled(height, scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
		return data, mimeType
	}

	// Re-encoding a small, already-efficient JPEG can inflate it.
	if mimeType == "image/jpeg" && buf.Len() >= len(data) {
		return data, mimeType
	}
	return buf.Bytes(), "image/jpeg"
}

func scaled(dim int, scale float64) int {
	out := int(float64(dim)*scale + 0.5)
	if out < 1 {
		return 1
	}
	return out
}
