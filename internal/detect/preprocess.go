package detect

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/medix/medix-server/pkg/models"
)

// ImageNet normalization constants; every domain model was trained on
// inputs normalized with these values.
var (
	normMean = [3]float32{0.485, 0.456, 0.406}
	normStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocessor decodes uploaded images and converts them into the
// tensor layout a classifier expects.
type Preprocessor struct {
	maxBytes int64
}

func NewPreprocessor(maxBytes int64) *Preprocessor {
	return &Preprocessor{maxBytes: maxBytes}
}

// Prepare decodes raw image bytes and returns an NCHW float32 tensor of
// shape (1, 3, spec.InputHeight, spec.InputWidth), resized and
// ImageNet-normalized. Deterministic for identical inputs.
func (p *Preprocessor) Prepare(raw []byte, spec DomainSpec) ([]float32, error) {
	if p.maxBytes > 0 && int64(len(raw)) > p.maxBytes {
		return nil, fmt.Errorf("image is %d bytes: %w", len(raw), models.ErrImageTooLarge)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidImage, err)
	}

	scaled := resize.Resize(uint(spec.InputWidth), uint(spec.InputHeight), img, resize.Bilinear)

	w, h := spec.InputWidth, spec.InputHeight
	bounds := scaled.Bounds()
	out := make([]float32, 3*h*w)

	// NCHW: channel planes, rows, columns. Grayscale X-rays decode to
	// equal RGB channels, which matches the original RGB conversion.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r32, g32, b32, _ := scaled.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r := float32(r32>>8) / 255.0
			g := float32(g32>>8) / 255.0
			b := float32(b32>>8) / 255.0

			idx := y*w + x
			out[0*h*w+idx] = (r - normMean[0]) / normStd[0]
			out[1*h*w+idx] = (g - normMean[1]) / normStd[1]
			out[2*h*w+idx] = (b - normMean[2]) / normStd[2]
		}
	}

	return out, nil
}
