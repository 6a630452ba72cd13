// Package preprocess turns raw images into the normalized single-channel
// tensors the emotion model was trained on.
//
// The order of operations is fixed: resize to Size×Size, convert to
// grayscale, scale to [0,1], remap to [-1,1], add a batch dimension.
// Changing any step breaks parity with the training pipeline.
package preprocess

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

// DefaultSize is the model's input edge length in pixels.
const DefaultSize = 48

// Filter is the one resampling filter used everywhere. It matches the image
// library default the model was trained with and is intentionally not
// configurable.
const Filter = resize.Bicubic

// Preprocessor converts images into tensors of shape (1, Size, Size, 1).
type Preprocessor struct {
	Size int
}

// New returns a preprocessor for size×size model inputs. Non-positive sizes
// fall back to DefaultSize.
func New(size int) *Preprocessor {
	if size <= 0 {
		size = DefaultSize
	}
	return &Preprocessor{Size: size}
}

// FromBytes decodes data with any registered image decoder and preprocesses it.
func (p *Preprocessor) FromBytes(data []byte) (*Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.ErrDecodeFailure, err.Error())
	}
	return p.FromImage(img), nil
}

// FromFile reads and preprocesses the image at path.
func (p *Preprocessor) FromFile(path string) (*Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	t, err := p.FromBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "preprocess %s", path)
	}
	return t, nil
}

// FromImage preprocesses an already decoded image. No cropping and no aspect
// ratio preservation: non-square inputs are stretched.
func (p *Preprocessor) FromImage(img image.Image) *Tensor {
	size := p.Size
	resized := resize.Resize(uint(size), uint(size), img, Filter)

	t := NewTensor(1, size, size)
	bounds := resized.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g := Luminance(resized.At(bounds.Min.X+x, bounds.Min.Y+y))
			t.Data[y*size+x] = Normalize(g)
		}
	}
	return t
}

// Luminance converts a color to 8-bit grayscale with ITU-R 601-2 luma weights
// applied to straight (non-premultiplied) 8-bit RGB. Alpha is ignored.
func Luminance(c color.Color) uint8 {
	if g, ok := c.(color.Gray); ok {
		return g.Y
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return uint8((uint32(n.R)*19595 + uint32(n.G)*38470 + uint32(n.B)*7471 + 0x8000) >> 16)
}

// Normalize maps a pixel value 0..255 to [-1,1]: 0 → -1, 255 → 1.
func Normalize(v uint8) float32 {
	x := float64(v) / 255.0
	return float32((x - 0.5) * 2)
}
