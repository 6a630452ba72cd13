package preprocess

import "fmt"

// Tensor is a dense NHWC float32 tensor with a single channel.
type Tensor struct {
	Batch  int
	Height int
	Width  int
	Data   []float32
}

// NewTensor allocates a zeroed (batch, height, width, 1) tensor.
func NewTensor(batch, height, width int) *Tensor {
	return &Tensor{
		Batch:  batch,
		Height: height,
		Width:  width,
		Data:   make([]float32, batch*height*width),
	}
}

// Shape returns the tensor shape as (batch, height, width, channels).
func (t *Tensor) Shape() []int64 {
	return []int64{int64(t.Batch), int64(t.Height), int64(t.Width), 1}
}

// Row returns the data of one batch element.
func (t *Tensor) Row(i int) []float32 {
	n := t.Height * t.Width
	return t.Data[i*n : (i+1)*n]
}

// Stack concatenates single- or multi-image tensors along the batch axis.
func Stack(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("stack: no tensors")
	}
	h, w := ts[0].Height, ts[0].Width
	batch := 0
	for _, t := range ts {
		if t.Height != h || t.Width != w {
			return nil, fmt.Errorf("stack: shape mismatch %dx%d vs %dx%d", t.Height, t.Width, h, w)
		}
		batch += t.Batch
	}

	out := &Tensor{Batch: batch, Height: h, Width: w, Data: make([]float32, 0, batch*h*w)}
	for _, t := range ts {
		out.Data = append(out.Data, t.Data...)
	}
	return out, nil
}
