package pix2pix_go

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Batch Paired samples of a minibatch
//
// Edges - edge maps of shape [N, 1, S, S] in [-1, 1]
// Photos - RGB photos of shape [N, 3, S, S] in [-1, 1]
// Paths - source files in the same order
//
type Batch struct {
	Edges  *tensor.Dense
	Photos *tensor.Dense
	Paths  []string
}

// Size Returns number of samples
func (b *Batch) Size() int {
	return len(b.Paths)
}

// Normalize Maps byte value to [-1, 1]
func Normalize(v uint8) float64 {
	return float64(v)/127.5 - 1.0
}

// Denormalize Maps value from [-1, 1] to byte, out of range values are clipped
func Denormalize(v float64) uint8 {
	s := math.Round((v + 1.0) * 127.5)
	if s < 0 {
		return 0
	}
	if s > 255 {
		return 255
	}
	return uint8(s)
}

// concatChannels Concatenates [N, Ca, H, W] and [N, Cb, H, W] tensors into [N, Ca+Cb, H, W]
func concatChannels(a, b *tensor.Dense) (*tensor.Dense, error) {
	if a.Dims() != 4 || b.Dims() != 4 {
		return nil, fmt.Errorf("Can't concatenate channels of %v and %v: 4-D tensors expected", a.Shape(), b.Shape())
	}
	out, err := a.Concat(1, b)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do concatenation")
	}
	return out, nil
}

// denseData Returns backing slice of float64 tensor
func denseData(t *tensor.Dense) ([]float64, error) {
	if t == nil {
		return nil, fmt.Errorf("Tensor is nil")
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Tensor of dtype %v is not float64", t.Dtype())
	}
	return data, nil
}
