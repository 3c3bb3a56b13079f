package tensor

import (
	"fmt"

	gt "gorgonia.org/tensor"
)

// ToDense copies t's contents into a gorgonia.org/tensor Dense, the dense
// array plan's stateless-eval path round-trips every float output
// through. Only the float dtypes gorgonia's numeric
// kernels cover are supported; anything else errors rather than silently
// truncating.
func (t *Tensor) ToDense() (*gt.Dense, error) {
	shape := make([]int, len(t.shape))
	copy(shape, t.shape)

	switch d := t.data.(type) {
	case []float32:
		backing := append([]float32(nil), d...)
		return gt.New(gt.WithShape(shape...), gt.Of(gt.Float32), gt.WithBacking(backing)), nil
	case []float64:
		backing := append([]float64(nil), d...)
		return gt.New(gt.WithShape(shape...), gt.Of(gt.Float64), gt.WithBacking(backing)), nil
	default:
		return nil, fmt.Errorf("tensor: ToDense does not support dtype %v", t.DataType())
	}
}

// FromDense wraps a gorgonia.org/tensor Dense's backing array as a Tensor of
// the corresponding dtype, the inverse of ToDense.
func FromDense(d *gt.Dense) (*Tensor, error) {
	shape := Shape(append([]int(nil), d.Shape()...))
	switch data := d.Data().(type) {
	case []float32:
		return FromFloat32(shape, data)
	case []float64:
		return FromFloat64(shape, data)
	default:
		return nil, fmt.Errorf("tensor: FromDense does not support dense dtype %T", data)
	}
}
