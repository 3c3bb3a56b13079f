// Package tensor implements the typed n-dimensional array at the bottom of
// the IR: dtype metadata, contiguous row-major storage, and the reference
// counted Shared wrapper used once a tensor becomes immutable graph state.
//
// Dynamic dispatch on dtype is structured as a small set of type switches —
// one per operation — rather than a virtual-call chain, following this
// codebase's convention of dispatching numeric work through a single switch
// at the call site.
package tensor

import (
	"fmt"
	"reflect"

	"gonum.org/v1/gonum/floats"

	"github.com/itohio/inferx/datum"
)

// Tensor is the triple (dtype, shape, raw bytes) from the data model. Raw
// storage is one of the typed Go slices below, always contiguous and
// row-major; views/strided tensors are out of this package's scope (they
// belong to the execution backend, not the IR's value type).
type Tensor struct {
	shape Shape
	data  any
	dtype datum.Type
}

// makeData allocates a zero-valued contiguous buffer for dtype dt holding
// size elements.
func makeData(dt datum.Type, size int) any {
	switch dt {
	case datum.F32:
		return make([]float32, size)
	case datum.F64:
		return make([]float64, size)
	case datum.F16:
		return make([]uint16, size) // raw bits; no native float16 in the stdlib
	case datum.I8:
		return make([]int8, size)
	case datum.I16:
		return make([]int16, size)
	case datum.I32:
		return make([]int32, size)
	case datum.I64:
		return make([]int64, size)
	case datum.U8:
		return make([]uint8, size)
	case datum.U16:
		return make([]uint16, size)
	case datum.Bool:
		return make([]bool, size)
	case datum.String:
		return make([]string, size)
	case datum.TDim:
		return make([]int64, size) // concrete tensors never hold symbolic TDim values
	default:
		return nil
	}
}

// New allocates a zero-valued tensor of the given dtype and shape.
func New(dt datum.Type, shape Shape) (*Tensor, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	return &Tensor{shape: shape.Clone(), data: makeData(dt, shape.Size()), dtype: dt}, nil
}

// FromFloat32 wraps an existing []float32 buffer as a tensor of the given
// shape. The buffer is taken by reference, not copied.
func FromFloat32(shape Shape, data []float32) (*Tensor, error) {
	if len(data) != shape.Size() {
		return nil, fmt.Errorf("tensor: data has %d elements, shape %v wants %d", len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape.Clone(), data: data, dtype: datum.F32}, nil
}

// FromFloat64 wraps an existing []float64 buffer as a tensor.
func FromFloat64(shape Shape, data []float64) (*Tensor, error) {
	if len(data) != shape.Size() {
		return nil, fmt.Errorf("tensor: data has %d elements, shape %v wants %d", len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape.Clone(), data: data, dtype: datum.F64}, nil
}

// FromInt64 wraps an existing []int64 buffer as a tensor.
func FromInt64(shape Shape, data []int64) (*Tensor, error) {
	if len(data) != shape.Size() {
		return nil, fmt.Errorf("tensor: data has %d elements, shape %v wants %d", len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape.Clone(), data: data, dtype: datum.I64}, nil
}

// Scalar constructs a rank-0 f32 tensor holding v.
func Scalar(v float32) *Tensor {
	t, _ := FromFloat32(NewShape(), []float32{v})
	return t
}

// DataType returns the tensor's dtype.
func (t *Tensor) DataType() datum.Type {
	return t.dtype
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape.Clone() }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements.
func (t *Tensor) Size() int { return t.shape.Size() }

// Data returns the underlying typed slice as any. Use DataType to determine
// the concrete element type before a type assertion.
func (t *Tensor) Data() any { return t.data }

// At returns the element at the given linear or multi-dimensional index as
// a float64, regardless of the tensor's underlying dtype. Non-numeric
// dtypes (String) panic.
func (t *Tensor) At(indices ...int) float64 {
	idx := t.linearIndex(indices)
	switch d := t.data.(type) {
	case []float32:
		return float64(d[idx])
	case []float64:
		return d[idx]
	case []int8:
		return float64(d[idx])
	case []int16:
		return float64(d[idx])
	case []int32:
		return float64(d[idx])
	case []int64:
		return float64(d[idx])
	case []uint8:
		return float64(d[idx])
	case []uint16:
		return float64(d[idx])
	case []bool:
		if d[idx] {
			return 1
		}
		return 0
	default:
		panic(fmt.Sprintf("tensor: At not supported for dtype %v", t.DataType()))
	}
}

// SetAt sets the element at the given index to value, converted to the
// tensor's dtype.
func (t *Tensor) SetAt(value float64, indices ...int) {
	idx := t.linearIndex(indices)
	switch d := t.data.(type) {
	case []float32:
		d[idx] = float32(value)
	case []float64:
		d[idx] = value
	case []int8:
		d[idx] = int8(value)
	case []int16:
		d[idx] = int16(value)
	case []int32:
		d[idx] = int32(value)
	case []int64:
		d[idx] = int64(value)
	case []uint8:
		d[idx] = uint8(value)
	case []uint16:
		d[idx] = uint16(value)
	case []bool:
		d[idx] = value != 0
	default:
		panic(fmt.Sprintf("tensor: SetAt not supported for dtype %v", t.DataType()))
	}
}

// linearIndex resolves either a single linear index or one index per axis
// into an offset into the flat data buffer.
func (t *Tensor) linearIndex(indices []int) int {
	if len(indices) == 1 && t.Rank() != 1 {
		return indices[0]
	}
	if len(indices) != t.Rank() {
		panic(fmt.Sprintf("tensor: expected %d indices, got %d", t.Rank(), len(indices)))
	}
	strides := t.shape.Strides()
	idx := 0
	for i, v := range indices {
		idx += v * strides[i]
	}
	return idx
}

// Equal reports deep equality of dtype, shape and contents. Floats compare
// exactly; use AlmostEqual for tolerance-based comparisons.
func (t *Tensor) Equal(other *Tensor) bool {
	if other == nil || t.dtype != other.dtype || !t.shape.Equal(other.shape) {
		return false
	}
	return compareEqual(t.data, other.data)
}

// AlmostEqual reports whether t and other agree to within tol per element,
// used by the declutter equivalence checks to compare a rewritten graph's
// output against the original's. Delegates the per-element comparison to
// gonum/floats.EqualApprox over a flattened copy of each tensor's data,
// rather than a hand-rolled loop.
func (t *Tensor) AlmostEqual(other *Tensor, tol float64) bool {
	if other == nil || !t.shape.Equal(other.shape) {
		return false
	}
	n := t.Size()
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = t.flatAt(i)
		b[i] = other.flatAt(i)
	}
	return floats.EqualApprox(a, b, tol)
}

func (t *Tensor) flatAt(i int) float64 {
	switch d := t.data.(type) {
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	case []int8:
		return float64(d[i])
	case []int16:
		return float64(d[i])
	case []int32:
		return float64(d[i])
	case []int64:
		return float64(d[i])
	case []uint8:
		return float64(d[i])
	case []uint16:
		return float64(d[i])
	default:
		panic("tensor: flatAt not supported for this dtype")
	}
}

func compareEqual(a, b any) bool {
	switch av := a.(type) {
	case []float32:
		bv, ok := b.([]float32)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []float64:
		bv, ok := b.([]float64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []int64:
		bv, ok := b.([]int64)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case []int32:
		bv, ok := b.([]int32)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}
