// Package array implements shape-manipulation operators that move data
// without transforming its values: Reshape, Flatten, Concat, Squeeze.
package array

import (
	"fmt"

	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/tensor"
)

// Reshape reinterprets its input's contiguous buffer under a new shape of
// the same total size. One axis of Shape may be -1, meaning "infer from the
// remaining axes and the input's size" — mirrored from ONNX/numpy reshape
// semantics.
type Reshape struct {
	Shape []int64
}

func (r Reshape) Name() string { return "Reshape" }

func (r Reshape) resolvedShape(size int) (tensor.Shape, error) {
	out := make(tensor.Shape, len(r.Shape))
	inferAxis := -1
	known := 1
	for i, d := range r.Shape {
		if d == -1 {
			if inferAxis != -1 {
				return nil, fmt.Errorf("array: Reshape: at most one axis may be -1")
			}
			inferAxis = i
			continue
		}
		out[i] = int(d)
		known *= int(d)
	}
	if inferAxis == -1 {
		if out.Size() != size {
			return nil, fmt.Errorf("array: Reshape: target size %d does not match input size %d", out.Size(), size)
		}
		return out, nil
	}
	if known == 0 || size%known != 0 {
		return nil, fmt.Errorf("array: Reshape: cannot infer axis %d: input size %d not divisible by %d", inferAxis, size, known)
	}
	out[inferAxis] = size / known
	return out, nil
}

func (r Reshape) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("array: Reshape wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	shape, err := r.resolvedShape(in.Size())
	if err != nil {
		return nil, err
	}
	out, err := tensor.New(in.DataType(), shape)
	if err != nil {
		return nil, err
	}
	copyFlat(out, in)
	return []*tensor.Tensor{out}, nil
}

func (r Reshape) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("array: Reshape wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	size := 1
	for _, d := range in.Shape {
		v, ok := d.ToInt64()
		if !ok {
			return nil, fmt.Errorf("array: Reshape requires a concrete input shape")
		}
		size *= int(v)
	}
	shape, err := r.resolvedShape(size)
	if err != nil {
		return nil, err
	}
	dims := make([]dim.Dim, len(shape))
	for i, d := range shape {
		dims[i] = dim.Int(int64(d))
	}
	return []fact.Typed{{DType: in.DType, Shape: dims}}, nil
}

// Flatten collapses every axis from 0 up to (exclusive) Axis into the
// leading output dimension, and every axis from Axis onward into the
// trailing dimension — ONNX Flatten semantics.
type Flatten struct {
	Axis int
}

func (f Flatten) Name() string { return "Flatten" }

func (f Flatten) split(shape []int) (int, int, error) {
	if f.Axis < 0 || f.Axis > len(shape) {
		return 0, 0, fmt.Errorf("array: Flatten axis %d out of range for rank %d", f.Axis, len(shape))
	}
	lead, trail := 1, 1
	for i, d := range shape {
		if i < f.Axis {
			lead *= d
		} else {
			trail *= d
		}
	}
	return lead, trail, nil
}

func (f Flatten) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("array: Flatten wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	lead, trail, err := f.split(in.Shape())
	if err != nil {
		return nil, err
	}
	out, err := tensor.New(in.DataType(), tensor.NewShape(lead, trail))
	if err != nil {
		return nil, err
	}
	copyFlat(out, in)
	return []*tensor.Tensor{out}, nil
}

func (f Flatten) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("array: Flatten wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	ints := make([]int, len(in.Shape))
	for i, d := range in.Shape {
		v, ok := d.ToInt64()
		if !ok {
			return nil, fmt.Errorf("array: Flatten requires a concrete input shape")
		}
		ints[i] = int(v)
	}
	lead, trail, err := f.split(ints)
	if err != nil {
		return nil, err
	}
	return []fact.Typed{{DType: in.DType, Shape: []dim.Dim{dim.Int(int64(lead)), dim.Int(int64(trail))}}}, nil
}

// AxisAfter: Flatten(Axis) passes axes strictly before Axis through as
// output axis 0's contribution and axes at/after Axis into output axis 1;
// AxisAfter reports no input axis as passing through, the degenerate
// Axis==0 and Axis==rank cases included.
func (f Flatten) AxisAfter(input, inputAxis int) (int, bool) {
	return -1, false
}

// Concat joins tensors along Axis. All inputs must agree on dtype and on
// every axis except Axis.
type Concat struct {
	Axis int
}

func (c Concat) Name() string { return "Concat" }

func (c Concat) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) < 1 {
		return nil, fmt.Errorf("array: Concat wants at least 1 input")
	}
	rank := inputs[0].Rank()
	axis := c.Axis
	if axis < 0 {
		axis += rank
	}
	outShape := inputs[0].Shape().Clone()
	total := outShape[axis]
	for _, in := range inputs[1:] {
		s := in.Shape()
		if len(s) != rank {
			return nil, fmt.Errorf("array: Concat: rank mismatch")
		}
		for i := 0; i < rank; i++ {
			if i == axis {
				continue
			}
			if s[i] != outShape[i] {
				return nil, fmt.Errorf("array: Concat: axis %d size mismatch: %d vs %d", i, s[i], outShape[i])
			}
		}
		total += s[axis]
	}
	outShape[axis] = total

	dt := inputs[0].DataType()
	out, err := tensor.New(dt, outShape)
	if err != nil {
		return nil, err
	}
	offset := 0
	idx := make([]int, rank)
	for _, in := range inputs {
		n := in.Shape()[axis]
		var walk func(a int)
		walk = func(a int) {
			if a == rank {
				dst := make([]int, rank)
				copy(dst, idx)
				dst[axis] += offset
				out.SetAt(in.At(idx...), dst...)
				return
			}
			limit := in.Shape()[a]
			for i := 0; i < limit; i++ {
				idx[a] = i
				walk(a + 1)
			}
		}
		walk(0)
		offset += n
	}
	return []*tensor.Tensor{out}, nil
}

func (c Concat) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) < 1 {
		return nil, fmt.Errorf("array: Concat wants at least 1 input")
	}
	rank := len(inputs[0].Shape)
	axis := c.Axis
	if axis < 0 {
		axis += rank
	}
	dt := inputs[0].DType
	shape := make([]dim.Dim, rank)
	copy(shape, inputs[0].Shape)
	for _, in := range inputs[1:] {
		if in.DType != dt {
			return nil, fmt.Errorf("array: Concat: dtype mismatch %v vs %v", dt, in.DType)
		}
		if len(in.Shape) != rank {
			return nil, fmt.Errorf("array: Concat: rank mismatch")
		}
		for i := 0; i < rank; i++ {
			if i == axis {
				shape[i] = shape[i].Add(in.Shape[i])
				continue
			}
			if !shape[i].Equal(in.Shape[i]) {
				return nil, fmt.Errorf("array: Concat: axis %d size mismatch", i)
			}
		}
	}
	return []fact.Typed{{DType: dt, Shape: shape}}, nil
}

// AxisAfter: every axis other than Axis passes straight through; Axis
// itself grows and is not a passthrough.
func (c Concat) AxisAfter(input, inputAxis int) (int, bool) {
	if inputAxis == c.Axis {
		return -1, false
	}
	return inputAxis, true
}

// Squeeze removes a single size-1 axis from its input — a narrow,
// declutter-friendly form of ONNX Squeeze restricted to one axis at a
// time; dropping several axes is several Squeeze nodes in a row.
type Squeeze struct {
	Axis int
}

func (s Squeeze) Name() string { return "Squeeze" }

func (s Squeeze) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("array: Squeeze wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	shape := in.Shape()
	if s.Axis < 0 || s.Axis >= len(shape) || shape[s.Axis] != 1 {
		return nil, fmt.Errorf("array: Squeeze axis %d is not a size-1 axis of shape %v", s.Axis, shape)
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	for i, d := range shape {
		if i == s.Axis {
			continue
		}
		out = append(out, d)
	}
	dst, err := tensor.New(in.DataType(), out)
	if err != nil {
		return nil, err
	}
	copyFlat(dst, in)
	return []*tensor.Tensor{dst}, nil
}

func (s Squeeze) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("array: Squeeze wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	if s.Axis < 0 || s.Axis >= len(in.Shape) {
		return nil, fmt.Errorf("array: Squeeze axis %d out of range for rank %d", s.Axis, len(in.Shape))
	}
	if v, ok := in.Shape[s.Axis].ToInt64(); !ok || v != 1 {
		return nil, fmt.Errorf("array: Squeeze axis %d is not statically size 1", s.Axis)
	}
	shape := make([]dim.Dim, 0, len(in.Shape)-1)
	for i, d := range in.Shape {
		if i == s.Axis {
			continue
		}
		shape = append(shape, d)
	}
	return []fact.Typed{{DType: in.DType, Shape: shape}}, nil
}

// AxisAfter: axes before Axis pass straight through unchanged; axes after
// shift down by one to account for the dropped axis; Axis itself vanishes.
func (s Squeeze) AxisAfter(input, inputAxis int) (int, bool) {
	if inputAxis == s.Axis {
		return -1, false
	}
	if inputAxis > s.Axis {
		return inputAxis - 1, true
	}
	return inputAxis, true
}

func copyFlat(dst, src *tensor.Tensor) {
	n := src.Size()
	for i := 0; i < n; i++ {
		dst.SetAt(src.At(i), i)
	}
}
