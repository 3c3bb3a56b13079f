// Package reduce implements axis-reducing operators: Sum, Mean, Max, Min.
package reduce

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/tensor"
)

// Kind selects the reduction applied to each output cell.
type Kind int

const (
	Sum Kind = iota
	Mean
	Max
	Min
)

func (k Kind) String() string {
	switch k {
	case Sum:
		return "ReduceSum"
	case Mean:
		return "ReduceMean"
	case Max:
		return "ReduceMax"
	case Min:
		return "ReduceMin"
	default:
		return "ReduceUnknown"
	}
}

// Reduce folds the input along Axes, optionally keeping the reduced axes as
// size-1 dimensions.
type Reduce struct {
	Kind     Kind
	Axes     []int
	KeepDims bool
}

func (r Reduce) Name() string { return r.Kind.String() }

func (r Reduce) normAxes(rank int) map[int]bool {
	set := make(map[int]bool, len(r.Axes))
	for _, a := range r.Axes {
		if a < 0 {
			a += rank
		}
		set[a] = true
	}
	return set
}

func (r Reduce) outShape(in tensor.Shape) tensor.Shape {
	axes := r.normAxes(in.Rank())
	var out tensor.Shape
	for i, d := range in {
		if axes[i] {
			if r.KeepDims {
				out = append(out, 1)
			}
			continue
		}
		out = append(out, d)
	}
	return out
}

func (r Reduce) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("reduce: %s wants 1 input, got %d", r.Name(), len(inputs))
	}
	in := inputs[0]
	inShape := in.Shape()
	axes := r.normAxes(inShape.Rank())
	outShape := r.outShape(inShape)

	out, err := tensor.New(in.DataType(), outShape)
	if err != nil {
		return nil, err
	}

	// Gather every input element contributing to each output cell into its
	// own bucket, then fold each bucket with gonum/floats rather than a
	// hand-rolled running accumulator.
	buckets := make([][]float64, outShape.Size())

	idx := make([]int, inShape.Rank())
	var walk func(axis int)
	walk = func(axis int) {
		if axis == inShape.Rank() {
			oidx := outIndex(idx, axes, r.KeepDims)
			lin := linear(oidx, outShape)
			buckets[lin] = append(buckets[lin], in.At(idx...))
			return
		}
		for i := 0; i < inShape[axis]; i++ {
			idx[axis] = i
			walk(axis + 1)
		}
	}
	walk(0)

	for i, bucket := range buckets {
		var v float64
		switch r.Kind {
		case Sum:
			v = floats.Sum(bucket)
		case Mean:
			v = floats.Sum(bucket) / float64(len(bucket))
		case Max:
			v = floats.Max(bucket)
		case Min:
			v = floats.Min(bucket)
		}
		out.SetAt(v, i)
	}
	return []*tensor.Tensor{out}, nil
}

func outIndex(full []int, axes map[int]bool, keepDims bool) []int {
	var out []int
	for i, v := range full {
		if axes[i] {
			if keepDims {
				out = append(out, 0)
			}
			continue
		}
		out = append(out, v)
	}
	return out
}

func linear(idx []int, shape tensor.Shape) int {
	strides := shape.Strides()
	if len(strides) == 0 {
		return 0
	}
	n := 0
	for i, v := range idx {
		n += v * strides[i]
	}
	return n
}

func (r Reduce) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("reduce: %s wants 1 input, got %d", r.Name(), len(inputs))
	}
	in := inputs[0]
	axes := r.normAxes(len(in.Shape))
	var shape []dim.Dim
	for i, d := range in.Shape {
		if axes[i] {
			if r.KeepDims {
				shape = append(shape, dim.Int(1))
			}
			continue
		}
		shape = append(shape, d)
	}
	return []fact.Typed{{DType: in.DType, Shape: shape}}, nil
}

// AxisAfter: axes outside the reduced set pass through, renumbered to
// account for any reduced axes dropped ahead of them (when KeepDims is
// false); reduced axes never pass through since they vanish or collapse to
// size 1. Only non-negative entries in Axes are considered here since the
// true input rank is not available at this call site to normalize negative
// ones.
func (r Reduce) AxisAfter(input, inputAxis int) (int, bool) {
	for _, a := range r.Axes {
		if a == inputAxis {
			return -1, false
		}
	}
	if r.KeepDims {
		return inputAxis, true
	}
	dropped := 0
	for _, a := range r.Axes {
		if a >= 0 && a < inputAxis {
			dropped++
		}
	}
	return inputAxis - dropped, true
}

// ChangeAxis rewrites Reduce to reference the original, larger-rank index
// space when an upstream Squeeze that removed axis `removed` is fused away
// and Reduce is rewired to consume the squeeze's own input directly:
// whichever of Reduce's own Axes sat at or beyond `removed` in the
// squeezed index space shifts up by one to make room for the axis the
// squeeze used to remove. input must be 0 — Reduce has exactly one input.
func (r Reduce) ChangeAxis(input int, removed int) (op.Op, int, bool) {
	if input != 0 {
		return nil, -1, false
	}
	newAxes := make([]int, len(r.Axes))
	for i, a := range r.Axes {
		if a >= removed {
			newAxes[i] = a + 1
		} else {
			newAxes[i] = a
		}
	}
	return Reduce{Kind: r.Kind, Axes: newAxes, KeepDims: r.KeepDims}, -1, true
}
