// Package mathops implements elementwise arithmetic operators: binary ops
// with numpy-style broadcasting and the zero-input Const leaf.
package mathops

import (
	"fmt"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/tensor"
)

// broadcastShape computes the numpy-style broadcast of two symbolic shapes,
// right-aligning axes and requiring each pair to be equal or one of them 1.
func broadcastShape(a, b []dim.Dim) ([]dim.Dim, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]dim.Dim, n)
	for i := 0; i < n; i++ {
		ai := dim.Int(1)
		if k := i - (n - len(a)); k >= 0 {
			ai = a[k]
		}
		bi := dim.Int(1)
		if k := i - (n - len(b)); k >= 0 {
			bi = b[k]
		}
		switch {
		case ai.Equal(dim.Int(1)):
			out[i] = bi
		case bi.Equal(dim.Int(1)):
			out[i] = ai
		case ai.Equal(bi):
			out[i] = ai
		default:
			return nil, fmt.Errorf("mathops: cannot broadcast %v against %v at axis %d", a, b, i)
		}
	}
	return out, nil
}

// broadcastEval evaluates fn elementwise over two tensors with numpy
// broadcasting, writing float64 intermediate results into a tensor of dtype
// dt and shape outShape.
func broadcastEval(a, b *tensor.Tensor, dt datum.Type, outShape tensor.Shape, fn func(x, y float64) float64) (*tensor.Tensor, error) {
	out, err := tensor.New(dt, outShape)
	if err != nil {
		return nil, err
	}
	as, bs := a.Shape(), b.Shape()
	n := outShape.Rank()
	idx := make([]int, n)
	var walk func(axis int)
	var walkErr error
	walk = func(axis int) {
		if walkErr != nil {
			return
		}
		if axis == n {
			ai := broadcastIndex(idx, as, n)
			bi := broadcastIndex(idx, bs, n)
			out.SetAt(fn(a.At(ai...), b.At(bi...)), idx...)
			return
		}
		for i := 0; i < outShape[axis]; i++ {
			idx[axis] = i
			walk(axis + 1)
		}
	}
	walk(0)
	return out, walkErr
}

// broadcastIndex maps a full-rank output index down to the (possibly
// lower-rank, possibly size-1-axis) index into a broadcast input.
func broadcastIndex(idx []int, shape tensor.Shape, outRank int) []int {
	offset := outRank - shape.Rank()
	out := make([]int, shape.Rank())
	for i := range out {
		axis := i + offset
		if shape[i] == 1 {
			out[i] = 0
			continue
		}
		out[i] = idx[axis]
	}
	return out
}

func commonDType(a, b datum.Type) (datum.Type, error) {
	dt, ok := a.CommonSuperType(b)
	if !ok {
		return datum.Unknown, fmt.Errorf("mathops: no common super-type for %v and %v", a, b)
	}
	return dt, nil
}

// binary is shared plumbing for the four elementwise binary ops below.
type binary struct {
	name string
	fn   func(x, y float64) float64
}

func (b binary) Name() string { return b.name }

func (b binary) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("mathops: %s wants 2 inputs, got %d", b.name, len(inputs))
	}
	x, y := inputs[0], inputs[1]
	dt, err := commonDType(x.DataType(), y.DataType())
	if err != nil {
		return nil, err
	}
	shape, err := broadcastIntShape(x.Shape(), y.Shape())
	if err != nil {
		return nil, err
	}
	out, err := broadcastEval(x, y, dt, shape, b.fn)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{out}, nil
}

func broadcastIntShape(a, b tensor.Shape) (tensor.Shape, error) {
	ad := make([]dim.Dim, len(a))
	for i, v := range a {
		ad[i] = dim.Int(int64(v))
	}
	bd := make([]dim.Dim, len(b))
	for i, v := range b {
		bd[i] = dim.Int(int64(v))
	}
	merged, err := broadcastShape(ad, bd)
	if err != nil {
		return nil, err
	}
	out := make(tensor.Shape, len(merged))
	for i, d := range merged {
		v, _ := d.ToInt64()
		out[i] = int(v)
	}
	return out, nil
}

func (b binary) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 2 {
		return nil, fmt.Errorf("mathops: %s wants 2 inputs, got %d", b.name, len(inputs))
	}
	dt, err := commonDType(inputs[0].DType, inputs[1].DType)
	if err != nil {
		return nil, err
	}
	shape, err := broadcastShape(inputs[0].Shape, inputs[1].Shape)
	if err != nil {
		return nil, err
	}
	return []fact.Typed{{DType: dt, Shape: shape}}, nil
}

// AxisAfter: elementwise binary ops are only a pure passthrough on the
// higher-rank input's trailing axes, with no broadcasting in play; callers
// that need exact passthrough semantics in the presence of broadcasting
// should treat axes with differing operand sizes as not passing through.
func (b binary) AxisAfter(input, inputAxis int) (int, bool) {
	return inputAxis, true
}

// Add implements elementwise addition with broadcasting.
func Add() binary { return binary{name: "Add", fn: func(x, y float64) float64 { return x + y }} }

// Sub implements elementwise subtraction with broadcasting.
func Sub() binary { return binary{name: "Sub", fn: func(x, y float64) float64 { return x - y }} }

// Mul implements elementwise multiplication with broadcasting.
func Mul() binary { return binary{name: "Mul", fn: func(x, y float64) float64 { return x * y }} }

// Div implements elementwise division with broadcasting.
func Div() binary { return binary{name: "Div", fn: func(x, y float64) float64 { return x / y }} }

// Const is a zero-input leaf op wrapping a compile-time-known tensor value.
type Const struct {
	Value *tensor.Tensor
}

func (c Const) Name() string { return "Const" }

func (c Const) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 0 {
		return nil, fmt.Errorf("mathops: Const takes no inputs, got %d", len(inputs))
	}
	return []*tensor.Tensor{c.Value}, nil
}

func (c Const) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	shape := c.Value.Shape()
	dims := make([]dim.Dim, len(shape))
	for i, d := range shape {
		dims[i] = dim.Int(int64(d))
	}
	return []fact.Typed{{DType: c.Value.DataType(), Shape: dims, Value: fact.KnownValue(c.Value)}}, nil
}
