// Package activation implements elementwise unary operators: the
// activation functions (Relu, Sigmoid, Tanh) and transcendental kernels
// (Exp, Sqrt, Log) that feed them. Grounded on ops/mathops's binary shape,
// generalized from two operands to one.
//
// The arithmetic itself runs through chewxy/math32 rather than the stdlib
// math package: tensors flowing through a lowered graph are overwhelmingly
// F32 (ONNX's default float width), and math32 computes directly in
// float32 instead of promoting through float64 and rounding back down.
package activation

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/tensor"
)

// unary is shared plumbing for the elementwise unary ops below.
type unary struct {
	name string
	fn   func(x float32) float32
}

func (u unary) Name() string { return u.name }

func (u unary) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("activation: %s wants 1 input, got %d", u.name, len(inputs))
	}
	in := inputs[0]
	shape := in.Shape()
	out, err := tensor.New(in.DataType(), shape)
	if err != nil {
		return nil, err
	}
	n := shape.Size()
	for i := 0; i < n; i++ {
		out.SetAt(float64(u.fn(float32(in.At(i)))), i)
	}
	return []*tensor.Tensor{out}, nil
}

func (u unary) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("activation: %s wants 1 input, got %d", u.name, len(inputs))
	}
	in := inputs[0]
	dt := in.DType
	if dt != datum.F32 && dt != datum.F64 {
		return nil, fmt.Errorf("activation: %s requires a floating-point input, got %v", u.name, dt)
	}
	shape := append([]dim.Dim(nil), in.Shape...)
	return []fact.Typed{{DType: dt, Shape: shape}}, nil
}

// AxisAfter: a unary elementwise op never changes rank or the size of any
// axis, so every input axis passes straight through to the same output
// axis.
func (u unary) AxisAfter(input, inputAxis int) (int, bool) {
	return inputAxis, true
}

// Rules posts the solver constraints a pure unary elementwise op always
// satisfies, unlike mathops.binary's broadcasting/promotion semantics
// which have no exact general expression in terms of Equals: dtype and
// rank unify directly between input and output, and once rank is known,
// every dimension does too — the same "full shape passthrough" AxisAfter
// already reports, posted so the solver's forward/backward passes can
// propagate a concrete shape across this op before every input is fully
// resolved, not just once TypedFacts can run.
func (u unary) Rules(s op.RuleSink, inputs, outputs []op.Proxy) error {
	if len(inputs) != 1 || len(outputs) != 1 {
		return fmt.Errorf("activation: %s wants 1 input and 1 output, got %d/%d", u.name, len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if err := s.Equals(in.DType(), out.DType()); err != nil {
		return err
	}
	if err := s.Equals(in.Rank(), out.Rank()); err != nil {
		return err
	}
	return s.Given(in.Rank(), func(s op.RuleSink, v any) error {
		rank := v.(int)
		for i := 0; i < rank; i++ {
			if err := s.Equals(in.ShapeDim(i), out.ShapeDim(i)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Relu implements the rectified linear unit: max(0, x).
func Relu() unary {
	return unary{name: "Relu", fn: func(x float32) float32 {
		if x < 0 {
			return 0
		}
		return x
	}}
}

// Sigmoid implements the logistic function 1 / (1 + e^-x).
func Sigmoid() unary {
	return unary{name: "Sigmoid", fn: func(x float32) float32 {
		return 1 / (1 + math32.Exp(-x))
	}}
}

// Tanh implements the hyperbolic tangent activation.
func Tanh() unary {
	return unary{name: "Tanh", fn: math32.Tanh}
}

// Exp implements elementwise e^x.
func Exp() unary {
	return unary{name: "Exp", fn: math32.Exp}
}

// Sqrt implements elementwise square root.
func Sqrt() unary {
	return unary{name: "Sqrt", fn: math32.Sqrt}
}

// Log implements elementwise natural log.
func Log() unary {
	return unary{name: "Log", fn: math32.Log}
}
