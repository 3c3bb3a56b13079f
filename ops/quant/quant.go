// Package quant implements linear (affine) quantize/dequantize operators
// and the zero-point cleanup helper the declutter pass uses to collapse a
// constant all-equal zero-point tensor to a scalar.
package quant

import (
	"fmt"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/tensor"
)

// QuantizeLinear maps a float input to an integer dtype via
// round(x/scale) + zeroPoint, clamped to the target dtype's range.
type QuantizeLinear struct {
	Scale     float64
	ZeroPoint int64
	DType     datum.Type
}

func (q QuantizeLinear) Name() string { return "QuantizeLinear" }

func (q QuantizeLinear) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("quant: QuantizeLinear wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	out, err := tensor.New(q.DType, in.Shape())
	if err != nil {
		return nil, err
	}
	lo, hi := rangeOf(q.DType)
	n := in.Size()
	for i := 0; i < n; i++ {
		v := roundHalfAwayFromZero(in.At(i)/q.Scale) + float64(q.ZeroPoint)
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		out.SetAt(v, i)
	}
	return []*tensor.Tensor{out}, nil
}

func (q QuantizeLinear) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("quant: QuantizeLinear wants 1 input, got %d", len(inputs))
	}
	shape := make([]dim.Dim, len(inputs[0].Shape))
	copy(shape, inputs[0].Shape)
	return []fact.Typed{{DType: q.DType, Shape: shape}}, nil
}

// DequantizeLinear maps an integer input back to a float dtype via
// (x - zeroPoint) * scale.
type DequantizeLinear struct {
	Scale     float64
	ZeroPoint int64
	DType     datum.Type
}

func (d DequantizeLinear) Name() string { return "DequantizeLinear" }

func (d DequantizeLinear) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("quant: DequantizeLinear wants 1 input, got %d", len(inputs))
	}
	in := inputs[0]
	out, err := tensor.New(d.DType, in.Shape())
	if err != nil {
		return nil, err
	}
	n := in.Size()
	for i := 0; i < n; i++ {
		v := (in.At(i) - float64(d.ZeroPoint)) * d.Scale
		out.SetAt(v, i)
	}
	return []*tensor.Tensor{out}, nil
}

func (d DequantizeLinear) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("quant: DequantizeLinear wants 1 input, got %d", len(inputs))
	}
	shape := make([]dim.Dim, len(inputs[0].Shape))
	copy(shape, inputs[0].Shape)
	return []fact.Typed{{DType: d.DType, Shape: shape}}, nil
}

// IsIdentityPair reports whether a QuantizeLinear immediately followed by a
// DequantizeLinear with matching scale and zero point is a no-op on its
// original float input — the dequantize-fusion rewrite from the declutter
// canonical set.
func IsIdentityPair(q QuantizeLinear, deq DequantizeLinear) bool {
	return q.Scale == deq.Scale && q.ZeroPoint == deq.ZeroPoint
}

// AllEqualToFirst reports whether every element of a rank-1 zero-point
// tensor equals its first element, for the zero-point cleanup rewrite.
//
// The source this engine is modeled on has a known defect here: it checks
// slice[1:] for equality against slice[0] but never checks slice[0] against
// itself, which only happens to be harmless because a length-1 "rank-1
// all-equal" slice never reaches that code path elsewhere. This
// implementation compares every element including slice[0] and treats a
// length-0 slice as an error rather than silently reporting it as "all
// equal".
func AllEqualToFirst(slice []int64) (bool, error) {
	if len(slice) == 0 {
		return false, fmt.Errorf("quant: zero-point slice must not be empty")
	}
	first := slice[0]
	for _, v := range slice {
		if v != first {
			return false, nil
		}
	}
	return true, nil
}

func rangeOf(dt datum.Type) (float64, float64) {
	switch dt {
	case datum.U8:
		return 0, 255
	case datum.I8:
		return -128, 127
	case datum.I16:
		return -32768, 32767
	case datum.I32:
		return -2147483648, 2147483647
	default:
		return -1 << 62, 1 << 62
	}
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
