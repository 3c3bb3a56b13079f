package fact

import (
	"fmt"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/tensor"
)

// Typed (TypedFact) requires a concrete dtype and a concrete shape (whose
// dims may themselves still be symbolic dim.Dim values); the value remains
// optional.
type Typed struct {
	DType datum.Type
	Shape []dim.Dim
	Value Value
}

// FromTensor builds a Typed fact that must be fully concretizable — used
// once the solver has pinned down dtype and rank/shape for an outlet.
func FromTensor(t Tensor) (Typed, error) {
	if !t.DType.Known {
		return Typed{}, fmt.Errorf("fact: cannot lower to Typed: dtype unknown")
	}
	if t.Shape.Open {
		return Typed{}, fmt.Errorf("fact: cannot lower to Typed: shape rank unknown")
	}
	dims := make([]dim.Dim, len(t.Shape.Dims))
	for i, d := range t.Shape.Dims {
		if !d.Known {
			return Typed{}, fmt.Errorf("fact: cannot lower to Typed: axis %d unknown", i)
		}
		dims[i] = d.Dim
	}
	return Typed{DType: t.DType.Type, Shape: dims, Value: t.Value}, nil
}

// ToConcreteShape returns the tensor.Shape iff every axis is a constant.
func (t Typed) ToConcreteShape() (tensor.Shape, bool) {
	out := make(tensor.Shape, len(t.Shape))
	for i, d := range t.Shape {
		v, ok := d.ToInt64()
		if !ok {
			return nil, false
		}
		out[i] = int(v)
	}
	return out, true
}

// Rank returns the shape's rank.
func (t Typed) Rank() int { return len(t.Shape) }

func (t Typed) String() string {
	return fmt.Sprintf("%v%v", t.DType, t.Shape)
}

// Normalized (NormalizedFact) is a TypedFact that the declutter loop has
// certified canonical: no further canonicalizable rewrite applies to the
// node that produced it. Structurally identical to Typed; the distinction
// is an invariant enforced by the declutter pass, not by extra fields.
type Normalized struct {
	Typed
}

// Pulsed (PulsedFact) adds the streaming triple to a NormalizedFact: which
// axis streams, how many elements arrive per tick, and how many leading
// elements along that axis must be discarded before output aligns with the
// non-streaming semantics.
type Pulsed struct {
	Normalized
	Axis  int
	Pulse int
	Delay int
}

// StreamingDim returns the symbolic length of the streaming axis as it
// appears in the pre-pulsification shape (e.g. the free symbol "S").
func (p Pulsed) StreamingDim() dim.Dim {
	return p.Shape[p.Axis]
}

// PulseShape returns the concrete per-tick shape: the streaming axis
// replaced by the pulse length, every other axis taken from the normalized
// shape (which must already be fully concrete there).
func (p Pulsed) PulseShape() (tensor.Shape, error) {
	out := make(tensor.Shape, len(p.Shape))
	for i, d := range p.Shape {
		if i == p.Axis {
			out[i] = p.Pulse
			continue
		}
		v, ok := d.ToInt64()
		if !ok {
			return nil, fmt.Errorf("fact: pulsed shape axis %d is not concrete", i)
		}
		out[i] = int(v)
	}
	return out, nil
}
