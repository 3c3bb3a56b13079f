// Package fact implements the Fact subtype chain — partial knowledge about
// a tensor at a graph outlet — and the lattice-meet unification used by the
// inference solver. Four kinds form the chain spec.md describes:
// TensorFact ⊐ TypedFact ⊐ NormalizedFact ⊐ PulsedFact, each adding
// specificity over the last.
package fact

import (
	"fmt"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/tensor"
)

// DType is partial knowledge of a dtype: either unknown, or a concrete tag.
type DType struct {
	Known bool
	Type  datum.Type
}

// UnknownDType is the bottom element of the dtype lattice.
var UnknownDType = DType{}

// Concrete returns a known DType.
func Concrete(t datum.Type) DType { return DType{Known: true, Type: t} }

func (d DType) String() string {
	if !d.Known {
		return "?"
	}
	return d.Type.String()
}

// UnifyDType merges two partial dtypes, failing iff both are known and
// disagree.
func UnifyDType(a, b DType) (DType, error) {
	switch {
	case !a.Known:
		return b, nil
	case !b.Known:
		return a, nil
	case a.Type == b.Type:
		return a, nil
	default:
		return DType{}, fmt.Errorf("fact: dtype contradiction: %v vs %v", a.Type, b.Type)
	}
}

// ShapeDim is partial knowledge of one axis: either unknown, or a concrete
// dim.Dim (which may itself be symbolic).
type ShapeDim struct {
	Known bool
	Dim   dim.Dim
}

// UnknownDim is the bottom element of a single axis's lattice.
var UnknownDim = ShapeDim{}

// KnownDim wraps a concrete dim.Dim.
func KnownDim(d dim.Dim) ShapeDim { return ShapeDim{Known: true, Dim: d} }

func (d ShapeDim) String() string {
	if !d.Known {
		return "?"
	}
	return d.Dim.String()
}

// UnifyDim merges two partial axis dims.
func UnifyDim(a, b ShapeDim) (ShapeDim, error) {
	switch {
	case !a.Known:
		return b, nil
	case !b.Known:
		return a, nil
	case a.Dim.Equal(b.Dim):
		return a, nil
	default:
		return ShapeDim{}, fmt.Errorf("fact: dimension contradiction: %v vs %v", a.Dim, b.Dim)
	}
}

// Shape is partial knowledge of a tensor's shape: the rank may itself be
// unknown (Open == true means more dims could still appear), and each known
// axis is a ShapeDim.
type Shape struct {
	Open bool // true iff the rank itself is not yet fixed
	Dims []ShapeDim
}

// UnknownShape is a fully open, empty shape.
var UnknownShape = Shape{Open: true}

// ClosedShape builds a Shape of known rank from concrete dims.
func ClosedShape(dims ...dim.Dim) Shape {
	out := make([]ShapeDim, len(dims))
	for i, d := range dims {
		out[i] = KnownDim(d)
	}
	return Shape{Open: false, Dims: out}
}

// RankKnown reports whether the shape's rank is fixed.
func (s Shape) RankKnown() bool { return !s.Open }

// ToConcrete returns the fully concrete tensor.Shape iff every axis is a
// known integer constant.
func (s Shape) ToConcrete() (tensor.Shape, bool) {
	if s.Open {
		return nil, false
	}
	out := make(tensor.Shape, len(s.Dims))
	for i, d := range s.Dims {
		if !d.Known {
			return nil, false
		}
		v, ok := d.Dim.ToInt64()
		if !ok {
			return nil, false
		}
		out[i] = int(v)
	}
	return out, true
}

func (s Shape) String() string {
	if s.Open && len(s.Dims) == 0 {
		return "[...]"
	}
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = d.String()
	}
	if s.Open {
		return fmt.Sprintf("%v+...", parts)
	}
	return fmt.Sprintf("%v", parts)
}

// UnifyShape merges two partial shapes (the zip_longest treatment from
// original_source/src/analyser/mod.rs's unify_shape, generalized to Go).
func UnifyShape(a, b Shape) (Shape, error) {
	n := len(a.Dims)
	if len(b.Dims) > n {
		n = len(b.Dims)
	}

	if !a.Open && !b.Open && len(a.Dims) != len(b.Dims) {
		return Shape{}, fmt.Errorf("fact: cannot unify closed shapes of different rank (%d vs %d)", len(a.Dims), len(b.Dims))
	}

	dims := make([]ShapeDim, 0, n)
	for i := 0; i < n; i++ {
		var da, db ShapeDim
		haveA := i < len(a.Dims)
		haveB := i < len(b.Dims)
		if haveA {
			da = a.Dims[i]
		}
		if haveB {
			db = b.Dims[i]
		}

		switch {
		case haveA && haveB:
			merged, err := UnifyDim(da, db)
			if err != nil {
				return Shape{}, err
			}
			dims = append(dims, merged)
		case haveA && !haveB:
			if !b.Open {
				return Shape{}, fmt.Errorf("fact: cannot unify closed shapes of different rank")
			}
			dims = append(dims, da)
		case !haveA && haveB:
			if !a.Open {
				return Shape{}, fmt.Errorf("fact: cannot unify closed shapes of different rank")
			}
			dims = append(dims, db)
		}
	}

	return Shape{Open: a.Open && b.Open, Dims: dims}, nil
}

// Value is partial knowledge of a tensor's concrete value (only populated
// once the solver has concretized a constant subexpression).
type Value struct {
	Known bool
	T     *tensor.Tensor
}

// UnknownValue is the bottom element of the value lattice.
var UnknownValue = Value{}

// KnownValue wraps a concrete tensor value.
func KnownValue(t *tensor.Tensor) Value { return Value{Known: true, T: t} }

// UnifyValue merges two partial values.
func UnifyValue(a, b Value) (Value, error) {
	switch {
	case !a.Known:
		return b, nil
	case !b.Known:
		return a, nil
	case a.T.Equal(b.T):
		return a, nil
	default:
		return Value{}, fmt.Errorf("fact: value contradiction")
	}
}

// Tensor (TensorFact) is the loosest fact kind: dtype, shape and value all
// partial, shape rank possibly unknown.
type Tensor struct {
	DType DType
	Shape Shape
	Value Value
}

// Top is the fully unknown TensorFact (⊤ of the lattice).
var Top = Tensor{DType: UnknownDType, Shape: UnknownShape, Value: UnknownValue}

// Unify computes the lattice meet of two TensorFacts: the most specific
// fact consistent with both.
func Unify(a, b Tensor) (Tensor, error) {
	dt, err := UnifyDType(a.DType, b.DType)
	if err != nil {
		return Tensor{}, err
	}
	sh, err := UnifyShape(a.Shape, b.Shape)
	if err != nil {
		return Tensor{}, err
	}
	val, err := UnifyValue(a.Value, b.Value)
	if err != nil {
		return Tensor{}, err
	}
	return Tensor{DType: dt, Shape: sh, Value: val}, nil
}

// LessSpecific reports whether a carries no more information than b — used
// by the solver to detect whether a pass changed anything (monotonicity,
// §8 property 4).
func (a Tensor) LessSpecific(b Tensor) bool {
	if a.DType.Known && (!b.DType.Known || a.DType.Type != b.DType.Type) {
		return false
	}
	if !a.Shape.Open && b.Shape.Open {
		return false
	}
	if len(a.Shape.Dims) > len(b.Shape.Dims) {
		return false
	}
	for i, d := range a.Shape.Dims {
		if d.Known {
			if i >= len(b.Shape.Dims) || !b.Shape.Dims[i].Known || !d.Dim.Equal(b.Shape.Dims[i].Dim) {
				return false
			}
		}
	}
	if a.Value.Known && (!b.Value.Known || !a.Value.T.Equal(b.Value.T)) {
		return false
	}
	return true
}
