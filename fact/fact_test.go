package fact_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/stretchr/testify/require"
)

func concreteF32(dims ...int64) fact.Tensor {
	ds := make([]dim.Dim, len(dims))
	for i, d := range dims {
		ds[i] = dim.Int(d)
	}
	return fact.Tensor{
		DType: fact.Concrete(datum.F32),
		Shape: fact.ClosedShape(ds...),
	}
}

func TestUnifyCommutative(t *testing.T) {
	x := concreteF32(2, 3)
	y := fact.Top
	xy, err := fact.Unify(x, y)
	require.NoError(t, err)
	yx, err := fact.Unify(y, x)
	require.NoError(t, err)
	require.True(t, xy.LessSpecific(yx))
	require.True(t, yx.LessSpecific(xy))
}

func TestUnifyIdempotent(t *testing.T) {
	x := concreteF32(2, 3)
	xx, err := fact.Unify(x, x)
	require.NoError(t, err)
	require.True(t, xx.LessSpecific(x))
	require.True(t, x.LessSpecific(xx))
}

func TestUnifyWithTopIsIdentity(t *testing.T) {
	x := concreteF32(2, 3)
	merged, err := fact.Unify(x, fact.Top)
	require.NoError(t, err)
	require.True(t, merged.LessSpecific(x))
	require.True(t, x.LessSpecific(merged))
}

func TestUnifyNeverLosesInformation(t *testing.T) {
	partial := fact.Tensor{DType: fact.Concrete(datum.F32), Shape: fact.UnknownShape}
	shapeOnly := fact.Tensor{DType: fact.UnknownDType, Shape: fact.ClosedShape(dim.Int(2), dim.Int(3))}

	merged, err := fact.Unify(partial, shapeOnly)
	require.NoError(t, err)
	require.True(t, merged.DType.Known)
	require.Equal(t, datum.F32, merged.DType.Type)
	require.False(t, merged.Shape.Open)
	require.Len(t, merged.Shape.Dims, 2)
}

func TestUnifyContradictionOnDtype(t *testing.T) {
	a := fact.Tensor{DType: fact.Concrete(datum.F32), Shape: fact.UnknownShape}
	b := fact.Tensor{DType: fact.Concrete(datum.I32), Shape: fact.UnknownShape}
	_, err := fact.Unify(a, b)
	require.Error(t, err)
}

func TestUnifyContradictionOnShapeDim(t *testing.T) {
	a := concreteF32(2, 3)
	b := concreteF32(2, 4)
	_, err := fact.Unify(a, b)
	require.Error(t, err)
}

func TestUnifyOpenVsClosedRankMismatch(t *testing.T) {
	open := fact.Tensor{DType: fact.UnknownDType, Shape: fact.Shape{Open: true, Dims: []fact.ShapeDim{fact.KnownDim(dim.Int(2)), fact.KnownDim(dim.Int(3)), fact.KnownDim(dim.Int(4))}}}
	closed := concreteF32(2, 3)
	_, err := fact.Unify(open, closed)
	require.Error(t, err)
}

func TestFromTensorRequiresConcreteness(t *testing.T) {
	_, err := fact.FromTensor(fact.Tensor{DType: fact.UnknownDType, Shape: fact.ClosedShape(dim.Int(2))})
	require.Error(t, err)

	_, err = fact.FromTensor(fact.Tensor{DType: fact.Concrete(datum.F32), Shape: fact.UnknownShape})
	require.Error(t, err)

	typed, err := fact.FromTensor(concreteF32(2, 3))
	require.NoError(t, err)
	require.Equal(t, datum.F32, typed.DType)
	require.Equal(t, 2, typed.Rank())
}

func TestToConcreteShape(t *testing.T) {
	typed, err := fact.FromTensor(concreteF32(2, 3, 4))
	require.NoError(t, err)
	shape, ok := typed.ToConcreteShape()
	require.True(t, ok)
	require.Equal(t, 24, shape.Size())
}

func TestPulsedShape(t *testing.T) {
	typed, err := fact.FromTensor(concreteF32(2, 100, 8))
	require.NoError(t, err)
	p := fact.Pulsed{Normalized: fact.Normalized{Typed: typed}, Axis: 1, Pulse: 4, Delay: 2}
	shape, err := p.PulseShape()
	require.NoError(t, err)
	require.Equal(t, 2, shape[0])
	require.Equal(t, 4, shape[1])
	require.Equal(t, 8, shape[2])
}
