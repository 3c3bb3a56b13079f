package mathops_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/ops/mathops"
	"github.com/itohio/inferx/tensor"
	"github.com/stretchr/testify/require"
)

func TestAddEval(t *testing.T) {
	a, err := tensor.FromFloat32(tensor.NewShape(3), []float32{1, 2, 3})
	require.NoError(t, err)
	b, err := tensor.FromFloat32(tensor.NewShape(3), []float32{10, 20, 30})
	require.NoError(t, err)

	out, err := mathops.Add().EvalStateless([]*tensor.Tensor{a, b})
	require.NoError(t, err)
	require.Len(t, out, 1)

	want, err := tensor.FromFloat32(tensor.NewShape(3), []float32{11, 22, 33})
	require.NoError(t, err)
	require.True(t, out[0].Equal(want))
}

func TestAddBroadcastsScalar(t *testing.T) {
	a, err := tensor.FromFloat32(tensor.NewShape(2, 2), []float32{1, 2, 3, 4})
	require.NoError(t, err)
	scalar := tensor.Scalar(10)

	out, err := mathops.Add().EvalStateless([]*tensor.Tensor{a, scalar})
	require.NoError(t, err)

	want, err := tensor.FromFloat32(tensor.NewShape(2, 2), []float32{11, 12, 13, 14})
	require.NoError(t, err)
	require.True(t, out[0].Equal(want))
}

func TestAddThreeChain(t *testing.T) {
	// The Add-3 scenario: (a+b)+c, matching the simplest end-to-end chain.
	a, _ := tensor.FromFloat32(tensor.NewShape(3), []float32{1, 1, 1})
	b, _ := tensor.FromFloat32(tensor.NewShape(3), []float32{2, 2, 2})
	c, _ := tensor.FromFloat32(tensor.NewShape(3), []float32{3, 3, 3})

	ab, err := mathops.Add().EvalStateless([]*tensor.Tensor{a, b})
	require.NoError(t, err)
	abc, err := mathops.Add().EvalStateless([]*tensor.Tensor{ab[0], c})
	require.NoError(t, err)

	want, _ := tensor.FromFloat32(tensor.NewShape(3), []float32{6, 6, 6})
	require.True(t, abc[0].Equal(want))
}

func TestAddTypedFactsPromotesDType(t *testing.T) {
	aFact, err := fact.FromTensor(fact.Tensor{
		DType: fact.Concrete(datum.I32),
		Shape: fact.ClosedShape(dim.Int(2), dim.Int(3)),
	})
	require.NoError(t, err)
	bFact, err := fact.FromTensor(fact.Tensor{
		DType: fact.Concrete(datum.F32),
		Shape: fact.ClosedShape(dim.Int(2), dim.Int(3)),
	})
	require.NoError(t, err)

	out, err := mathops.Add().TypedFacts([]fact.Typed{aFact, bFact})
	require.NoError(t, err)
	require.Equal(t, datum.F32, out[0].DType)
}

func TestMulEval(t *testing.T) {
	a, _ := tensor.FromFloat32(tensor.NewShape(2), []float32{2, 3})
	b, _ := tensor.FromFloat32(tensor.NewShape(2), []float32{4, 5})
	out, err := mathops.Mul().EvalStateless([]*tensor.Tensor{a, b})
	require.NoError(t, err)
	want, _ := tensor.FromFloat32(tensor.NewShape(2), []float32{8, 15})
	require.True(t, out[0].Equal(want))
}

func TestConstEvalReturnsValue(t *testing.T) {
	v, _ := tensor.FromFloat32(tensor.NewShape(2), []float32{1, 2})
	c := mathops.Const{Value: v}
	out, err := c.EvalStateless(nil)
	require.NoError(t, err)
	require.True(t, out[0].Equal(v))

	facts, err := c.TypedFacts(nil)
	require.NoError(t, err)
	require.True(t, facts[0].Value.Known)
}
