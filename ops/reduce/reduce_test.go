package reduce_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/ops/reduce"
	"github.com/itohio/inferx/tensor"
	"github.com/stretchr/testify/require"
)

func TestReduceSumEval(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 3), []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	out, err := reduce.Reduce{Kind: reduce.Sum, Axes: []int{1}}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, tensor.NewShape(2), out[0].Shape())
	require.Equal(t, 6.0, out[0].At(0))
	require.Equal(t, 15.0, out[0].At(1))
}

func TestReduceSumKeepDims(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 3), []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	out, err := reduce.Reduce{Kind: reduce.Sum, Axes: []int{1}, KeepDims: true}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, tensor.NewShape(2, 1), out[0].Shape())
}

func TestReduceMeanEval(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(4), []float32{1, 2, 3, 4})
	require.NoError(t, err)
	out, err := reduce.Reduce{Kind: reduce.Mean, Axes: []int{0}}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, 2.5, out[0].At(0))
}

func TestReduceMaxMin(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(4), []float32{3, 1, 4, 1})
	require.NoError(t, err)

	maxOut, err := reduce.Reduce{Kind: reduce.Max, Axes: []int{0}}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, 4.0, maxOut[0].At(0))

	minOut, err := reduce.Reduce{Kind: reduce.Min, Axes: []int{0}}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, 1.0, minOut[0].At(0))
}

func TestReduceTypedFacts(t *testing.T) {
	in, err := fact.FromTensor(fact.Tensor{
		DType: fact.Concrete(datum.F32),
		Shape: fact.ClosedShape(dim.Int(2), dim.Int(3), dim.Int(4)),
	})
	require.NoError(t, err)

	out, err := reduce.Reduce{Kind: reduce.Sum, Axes: []int{1}}.TypedFacts([]fact.Typed{in})
	require.NoError(t, err)
	shape, ok := out[0].ToConcreteShape()
	require.True(t, ok)
	require.Equal(t, tensor.NewShape(2, 4), shape)
}

func TestReduceAxisAfterTracksDroppedAxes(t *testing.T) {
	r := reduce.Reduce{Kind: reduce.Sum, Axes: []int{1}}
	out, ok := r.AxisAfter(0, 0)
	require.True(t, ok)
	require.Equal(t, 0, out)

	out, ok = r.AxisAfter(0, 2)
	require.True(t, ok)
	require.Equal(t, 1, out)

	_, ok = r.AxisAfter(0, 1)
	require.False(t, ok)
}

func TestReduceChangeAxisShiftsAxesAtOrBeyondRemovedUp(t *testing.T) {
	r := reduce.Reduce{Kind: reduce.Sum, Axes: []int{0, 1}}
	out, outChange, ok := r.ChangeAxis(0, 1)
	require.True(t, ok)
	require.Equal(t, -1, outChange)
	rewritten, ok := out.(reduce.Reduce)
	require.True(t, ok)
	require.Equal(t, []int{0, 2}, rewritten.Axes)
}

func TestReduceChangeAxisRejectsWrongInput(t *testing.T) {
	r := reduce.Reduce{Kind: reduce.Sum, Axes: []int{0}}
	_, _, ok := r.ChangeAxis(1, 0)
	require.False(t, ok)
}
