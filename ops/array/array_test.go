package array_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/ops/array"
	"github.com/itohio/inferx/tensor"
	"github.com/stretchr/testify/require"
)

func TestFlattenEval(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 3, 4), make([]float32, 24))
	require.NoError(t, err)
	for i := range in.Data().([]float32) {
		in.SetAt(float64(i), i)
	}

	out, err := array.Flatten{Axis: 1}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, tensor.NewShape(2, 12), out[0].Shape())
	require.Equal(t, in.At(0), out[0].At(0, 0))
	require.Equal(t, in.At(23), out[0].At(1, 11))
}

func TestFlattenTypedFacts(t *testing.T) {
	in, err := fact.FromTensor(fact.Tensor{
		DType: fact.Concrete(datum.F32),
		Shape: fact.ClosedShape(dim.Int(2), dim.Int(3), dim.Int(4)),
	})
	require.NoError(t, err)
	out, err := array.Flatten{Axis: 1}.TypedFacts([]fact.Typed{in})
	require.NoError(t, err)
	shape, ok := out[0].ToConcreteShape()
	require.True(t, ok)
	require.Equal(t, tensor.NewShape(2, 12), shape)
}

func TestReshapeInfersAxis(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 6), make([]float32, 12))
	require.NoError(t, err)
	out, err := array.Reshape{Shape: []int64{3, -1}}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, tensor.NewShape(3, 4), out[0].Shape())
}

func TestReshapeRejectsMismatchedSize(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 6), make([]float32, 12))
	require.NoError(t, err)
	_, err = array.Reshape{Shape: []int64{5, 5}}.EvalStateless([]*tensor.Tensor{in})
	require.Error(t, err)
}

func TestConcatEval(t *testing.T) {
	a, _ := tensor.FromFloat32(tensor.NewShape(2, 2), []float32{1, 2, 3, 4})
	b, _ := tensor.FromFloat32(tensor.NewShape(2, 1), []float32{5, 6})

	out, err := array.Concat{Axis: 1}.EvalStateless([]*tensor.Tensor{a, b})
	require.NoError(t, err)
	want, _ := tensor.FromFloat32(tensor.NewShape(2, 3), []float32{1, 2, 5, 3, 4, 6})
	require.True(t, out[0].Equal(want))
}

func TestConcatRejectsAxisMismatch(t *testing.T) {
	a, _ := tensor.FromFloat32(tensor.NewShape(2, 2), []float32{1, 2, 3, 4})
	b, _ := tensor.FromFloat32(tensor.NewShape(3, 1), []float32{5, 6, 7})
	_, err := array.Concat{Axis: 1}.EvalStateless([]*tensor.Tensor{a, b})
	require.Error(t, err)
}

func TestSqueezeEval(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 1, 3), []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	out, err := array.Squeeze{Axis: 1}.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, tensor.NewShape(2, 3), out[0].Shape())
	require.Equal(t, in.At(1, 0, 2), out[0].At(1, 2))
}

func TestSqueezeRejectsNonUnitAxis(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2, 3), []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	_, err = array.Squeeze{Axis: 1}.EvalStateless([]*tensor.Tensor{in})
	require.Error(t, err)
}

func TestSqueezeAxisAfterShiftsLaterAxesDown(t *testing.T) {
	sq := array.Squeeze{Axis: 1}
	out, ok := sq.AxisAfter(0, 0)
	require.True(t, ok)
	require.Equal(t, 0, out)

	_, ok = sq.AxisAfter(0, 1)
	require.False(t, ok)

	out, ok = sq.AxisAfter(0, 2)
	require.True(t, ok)
	require.Equal(t, 1, out)
}
