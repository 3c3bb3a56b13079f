package quant_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/ops/quant"
	"github.com/itohio/inferx/tensor"
	"github.com/stretchr/testify/require"
)

func TestQuantizeDequantizeRoundTrip(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(4), []float32{0, 5, 10, -5})
	require.NoError(t, err)

	q := quant.QuantizeLinear{Scale: 0.5, ZeroPoint: 10, DType: datum.U8}
	qOut, err := q.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)

	deq := quant.DequantizeLinear{Scale: 0.5, ZeroPoint: 10, DType: datum.F32}
	deqOut, err := deq.EvalStateless(qOut)
	require.NoError(t, err)

	require.True(t, deqOut[0].AlmostEqual(in, 1e-6))
}

func TestIsIdentityPair(t *testing.T) {
	q := quant.QuantizeLinear{Scale: 0.5, ZeroPoint: 10, DType: datum.U8}
	deq := quant.DequantizeLinear{Scale: 0.5, ZeroPoint: 10, DType: datum.F32}
	require.True(t, quant.IsIdentityPair(q, deq))

	deq2 := quant.DequantizeLinear{Scale: 0.25, ZeroPoint: 10, DType: datum.F32}
	require.False(t, quant.IsIdentityPair(q, deq2))
}

func TestAllEqualToFirstIncludesFirstElement(t *testing.T) {
	ok, err := quant.AllEqualToFirst([]int64{7, 7, 7})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = quant.AllEqualToFirst([]int64{7, 7, 8})
	require.NoError(t, err)
	require.False(t, ok)

	// A single-element slice is trivially all-equal to its own first
	// element.
	ok, err = quant.AllEqualToFirst([]int64{3})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllEqualToFirstRejectsEmpty(t *testing.T) {
	_, err := quant.AllEqualToFirst(nil)
	require.Error(t, err)
}

func TestQuantizeClampsToRange(t *testing.T) {
	in, err := tensor.FromFloat32(tensor.NewShape(2), []float32{1000, -1000})
	require.NoError(t, err)
	q := quant.QuantizeLinear{Scale: 1, ZeroPoint: 0, DType: datum.U8}
	out, err := q.EvalStateless([]*tensor.Tensor{in})
	require.NoError(t, err)
	require.Equal(t, 255.0, out[0].At(0))
	require.Equal(t, 0.0, out[0].At(1))
}
