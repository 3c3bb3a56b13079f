package onnx_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/itohio/inferx/onnx"
	"github.com/stretchr/testify/require"
)

func TestToTensorFromFloatData(t *testing.T) {
	tp := &onnx.TensorProto{
		Dims:      []int64{2},
		DataType:  1, // FLOAT
		FloatData: []float32{1, 2},
	}
	got, err := onnx.ToTensor(tp)
	require.NoError(t, err)
	require.Equal(t, float64(1), got.At(0))
	require.Equal(t, float64(2), got.At(1))
}

func TestToTensorFromRawData(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(3.5))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(-1.5))
	tp := &onnx.TensorProto{
		Dims:     []int64{2},
		DataType: 1, // FLOAT
		RawData:  buf,
	}
	got, err := onnx.ToTensor(tp)
	require.NoError(t, err)
	require.InDelta(t, 3.5, got.At(0), 1e-6)
	require.InDelta(t, -1.5, got.At(1), 1e-6)
}

func TestToTensorRejectsUnsupportedDataType(t *testing.T) {
	tp := &onnx.TensorProto{Dims: []int64{1}, DataType: 99}
	_, err := onnx.ToTensor(tp)
	require.Error(t, err)
}
