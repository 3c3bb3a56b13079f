package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/tensor"
)

// onnxDataType maps ONNX's TensorProto.data_type enum to this engine's
// datum.Type. Only the types the rest of the registry's ops can consume are
// covered; an unmapped data_type is a parse error rather than a silent
// best-effort guess.
var onnxDataType = map[int32]datum.Type{
	1:  datum.F32,
	2:  datum.U8,
	3:  datum.I8,
	4:  datum.U16,
	5:  datum.I16,
	6:  datum.I32,
	7:  datum.I64,
	9:  datum.Bool,
	10: datum.F16,
	11: datum.F64,
}

// ToTensor materializes a decoded TensorProto as a concrete *tensor.Tensor,
// preferring the typed data fields (float_data/int64_data) over raw_data
// when both happen to be present.
func ToTensor(t *TensorProto) (*tensor.Tensor, error) {
	dt, ok := onnxDataType[t.DataType]
	if !ok {
		return nil, fmt.Errorf("onnx: unsupported TensorProto data_type %d", t.DataType)
	}
	shape := make(tensor.Shape, len(t.Dims))
	for i, d := range t.Dims {
		shape[i] = int(d)
	}

	switch {
	case len(t.FloatData) > 0:
		if dt != datum.F32 {
			return nil, fmt.Errorf("onnx: TensorProto carries float_data but data_type is %s", dt)
		}
		return tensor.FromFloat32(shape, t.FloatData)
	case len(t.Int64Data) > 0:
		if dt != datum.I64 {
			return nil, fmt.Errorf("onnx: TensorProto carries int64_data but data_type is %s", dt)
		}
		return tensor.FromInt64(shape, t.Int64Data)
	case len(t.RawData) > 0:
		return tensorFromRaw(dt, shape, t.RawData)
	default:
		return tensor.New(dt, shape)
	}
}

// tensorFromRaw decodes ONNX's little-endian raw_data buffer into a
// concrete tensor of dtype dt.
func tensorFromRaw(dt datum.Type, shape tensor.Shape, raw []byte) (*tensor.Tensor, error) {
	n := shape.Size()
	size := dt.SizeOf()
	if len(raw) != n*size {
		return nil, fmt.Errorf("onnx: raw_data has %d bytes, want %d for %d elements of %s", len(raw), n*size, n, dt)
	}

	out, err := tensor.New(dt, shape)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		chunk := raw[i*size : (i+1)*size]
		var v float64
		switch dt {
		case datum.F32:
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case datum.F64:
			v = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		case datum.U8:
			v = float64(chunk[0])
		case datum.I8:
			v = float64(int8(chunk[0]))
		case datum.U16:
			v = float64(binary.LittleEndian.Uint16(chunk))
		case datum.I16:
			v = float64(int16(binary.LittleEndian.Uint16(chunk)))
		case datum.I32:
			v = float64(int32(binary.LittleEndian.Uint32(chunk)))
		case datum.I64:
			v = float64(int64(binary.LittleEndian.Uint64(chunk)))
		case datum.Bool:
			v = 0
			if chunk[0] != 0 {
				v = 1
			}
		default:
			return nil, fmt.Errorf("onnx: raw_data decoding not supported for %s", dt)
		}
		out.SetAt(v, i)
	}
	return out, nil
}
