// Package onnx implements just enough of ONNX's wire shape to exercise the
// inference pipeline against real byte streams: a hand-rolled NodeProto/
// TensorProto/AttributeProto reader built on the same
// google.golang.org/protobuf module the teacher already depends on, one
// level below its generated-message API
// (google.golang.org/protobuf/encoding/protowire), since no generated
// onnx.proto binding is available here. Full ONNX/TensorFlow schema
// coverage is explicitly out of scope; this package reads the field
// numbers every ONNX NodeProto/TensorProto/AttributeProto actually uses and
// no more.
package onnx

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/itohio/inferx/internal/xerr"
)

// Attribute is one NodeProto attribute: exactly one of the value fields is
// meaningful, selected by whichever builder consults it by name.
type Attribute struct {
	Name    string
	F       float64
	I       int64
	S       string
	T       *TensorProto
	Floats  []float64
	Ints    []int64
	Strings []string
}

// NodeProto mirrors ONNX's NodeProto wire shape: field 1=input (repeated
// string), 2=output (repeated string), 3=name, 4=op_type, 5=attribute
// (repeated AttributeProto).
type NodeProto struct {
	Input     []string
	Output    []string
	Name      string
	OpType    string
	Attribute []Attribute
}

func (n *NodeProto) attr(name string) (Attribute, bool) {
	for _, a := range n.Attribute {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Float returns the named float attribute.
func (n *NodeProto) Float(name string) (float64, bool) { a, ok := n.attr(name); return a.F, ok }

// Int returns the named int attribute.
func (n *NodeProto) Int(name string) (int64, bool) { a, ok := n.attr(name); return a.I, ok }

// Str returns the named string attribute.
func (n *NodeProto) Str(name string) (string, bool) { a, ok := n.attr(name); return a.S, ok }

// Ints returns the named repeated-int attribute.
func (n *NodeProto) Ints(name string) ([]int64, bool) { a, ok := n.attr(name); return a.Ints, ok }

// Floats returns the named repeated-float attribute.
func (n *NodeProto) Floats(name string) ([]float64, bool) { a, ok := n.attr(name); return a.Floats, ok }

// Tensor returns the named tensor-valued attribute (ONNX's `t` field).
func (n *NodeProto) Tensor(name string) (*TensorProto, bool) { a, ok := n.attr(name); return a.T, ok }

// TensorProto mirrors ONNX's TensorProto wire shape, reading only the
// fields a Constant node needs: 1=dims (packed int64), 2=data_type,
// 4=float_data (packed float), 7=int64_data (packed int64), 9=raw_data.
type TensorProto struct {
	Dims      []int64
	DataType  int32
	FloatData []float32
	Int64Data []int64
	RawData   []byte
}

// DecodeNodeProto parses one ONNX NodeProto message off the wire.
func DecodeNodeProto(data []byte) (*NodeProto, error) {
	n := &NodeProto{}
	for len(data) > 0 {
		num, typ, tn := protowire.ConsumeTag(data)
		if tn < 0 {
			return nil, &xerr.ParseError{Context: "NodeProto", Err: protowire.ParseError(tn)}
		}
		data = data[tn:]

		switch num {
		case 1:
			v, m, err := consumeString(data)
			if err != nil {
				return nil, &xerr.ParseError{Context: "NodeProto.input", Err: err}
			}
			n.Input = append(n.Input, v)
			data = data[m:]
		case 2:
			v, m, err := consumeString(data)
			if err != nil {
				return nil, &xerr.ParseError{Context: "NodeProto.output", Err: err}
			}
			n.Output = append(n.Output, v)
			data = data[m:]
		case 3:
			v, m, err := consumeString(data)
			if err != nil {
				return nil, &xerr.ParseError{Context: "NodeProto.name", Err: err}
			}
			n.Name = v
			data = data[m:]
		case 4:
			v, m, err := consumeString(data)
			if err != nil {
				return nil, &xerr.ParseError{Context: "NodeProto.op_type", Err: err}
			}
			n.OpType = v
			data = data[m:]
		case 5:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, &xerr.ParseError{Context: "NodeProto.attribute", Err: protowire.ParseError(m)}
			}
			attr, err := decodeAttribute(v)
			if err != nil {
				return nil, err
			}
			n.Attribute = append(n.Attribute, attr)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, &xerr.ParseError{Context: "NodeProto", Err: protowire.ParseError(m)}
			}
			data = data[m:]
		}
	}
	return n, nil
}

func decodeAttribute(data []byte) (Attribute, error) {
	var a Attribute
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return a, &xerr.ParseError{Context: "AttributeProto", Err: protowire.ParseError(n)}
		}
		data = data[n:]

		switch num {
		case 1:
			v, m, err := consumeString(data)
			if err != nil {
				return a, &xerr.ParseError{Context: "AttributeProto.name", Err: err}
			}
			a.Name = v
			data = data[m:]
		case 2:
			v, m := protowire.ConsumeFixed32(data)
			if m < 0 {
				return a, &xerr.ParseError{Context: "AttributeProto.f", Err: protowire.ParseError(m)}
			}
			a.F = float64(math.Float32frombits(v))
			data = data[m:]
		case 3:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return a, &xerr.ParseError{Context: "AttributeProto.i", Err: protowire.ParseError(m)}
			}
			a.I = int64(v)
			data = data[m:]
		case 4:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return a, &xerr.ParseError{Context: "AttributeProto.s", Err: protowire.ParseError(m)}
			}
			a.S = string(v)
			data = data[m:]
		case 5:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return a, &xerr.ParseError{Context: "AttributeProto.t", Err: protowire.ParseError(m)}
			}
			t, err := decodeTensorProto(v)
			if err != nil {
				return a, err
			}
			a.T = t
			data = data[m:]
		case 7:
			vals, m, err := consumePackedFloats(typ, data)
			if err != nil {
				return a, err
			}
			a.Floats = append(a.Floats, vals...)
			data = data[m:]
		case 8:
			vals, m, err := consumePackedInts(typ, data)
			if err != nil {
				return a, err
			}
			a.Ints = append(a.Ints, vals...)
			data = data[m:]
		case 9:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return a, &xerr.ParseError{Context: "AttributeProto.strings", Err: protowire.ParseError(m)}
			}
			a.Strings = append(a.Strings, string(v))
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return a, &xerr.ParseError{Context: "AttributeProto", Err: protowire.ParseError(m)}
			}
			data = data[m:]
		}
	}
	return a, nil
}

func decodeTensorProto(data []byte) (*TensorProto, error) {
	t := &TensorProto{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, &xerr.ParseError{Context: "TensorProto", Err: protowire.ParseError(n)}
		}
		data = data[n:]

		switch num {
		case 1:
			vals, m, err := consumePackedInts(typ, data)
			if err != nil {
				return nil, err
			}
			t.Dims = append(t.Dims, vals...)
			data = data[m:]
		case 2:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, &xerr.ParseError{Context: "TensorProto.data_type", Err: protowire.ParseError(m)}
			}
			t.DataType = int32(v)
			data = data[m:]
		case 4:
			vals, m, err := consumePackedFloats(typ, data)
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				t.FloatData = append(t.FloatData, float32(v))
			}
			data = data[m:]
		case 7:
			vals, m, err := consumePackedInts(typ, data)
			if err != nil {
				return nil, err
			}
			t.Int64Data = append(t.Int64Data, vals...)
			data = data[m:]
		case 9:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return nil, &xerr.ParseError{Context: "TensorProto.raw_data", Err: protowire.ParseError(m)}
			}
			t.RawData = append([]byte(nil), v...)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, &xerr.ParseError{Context: "TensorProto", Err: protowire.ParseError(m)}
			}
			data = data[m:]
		}
	}
	return t, nil
}

func consumeString(data []byte) (string, int, error) {
	v, m := protowire.ConsumeString(data)
	if m < 0 {
		return "", 0, protowire.ParseError(m)
	}
	return v, m, nil
}

// consumePackedFloats consumes one field occurrence of a packed-or-not
// repeated float (ONNX declares floats/float_data as packed proto3 fields,
// but tolerates an unpacked encoding too).
func consumePackedFloats(typ protowire.Type, data []byte) ([]float64, int, error) {
	if typ == protowire.BytesType {
		raw, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		if len(raw)%4 != 0 {
			return nil, 0, fmt.Errorf("onnx: packed float field has %d bytes, not a multiple of 4", len(raw))
		}
		out := make([]float64, 0, len(raw)/4)
		for i := 0; i < len(raw); i += 4 {
			bits := uint32(raw[i]) | uint32(raw[i+1])<<8 | uint32(raw[i+2])<<16 | uint32(raw[i+3])<<24
			out = append(out, float64(math.Float32frombits(bits)))
		}
		return out, m, nil
	}
	v, m := protowire.ConsumeFixed32(data)
	if m < 0 {
		return nil, 0, protowire.ParseError(m)
	}
	return []float64{float64(math.Float32frombits(v))}, m, nil
}

// consumePackedInts consumes one field occurrence of a packed-or-not
// repeated varint.
func consumePackedInts(typ protowire.Type, data []byte) ([]int64, int, error) {
	if typ == protowire.BytesType {
		raw, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		var out []int64
		for len(raw) > 0 {
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return nil, 0, protowire.ParseError(n)
			}
			out = append(out, int64(v))
			raw = raw[n:]
		}
		return out, m, nil
	}
	v, m := protowire.ConsumeVarint(data)
	if m < 0 {
		return nil, 0, protowire.ParseError(m)
	}
	return []int64{int64(v)}, m, nil
}
