package onnx_test

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/onnx"
	"github.com/stretchr/testify/require"
)

// appendNodeProto builds raw NodeProto wire bytes by hand, mirroring how
// ONNX's protoc-generated marshaller would encode the same message: field 1
// (repeated string input), 2 (repeated string output), 3 (name), 4
// (op_type), 5 (repeated AttributeProto).
func appendNodeProto(inputs, outputs []string, name, opType string, attrs [][]byte) []byte {
	var b []byte
	for _, in := range inputs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, in)
	}
	for _, out := range outputs {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, out)
	}
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, name)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendString(b, opType)
	for _, a := range attrs {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	return b
}

func appendIntAttribute(name string, v int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, name)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v))
	return b
}

func appendIntsAttribute(name string, vs []int64) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, name)
	for _, v := range vs {
		b = protowire.AppendTag(b, 8, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func TestDecodeNodeProtoReadsInputsOutputsNameAndOpType(t *testing.T) {
	raw := appendNodeProto([]string{"x", "y"}, []string{"z"}, "add1", "Add", nil)
	n, err := onnx.DecodeNodeProto(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, n.Input)
	require.Equal(t, []string{"z"}, n.Output)
	require.Equal(t, "add1", n.Name)
	require.Equal(t, "Add", n.OpType)
}

func TestDecodeNodeProtoReadsIntAndIntsAttributes(t *testing.T) {
	raw := appendNodeProto([]string{"x"}, []string{"y"}, "flat1", "Flatten", [][]byte{
		appendIntAttribute("axis", 2),
	})
	n, err := onnx.DecodeNodeProto(raw)
	require.NoError(t, err)
	v, ok := n.Int("axis")
	require.True(t, ok)
	require.Equal(t, int64(2), v)

	raw2 := appendNodeProto([]string{"x"}, []string{"y"}, "sum1", "ReduceSum", [][]byte{
		appendIntsAttribute("axes", []int64{1, 2}),
	})
	n2, err := onnx.DecodeNodeProto(raw2)
	require.NoError(t, err)
	axes, ok := n2.Ints("axes")
	require.True(t, ok)
	require.Equal(t, []int64{1, 2}, axes)
}

func TestRegistryBuildsAddFromDecodedNode(t *testing.T) {
	raw := appendNodeProto([]string{"x", "y"}, []string{"z"}, "add1", "Add", nil)
	n, err := onnx.DecodeNodeProto(raw)
	require.NoError(t, err)

	reg := onnx.Default()
	ctx := onnx.NewParsingContext()
	built, err := reg.Build(ctx, n)
	require.NoError(t, err)
	require.Equal(t, "Add", built.Name())
}

func TestRegistryBuildReportsUnknownOp(t *testing.T) {
	raw := appendNodeProto([]string{"x"}, []string{"y"}, "mystery1", "TotallyMadeUpOp", nil)
	n, err := onnx.DecodeNodeProto(raw)
	require.NoError(t, err)

	reg := onnx.Default()
	ctx := onnx.NewParsingContext()
	_, err = reg.Build(ctx, n)
	require.Error(t, err)
	var unk *xerr.UnknownOp
	require.ErrorAs(t, err, &unk)
}

func TestRegistryBuildReportsUnusedAttributesInStrictMode(t *testing.T) {
	raw := appendNodeProto([]string{"x", "y"}, []string{"z"}, "add1", "Add", [][]byte{
		appendIntAttribute("unsupported_extra", 1),
	})
	n, err := onnx.DecodeNodeProto(raw)
	require.NoError(t, err)

	reg := onnx.Default()
	ctx := onnx.NewParsingContext(onnx.WithStrict(true))
	_, err = reg.Build(ctx, n)
	require.Error(t, err)
}

func TestRegistryBuildsReduceSumFromAxesAttribute(t *testing.T) {
	raw := appendNodeProto([]string{"x"}, []string{"y"}, "sum1", "ReduceSum", [][]byte{
		appendIntsAttribute("axes", []int64{1}),
	})
	n, err := onnx.DecodeNodeProto(raw)
	require.NoError(t, err)

	reg := onnx.Default()
	ctx := onnx.NewParsingContext()
	built, err := reg.Build(ctx, n)
	require.NoError(t, err)
	require.Equal(t, "ReduceSum", built.Name())
}
