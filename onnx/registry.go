package onnx

import (
	"fmt"
	"sync"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/internal/xlog"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/ops/activation"
	"github.com/itohio/inferx/ops/array"
	"github.com/itohio/inferx/ops/conv"
	"github.com/itohio/inferx/ops/mathops"
	"github.com/itohio/inferx/ops/quant"
	"github.com/itohio/inferx/ops/reduce"
)

// Constructor builds the op.Op a NodeProto describes, given the attributes
// this op_type uses. The returned usedAttrs names every attribute the
// constructor actually consulted, letting Registry.Build's strict mode flag
// an attribute that was present but silently ignored (e.g. an unsupported
// Conv dilation).
type Constructor func(ctx *ParsingContext, n *NodeProto) (built op.Op, usedAttrs []string, err error)

// Registry maps an ONNX op_type string to the Constructor that builds it.
type Registry struct {
	mu       sync.RWMutex
	byOpType map[string]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byOpType: map[string]Constructor{}}
}

// Register associates opType with ctor, replacing any prior registration.
func (r *Registry) Register(opType string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOpType[opType] = ctor
}

// Build looks up n.OpType and invokes its Constructor, returning
// xerr.UnknownOp if no op_type is registered.
func (r *Registry) Build(ctx *ParsingContext, n *NodeProto) (op.Op, error) {
	r.mu.RLock()
	ctor, ok := r.byOpType[n.OpType]
	r.mu.RUnlock()
	if !ok {
		return nil, &xerr.UnknownOp{OpType: n.OpType}
	}

	built, used, err := ctor(ctx, n)
	if err != nil {
		return nil, &xerr.ParseError{Context: fmt.Sprintf("%s(%s)", n.Name, n.OpType), Err: err}
	}

	if ctx.opts.Strict {
		if extra := unusedAttributes(n, used); len(extra) > 0 {
			return nil, &xerr.ParseError{
				Context: fmt.Sprintf("%s(%s)", n.Name, n.OpType),
				Err:     fmt.Errorf("attributes not consumed by this op_type: %v", extra),
			}
		}
	}

	xlog.Log.Debug().Str("node", n.Name).Str("op_type", n.OpType).Msg("onnx: built op")
	return built, nil
}

func unusedAttributes(n *NodeProto, used []string) []string {
	consumed := make(map[string]bool, len(used))
	for _, name := range used {
		consumed[name] = true
	}
	var extra []string
	for _, a := range n.Attribute {
		if !consumed[a.Name] {
			extra = append(extra, a.Name)
		}
	}
	return extra
}

// Default returns a Registry pre-populated with every op_type the ops/
// packages implement.
func Default() *Registry {
	r := NewRegistry()

	r.Register("Add", binaryConstructor(func() op.Op { return mathops.Add() }))
	r.Register("Sub", binaryConstructor(func() op.Op { return mathops.Sub() }))
	r.Register("Mul", binaryConstructor(func() op.Op { return mathops.Mul() }))
	r.Register("Div", binaryConstructor(func() op.Op { return mathops.Div() }))

	r.Register("Constant", buildConstant)
	r.Register("Reshape", buildReshape)
	r.Register("Flatten", buildFlatten)
	r.Register("Concat", buildConcat)

	r.Register("QuantizeLinear", buildQuantizeLinear)
	r.Register("DequantizeLinear", buildDequantizeLinear)

	r.Register("ReduceSum", reduceConstructor(reduce.Sum))
	r.Register("ReduceMean", reduceConstructor(reduce.Mean))
	r.Register("ReduceMax", reduceConstructor(reduce.Max))
	r.Register("ReduceMin", reduceConstructor(reduce.Min))

	r.Register("Conv", buildConv1D)

	r.Register("Relu", unaryConstructor(func() op.Op { return activation.Relu() }))
	r.Register("Sigmoid", unaryConstructor(func() op.Op { return activation.Sigmoid() }))
	r.Register("Tanh", unaryConstructor(func() op.Op { return activation.Tanh() }))
	r.Register("Exp", unaryConstructor(func() op.Op { return activation.Exp() }))
	r.Register("Sqrt", unaryConstructor(func() op.Op { return activation.Sqrt() }))
	r.Register("Log", unaryConstructor(func() op.Op { return activation.Log() }))

	return r
}

func binaryConstructor(make func() op.Op) Constructor {
	return func(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
		return make(), nil, nil
	}
}

// unaryConstructor wraps an activation op.Op constructor the same way
// binaryConstructor wraps a mathops one: the op_type takes no attributes,
// so there is nothing to report as used.
func unaryConstructor(make func() op.Op) Constructor {
	return func(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
		return make(), nil, nil
	}
}

func buildConstant(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
	tp, ok := n.Tensor("value")
	if !ok {
		return nil, nil, fmt.Errorf("onnx: Constant requires a tensor-valued \"value\" attribute")
	}
	t, err := ToTensor(tp)
	if err != nil {
		return nil, nil, err
	}
	return mathops.Const{Value: t}, []string{"value"}, nil
}

func buildReshape(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
	shape, ok := n.Ints("shape")
	if !ok {
		return nil, nil, fmt.Errorf("onnx: Reshape requires an \"shape\" int-list attribute")
	}
	return array.Reshape{Shape: shape}, []string{"shape"}, nil
}

func buildFlatten(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
	axis := int64(1) // ONNX default
	used := []string{}
	if v, ok := n.Int("axis"); ok {
		axis = v
		used = append(used, "axis")
	}
	return array.Flatten{Axis: int(axis)}, used, nil
}

func buildConcat(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
	axis, ok := n.Int("axis")
	if !ok {
		return nil, nil, fmt.Errorf("onnx: Concat requires an \"axis\" attribute")
	}
	return array.Concat{Axis: int(axis)}, []string{"axis"}, nil
}

func buildQuantizeLinear(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
	scale, zp, dt, used, err := quantParams(n, datum.U8)
	if err != nil {
		return nil, nil, err
	}
	return quant.QuantizeLinear{Scale: scale, ZeroPoint: zp, DType: dt}, used, nil
}

func buildDequantizeLinear(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
	scale, zp, _, used, err := quantParams(n, datum.F32)
	if err != nil {
		return nil, nil, err
	}
	return quant.DequantizeLinear{Scale: scale, ZeroPoint: zp, DType: datum.F32}, used, nil
}

// quantParams reads the shared y_scale/y_zero_point attribute pair the
// QuantizeLinear/DequantizeLinear op_types both use; a multi-element
// zero-point carried as a tensor attribute is collapsed to the scalar this
// engine's quant ops expect via quant.AllEqualToFirst, the fix spec.md's
// zero-point Open Question settled on.
func quantParams(n *NodeProto, defaultDType datum.Type) (scale float64, zeroPoint int64, dt datum.Type, used []string, err error) {
	s, ok := n.Float("y_scale")
	if !ok {
		return 0, 0, 0, nil, fmt.Errorf("onnx: QuantizeLinear/DequantizeLinear requires a \"y_scale\" attribute")
	}
	used = []string{"y_scale"}

	zp := int64(0)
	if tp, ok := n.Tensor("y_zero_point"); ok {
		used = append(used, "y_zero_point")
		t, err := ToTensor(tp)
		if err != nil {
			return 0, 0, 0, nil, err
		}
		vals := make([]int64, t.Size())
		for i := range vals {
			vals[i] = int64(t.At(i))
		}
		allEqual, err := quant.AllEqualToFirst(vals)
		if err != nil {
			return 0, 0, 0, nil, fmt.Errorf("onnx: y_zero_point: %w", err)
		}
		if !allEqual {
			return 0, 0, 0, nil, fmt.Errorf("onnx: y_zero_point must be scalar or uniformly-valued")
		}
		zp = vals[0]
		dt = t.DataType()
	} else {
		dt = defaultDType
	}
	return s, zp, dt, used, nil
}

func reduceConstructor(kind reduce.Kind) Constructor {
	return func(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
		axes, ok := n.Ints("axes")
		if !ok {
			return nil, nil, fmt.Errorf("onnx: %s requires an \"axes\" int-list attribute", kind)
		}
		used := []string{"axes"}
		keepDims := true
		if v, ok := n.Int("keepdims"); ok {
			keepDims = v != 0
			used = append(used, "keepdims")
		}
		axesInt := make([]int, len(axes))
		for i, a := range axes {
			axesInt[i] = int(a)
		}
		return reduce.Reduce{Kind: kind, Axes: axesInt, KeepDims: keepDims}, used, nil
	}
}

func buildConv1D(ctx *ParsingContext, n *NodeProto) (op.Op, []string, error) {
	kernelShape, ok := n.Ints("kernel_shape")
	if !ok || len(kernelShape) != 1 {
		return nil, nil, fmt.Errorf("onnx: Conv requires a single-axis \"kernel_shape\" attribute (1-D conv only)")
	}
	used := []string{"kernel_shape"}

	stride := int64(1)
	if v, ok := n.Ints("strides"); ok && len(v) > 0 {
		stride = v[0]
		used = append(used, "strides")
	}
	pad := int64(0)
	if v, ok := n.Ints("pads"); ok && len(v) > 0 {
		pad = v[0]
		used = append(used, "pads")
	}
	group := int64(1)
	if v, ok := n.Int("group"); ok {
		group = v
		used = append(used, "group")
	}
	if group != 1 {
		return nil, nil, fmt.Errorf("onnx: Conv: grouped convolution is not supported")
	}

	// ONNX never puts the channel counts in a NodeProto attribute: they
	// live in the weight tensor's own shape [outChannels, inChannels,
	// kernelLen], looked up here as a graph initializer by input name
	// (NodeProto.Input[1]) rather than decoded from this node alone.
	if len(n.Input) < 2 {
		return nil, nil, fmt.Errorf("onnx: Conv requires a weight input (X, W[, B])")
	}
	w, ok := ctx.Initializer(n.Input[1])
	if !ok {
		return nil, nil, fmt.Errorf("onnx: Conv: weight initializer %q not found", n.Input[1])
	}
	if w.Rank() != 3 {
		return nil, nil, fmt.Errorf("onnx: Conv: weight must be rank 3 [outChannels, inChannels, kernelLen], got rank %d", w.Rank())
	}
	wShape := w.Shape()

	return conv.Conv1D{
		OutChannels: wShape[0],
		InChannels:  wShape[1],
		KernelLen:   int(kernelShape[0]),
		Stride:      int(stride),
		Pad:         int(pad),
	}, used, nil
}
