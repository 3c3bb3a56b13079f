package declutter_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/declutter"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/ops/array"
	"github.com/itohio/inferx/ops/mathops"
	"github.com/itohio/inferx/ops/quant"
	"github.com/itohio/inferx/ops/reduce"
	"github.com/itohio/inferx/tensor"
	"github.com/stretchr/testify/require"
)

func TestRunFoldsConstantChainToSingleNode(t *testing.T) {
	g := model.NewGraph()
	av, _ := tensor.FromFloat32(tensor.NewShape(1), []float32{1})
	bv, _ := tensor.FromFloat32(tensor.NewShape(1), []float32{2})
	cv, _ := tensor.FromFloat32(tensor.NewShape(1), []float32{3})

	a := g.AddNode("a", mathops.Const{Value: av}, nil, 1)
	b := g.AddNode("b", mathops.Const{Value: bv}, nil, 1)
	c := g.AddNode("c", mathops.Const{Value: cv}, nil, 1)
	sum1 := g.AddNode("sum1", mathops.Add(), []model.OutletID{{Node: a}, {Node: b}}, 1)
	sum2 := g.AddNode("sum2", mathops.Add(), []model.OutletID{{Node: sum1}, {Node: c}}, 1)
	g.SetOutputs(model.OutletID{Node: sum2})

	require.NoError(t, declutter.Run(g))

	outOutlet := g.Outputs()[0]
	outNode := g.Node(outOutlet.Node)
	require.Equal(t, "Const", outNode.Op.Name())
	val, ok := outNode.Const()
	require.True(t, ok)
	require.Equal(t, float64(6), val.At(0))
}

func TestRunFusesAdjacentQuantizeDequantize(t *testing.T) {
	g := model.NewGraph()
	x := g.AddNode("x", model.InputPlaceholder{DType: datum.F32, Shape: []dim.Dim{dim.Int(1)}}, nil, 1)
	g.SetInputs(model.OutletID{Node: x})

	q := quant.QuantizeLinear{Scale: 2, ZeroPoint: 1, DType: datum.U8}
	deq := quant.DequantizeLinear{Scale: 2, ZeroPoint: 1, DType: datum.F32}

	qNode := g.AddNode("q", q, []model.OutletID{{Node: x}}, 1)
	deqNode := g.AddNode("deq", deq, []model.OutletID{{Node: qNode}}, 1)
	// identity() is a pass-through elementwise-ish consumer standing in for
	// "whatever reads the dequantized value downstream."
	relu := g.AddNode("passthrough", identityOp{}, []model.OutletID{{Node: deqNode}}, 1)
	g.SetOutputs(model.OutletID{Node: relu})

	require.NoError(t, declutter.Run(g))

	// after fusion, passthrough's input should point straight at x, and the
	// quantize/dequantize nodes should be gone.
	require.Equal(t, x, g.Node(relu).Inputs[0].Node)
	require.Nil(t, g.Node(qNode))
	require.Nil(t, g.Node(deqNode))
}

func TestRunFusesSqueezeIntoConsumerViaAxisChanger(t *testing.T) {
	g := model.NewGraph()
	xIn := g.AddNode("x", model.InputPlaceholder{
		DType: datum.F32,
		Shape: []dim.Dim{dim.Int(2), dim.Int(1), dim.Int(3)},
	}, nil, 1)
	g.SetInputs(model.OutletID{Node: xIn})

	sq := g.AddNode("squeeze", array.Squeeze{Axis: 1}, []model.OutletID{{Node: xIn}}, 1)
	red := g.AddNode("reduce", reduce.Reduce{Kind: reduce.Sum, Axes: []int{1}}, []model.OutletID{{Node: sq}}, 1)
	g.SetOutputs(model.OutletID{Node: red})

	require.NoError(t, declutter.Run(g))

	outOutlet := g.Outputs()[0]
	outNode := g.Node(outOutlet.Node)
	require.NotNil(t, outNode)

	rewritten, ok := outNode.Op.(reduce.Reduce)
	require.True(t, ok)
	require.Equal(t, []int{2}, rewritten.Axes)

	require.Equal(t, xIn, outNode.Inputs[0].Node)
	require.Nil(t, g.Node(sq))
	require.Nil(t, g.Node(red))
}

func TestRunReportsNonTerminatingDeclutter(t *testing.T) {
	g := model.NewGraph()
	g.AddNode("spinning", spinningOp{}, nil, 1)

	err := declutter.Run(g)
	require.Error(t, err)
	var nt *xerr.NonTerminatingDeclutter
	require.ErrorAs(t, err, &nt)
}

// identityOp is a minimal StatelessEvaluator standing in for any op that
// simply reads a value downstream of a fused dequantize.
type identityOp struct{}

func (identityOp) Name() string { return "Identity" }
func (identityOp) EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	return inputs, nil
}

// spinningOp always proposes replacing itself with an identical copy of
// itself, so declutter.Run's op.Declutterer path never reaches a fixed
// point and must hit the iteration cap.
type spinningOp struct{}

func (spinningOp) Name() string { return "Spinning" }

func (spinningOp) Declutter(ctx op.DeclutterContext) (op.Op, []int, bool, error) {
	return spinningOp{}, nil, true, nil
}
