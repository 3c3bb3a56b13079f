package solver_test

import (
	"testing"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/ops/activation"
	"github.com/itohio/inferx/ops/mathops"
	"github.com/itohio/inferx/solver"
	"github.com/itohio/inferx/tensor"
	"github.com/stretchr/testify/require"
)

func TestSolveAddThreePropagatesConcreteFacts(t *testing.T) {
	g := model.NewGraph()

	av, _ := tensor.FromFloat32(tensor.NewShape(3), []float32{1, 1, 1})
	bv, _ := tensor.FromFloat32(tensor.NewShape(3), []float32{2, 2, 2})
	cv, _ := tensor.FromFloat32(tensor.NewShape(3), []float32{3, 3, 3})

	a := g.AddNode("a", mathops.Const{Value: av}, nil, 1)
	b := g.AddNode("b", mathops.Const{Value: bv}, nil, 1)
	c := g.AddNode("c", mathops.Const{Value: cv}, nil, 1)
	sum1 := g.AddNode("sum1", mathops.Add(), []model.OutletID{{Node: a}, {Node: b}}, 1)
	sum2 := g.AddNode("sum2", mathops.Add(), []model.OutletID{{Node: sum1}, {Node: c}}, 1)
	g.SetOutputs(model.OutletID{Node: sum2})

	err := solver.Solve(g, nil)
	require.NoError(t, err)

	f, ok := g.OutletFact(model.OutletID{Node: sum2})
	require.True(t, ok)
	tf := f.(fact.Tensor)
	require.True(t, tf.DType.Known)
	require.Equal(t, datum.F32, tf.DType.Type)
	shape, ok := tf.Shape.ToConcrete()
	require.True(t, ok)
	require.Equal(t, tensor.NewShape(3), shape)
}

func TestSolveReportsUnderdeterminedOutput(t *testing.T) {
	g := model.NewGraph()
	// A node with no op capability the solver can use to derive facts:
	// its output stays Top, so the graph output never becomes concrete.
	n := g.AddNode("mystery", opaqueOp{}, nil, 1)
	g.SetOutputs(model.OutletID{Node: n})

	err := solver.Solve(g, nil)
	require.Error(t, err)
	var uf *xerr.UnderdeterminedFact
	require.ErrorAs(t, err, &uf)
}

func TestSolveReluRulesPropagateShapeAndDType(t *testing.T) {
	g := model.NewGraph()
	xv, _ := tensor.FromFloat32(tensor.NewShape(2, 3), []float32{1, -2, 3, -4, 5, -6})
	x := g.AddNode("x", mathops.Const{Value: xv}, nil, 1)
	relu := g.AddNode("relu", activation.Relu(), []model.OutletID{{Node: x}}, 1)
	g.SetOutputs(model.OutletID{Node: relu})

	err := solver.Solve(g, nil)
	require.NoError(t, err)

	f, ok := g.OutletFact(model.OutletID{Node: relu})
	require.True(t, ok)
	tf := f.(fact.Tensor)
	require.True(t, tf.DType.Known)
	require.Equal(t, datum.F32, tf.DType.Type)
	shape, ok := tf.Shape.ToConcrete()
	require.True(t, ok)
	require.Equal(t, tensor.NewShape(2, 3), shape)
}

func TestSolveSeedsPropagateIntoOutput(t *testing.T) {
	g := model.NewGraph()
	av, _ := tensor.FromFloat32(tensor.NewShape(2), []float32{1, 2})
	a := g.AddNode("a", mathops.Const{Value: av}, nil, 1)
	// a second input is left as a bare placeholder node the solver cannot
	// resolve on its own; seeding its fact directly is what lets Add's
	// TypedFacts run despite that.
	placeholder := g.AddNode("placeholder", opaqueOp{}, nil, 1)
	sum := g.AddNode("sum", mathops.Add(), []model.OutletID{{Node: a}, {Node: placeholder}}, 1)
	g.SetOutputs(model.OutletID{Node: sum})

	seeds := map[model.OutletID]fact.Tensor{
		{Node: placeholder}: {
			DType: fact.Concrete(datum.F32),
			Shape: fact.ClosedShape(dim.Int(2)),
		},
	}

	err := solver.Solve(g, seeds)
	require.NoError(t, err)
	f, ok := g.OutletFact(model.OutletID{Node: sum})
	require.True(t, ok)
	require.True(t, f.(fact.Tensor).DType.Known)
}

// opaqueOp has no solver-visible capability (neither Rules nor
// TypedFacts), so the solver can derive nothing about its output.
type opaqueOp struct{}

func (opaqueOp) Name() string { return "Opaque" }
