// Package inferx is the top-level entry point: load an ONNX-shaped node
// stream into a graph, run it through analyse/declutter/pulsify, plan it,
// and execute it. Every exported function here is a thin wrapper around
// model/lower/declutter/pulse/plan — the packages that actually hold the
// logic — so callers have one import instead of five.
package inferx

import (
	"fmt"

	"github.com/itohio/inferx/declutter"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/lower"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/onnx"
	"github.com/itohio/inferx/ops/mathops"
	"github.com/itohio/inferx/plan"
	"github.com/itohio/inferx/pulse"
)

// GraphInput names a graph's external input outlet and the fact it carries
// before any node has run — the information a real ONNX GraphProto would
// supply via its own ValueInfoProto input declarations, which this
// engine's minimal decoder does not parse (see onnx package doc).
type GraphInput struct {
	Name        string
	Placeholder model.InputPlaceholder
}

// LoadModel assembles a model.Graph from a flat, topologically-ordered
// stream of decoded ONNX NodeProtos: inputs declares the graph's external
// input outlets by name, outputs names the graph's output-producing node
// outlets, and reg/ctx build each node's op.Op. ctx.Initializers may also
// resolve a node input name to a constant weight tensor (e.g. Conv's
// kernel, whose shape the builder reads directly); LoadModel still wires
// that name as a normal edge, materializing a mathops.Const node for it
// the first time it is referenced, since the op itself still expects the
// tensor as a runtime input alongside whatever shape metadata the builder
// already baked into the op.
func LoadModel(nodes []*onnx.NodeProto, inputs []GraphInput, outputs []string, reg *onnx.Registry, ctx *onnx.ParsingContext) (*model.Graph, error) {
	g := model.NewGraph()
	outletByName := make(map[string]model.OutletID, len(inputs)+len(nodes))

	inputOutlets := make([]model.OutletID, len(inputs))
	for i, in := range inputs {
		id := g.AddNode(in.Name, in.Placeholder, nil, 1)
		o := model.OutletID{Node: id}
		outletByName[in.Name] = o
		inputOutlets[i] = o
	}
	g.SetInputs(inputOutlets...)

	for _, n := range nodes {
		built, err := reg.Build(ctx, n)
		if err != nil {
			return nil, err
		}

		edges := make([]model.OutletID, len(n.Input))
		for i, inName := range n.Input {
			o, ok := outletByName[inName]
			if !ok {
				t, isInitializer := ctx.Initializer(inName)
				if !isInitializer {
					return nil, fmt.Errorf("inferx: node %q(%s) references unknown input %q", n.Name, n.OpType, inName)
				}
				id := g.AddNode(inName, mathops.Const{Value: t}, nil, 1)
				o = model.OutletID{Node: id}
				outletByName[inName] = o
			}
			edges[i] = o
		}

		numOutputs := len(n.Output)
		if numOutputs == 0 {
			numOutputs = 1
		}
		id := g.AddNode(n.Name, built, edges, numOutputs)
		for slot, outName := range n.Output {
			outletByName[outName] = model.OutletID{Node: id, Slot: slot}
		}
	}

	outputOutlets := make([]model.OutletID, len(outputs))
	for i, name := range outputs {
		o, ok := outletByName[name]
		if !ok {
			return nil, fmt.Errorf("inferx: graph output %q was never produced by any node", name)
		}
		outputOutlets[i] = o
	}
	g.SetOutputs(outputOutlets...)

	return g, nil
}

// Analyse runs the inference solver over g and lowers every outlet's fact
// to fact.Typed — spec's "analyse(graph) -> typed graph".
func Analyse(g *model.Graph, seeds map[model.OutletID]fact.Tensor) error {
	return lower.Analyse(g, seeds)
}

// Declutter rewrites g to a fixed point: constant folding, dequantize
// fusion, squeeze-into-consumer fusion, and any op's own canonicalization,
// in place.
func Declutter(g *model.Graph) error {
	return declutter.Run(g)
}

// Pulsify rewrites every op reachable from g's declared inputs along the
// given streaming axis into its pulsed, ring-buffered form.
func Pulsify(g *model.Graph, axis, pulseLen int) error {
	return pulse.Run(g, axis, pulseLen)
}

// Plan linearizes g into a deterministic execution schedule.
func Plan(g *model.Graph) (*plan.Plan, error) {
	return plan.Build(g)
}
