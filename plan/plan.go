// Package plan implements the executor half of the pipeline: Plan
// linearizes a typed graph into a deterministic schedule with outlet
// liveness, and State (in state.go) runs that schedule against concrete
// input tensors. Grounded on the teacher's ExpressionGraph
// (x/math/tensor/gorgonia/graph.go) state-machine shape — a mutex-guarded
// object separating a build/compile step from a repeatable execute step —
// retargeted here from "record ops eagerly, compile once, replay" to "plan
// a typed graph once, run repeatedly against fresh inputs."
package plan

import "github.com/itohio/inferx/model"

// Plan is an immutable, borrowed view of a graph's execution order and
// per-outlet liveness. Building a Plan never mutates the graph.
type Plan struct {
	g *model.Graph

	// order is the topological node order (Kahn's algorithm, ascending-id
	// tie-break) from model.Graph.TopoSort — spec's "plan determinism"
	// property depends on this being identical across runs of the same
	// graph.
	order []int

	// liveUntil maps each outlet to the last plan step (index into order)
	// at which it is still read; graph output outlets are marked live past
	// the final step so State.Run never frees them before returning.
	liveUntil map[model.OutletID]int

	// inputNodeIDs holds the node id behind every graph input outlet, so
	// State.computeOne can recognize a bound input and skip evaluating it
	// (its value comes from State.Run's caller, not from the node's op).
	inputNodeIDs map[int]bool
}

// Build computes a Plan for g: its topological order and every outlet's
// liveness interval.
func Build(g *model.Graph) (*Plan, error) {
	order, err := g.TopoSort()
	if err != nil {
		return nil, err
	}

	step := make(map[int]int, len(order))
	for i, id := range order {
		step[id] = i
	}

	liveUntil := map[model.OutletID]int{}
	markLive := func(o model.OutletID, at int) {
		if cur, ok := liveUntil[o]; !ok || at > cur {
			liveUntil[o] = at
		}
	}
	for _, id := range order {
		n := g.Node(id)
		for _, in := range n.Inputs {
			markLive(in, step[id])
		}
	}
	for _, o := range g.Outputs() {
		markLive(o, len(order))
	}

	inputNodeIDs := make(map[int]bool, len(g.Inputs()))
	for _, in := range g.Inputs() {
		inputNodeIDs[in.Node] = true
	}

	return &Plan{g: g, order: order, liveUntil: liveUntil, inputNodeIDs: inputNodeIDs}, nil
}

// Order returns a copy of the plan's topological node order.
func (p *Plan) Order() []int {
	return append([]int(nil), p.order...)
}
