// Package declutter implements the declutter fixed-point rewrite loop: for
// each node in topological order, try the canonical rewrites (constant
// folding, dequantize fusion, squeeze-into-consumer fusion) and any
// op-specific op.Declutterer capability;
// apply the first patch that matches and restart the pass. Grounded on the
// teacher's transactional graph-mutation shape (x/math/graph/graph.go's
// GraphTransaction Commit/Rollback), specialized here to model.Patch.
package declutter

import (
	"fmt"

	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/internal/xlog"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/ops/array"
	"github.com/itohio/inferx/ops/mathops"
	"github.com/itohio/inferx/ops/quant"
	"github.com/itohio/inferx/tensor"
)

// iterationCapPerNode bounds the total number of rewrites applied per node
// on average before the loop gives up and reports NonTerminatingDeclutter.
const iterationCapPerNode = 100

// Run repeats the declutter pass to a fixed point: constant folding,
// dequantize fusion, squeeze-into-consumer fusion, then any node's own
// op.Declutterer capability, tried in that order for each node. A successful rewrite commits immediately and
// restarts the pass, since node ids never get reused (model.Patch.Commit
// leaves removed nodes as holes) so the remaining topological order is
// still valid context for the next attempt.
func Run(g *model.Graph) error {
	iterCap := iterationCapPerNode * g.NumNodes()
	if iterCap == 0 {
		iterCap = iterationCapPerNode
	}

	iterations := 0
	for {
		order, err := g.TopoSort()
		if err != nil {
			return err
		}

		changedThisPass := false
		for _, id := range order {
			n := g.Node(id)
			if n == nil {
				continue
			}
			if iterations >= iterCap {
				return &xerr.NonTerminatingDeclutter{Iterations: iterations}
			}

			changed, err := foldConstant(g, n)
			if err != nil {
				return xerr.Wrap("declutter", n.Name, err)
			}
			if !changed {
				changed, err = fuseDequantize(g, n)
				if err != nil {
					return xerr.Wrap("declutter", n.Name, err)
				}
			}
			if !changed {
				changed, err = fuseSqueezeIntoConsumer(g, n)
				if err != nil {
					return xerr.Wrap("declutter", n.Name, err)
				}
			}
			if !changed {
				changed, err = applyDeclutterer(g, n)
				if err != nil {
					return xerr.Wrap("declutter", n.Name, err)
				}
			}
			if changed {
				iterations++
				changedThisPass = true
				xlog.Log.Debug().Str("node", n.Name).Int("iteration", iterations).Msg("declutter rewrite applied")
				break
			}
		}
		if !changedThisPass {
			return nil
		}
	}
}

// foldConstant replaces a node whose op is stateless and whose every input
// is already a known constant with a single Const node holding the
// computed value(s) — spec's "any node whose inputs are all constants and
// whose op is stateless is replaced by a constant node."
func foldConstant(g *model.Graph, n *model.Node) (bool, error) {
	if len(n.Inputs) == 0 {
		return false, nil
	}
	if _, already := n.Op.(mathops.Const); already {
		return false, nil
	}
	se, ok := n.Op.(op.StatelessEvaluator)
	if !ok {
		return false, nil
	}

	inputs := make([]*tensor.Tensor, len(n.Inputs))
	for i, in := range n.Inputs {
		src := g.Node(in.Node)
		if src == nil {
			return false, nil
		}
		t, ok := src.Const()
		if !ok {
			return false, nil
		}
		inputs[i] = t
	}

	outs, err := se.EvalStateless(inputs)
	if err != nil {
		return false, err
	}

	p := model.NewPatch(g)
	for slot, t := range outs {
		folded := p.AddNode(n.Name+"_folded", mathops.Const{Value: t}, nil, 1)
		p.ShuntOutside(model.OutletID{Node: n.ID, Slot: slot}, folded)
	}
	p.RemoveNode(n.ID)
	if err := p.Commit(); err != nil {
		return false, err
	}
	xlog.Log.Debug().Str("patch", p.ID.String()).Str("node", n.Name).Msg("declutter: folded constant")
	return true, nil
}

// fuseDequantize collapses an adjacent QuantizeLinear -> DequantizeLinear
// pair with matching scale/zero-point into an identity on the original
// float input. It only recognizes the directly-adjacent pattern; a
// Quantize/Dequantize pair separated by intermediate elementwise ops is
// not fused.
func fuseDequantize(g *model.Graph, n *model.Node) (bool, error) {
	deq, ok := n.Op.(quant.DequantizeLinear)
	if !ok || len(n.Inputs) != 1 {
		return false, nil
	}
	src := g.Node(n.Inputs[0].Node)
	if src == nil {
		return false, nil
	}
	q, ok := src.Op.(quant.QuantizeLinear)
	if !ok || len(src.Inputs) != 1 {
		return false, nil
	}
	if !quant.IsIdentityPair(q, deq) {
		return false, nil
	}

	x := src.Inputs[0]
	p := model.NewPatch(g)
	p.ShuntOutside(model.OutletID{Node: n.ID, Slot: 0}, x)
	p.RemoveNode(n.ID)
	if consumerCount(g, src.ID) <= 1 {
		p.RemoveNode(src.ID)
	}
	if err := p.Commit(); err != nil {
		return false, err
	}
	xlog.Log.Debug().Str("patch", p.ID.String()).Str("node", n.Name).Msg("declutter: fused quantize/dequantize")
	return true, nil
}

// consumerCount counts how many live node inputs and graph outputs
// reference node id — used to decide whether a node still has other
// consumers before a fusion rewrite removes it.
func consumerCount(g *model.Graph, id int) int {
	count := 0
	for n := range g.Nodes() {
		for _, in := range n.Inputs {
			if in.Node == id {
				count++
			}
		}
	}
	for _, o := range g.Outputs() {
		if o.Node == id {
			count++
		}
	}
	return count
}

// fuseSqueezeIntoConsumer eliminates an array.Squeeze node by pushing its
// axis removal into its sole consumer, when that consumer implements
// op.AxisChanger — the "axis N is being removed by an upstream squeeze"
// rewrite op.AxisChanger exists for. Only fires when the Squeeze has
// exactly one consumer, since a second consumer may still need the
// squeezed-away axis.
func fuseSqueezeIntoConsumer(g *model.Graph, n *model.Node) (bool, error) {
	sq, ok := n.Op.(array.Squeeze)
	if !ok || len(n.Inputs) != 1 {
		return false, nil
	}
	consumerID, slot, ok := soleConsumer(g, n.ID)
	if !ok {
		return false, nil
	}
	consumer := g.Node(consumerID)
	if consumer == nil {
		return false, nil
	}
	changer, ok := consumer.Op.(op.AxisChanger)
	if !ok {
		return false, nil
	}
	rewritten, _, ok := changer.ChangeAxis(slot, sq.Axis)
	if !ok {
		return false, nil
	}

	newInputs := make([]model.OutletID, len(consumer.Inputs))
	copy(newInputs, consumer.Inputs)
	newInputs[slot] = n.Inputs[0]

	p := model.NewPatch(g)
	placeholder := p.AddNode(consumer.Name+"_axisfused", rewritten, newInputs, consumer.NumOutputs)
	for slot := 0; slot < consumer.NumOutputs; slot++ {
		p.ShuntOutside(model.OutletID{Node: consumer.ID, Slot: slot}, model.OutletID{Node: placeholder.Node, Slot: slot})
	}
	p.RemoveNode(consumer.ID)
	p.RemoveNode(n.ID)
	if err := p.Commit(); err != nil {
		return false, err
	}
	xlog.Log.Debug().Str("patch", p.ID.String()).Str("node", n.Name).Msg("declutter: fused squeeze into consumer via AxisChanger")
	return true, nil
}

// soleConsumer returns the one node (not a graph output) that consumes
// outlet {nodeID, 0}, and the input slot it is wired at, or ok=false if
// there isn't exactly one such consumer.
func soleConsumer(g *model.Graph, nodeID int) (consumerID, slot int, ok bool) {
	found, foundSlot, count := -1, -1, 0
	for cn := range g.Nodes() {
		for i, in := range cn.Inputs {
			if in.Node == nodeID {
				found, foundSlot = cn.ID, i
				count++
			}
		}
	}
	for _, o := range g.Outputs() {
		if o.Node == nodeID {
			count++
		}
	}
	if count != 1 || found == -1 {
		return 0, 0, false
	}
	return found, foundSlot, true
}

// applyDeclutterer invokes a node's own op.Declutterer capability, if it
// has one, and turns an accepted proposal into a committed patch: a new
// node wired to the subset of the original inputs the replacement keeps,
// shunting every output outlet across, then removing the original node.
func applyDeclutterer(g *model.Graph, n *model.Node) (bool, error) {
	d, ok := n.Op.(op.Declutterer)
	if !ok {
		return false, nil
	}
	replacement, keep, ok, err := d.Declutter(g.DeclutterContext(n.ID))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	inputs := make([]model.OutletID, len(keep))
	for i, idx := range keep {
		if idx < 0 || idx >= len(n.Inputs) {
			return false, fmt.Errorf("declutter: node %q proposed an invalid kept input index %d", n.Name, idx)
		}
		inputs[i] = n.Inputs[idx]
	}

	p := model.NewPatch(g)
	placeholder := p.AddNode(n.Name+"_decluttered", replacement, inputs, n.NumOutputs)
	for slot := 0; slot < n.NumOutputs; slot++ {
		p.ShuntOutside(model.OutletID{Node: n.ID, Slot: slot}, model.OutletID{Node: placeholder.Node, Slot: slot})
	}
	p.RemoveNode(n.ID)
	if err := p.Commit(); err != nil {
		return false, err
	}
	xlog.Log.Debug().Str("patch", p.ID.String()).Str("node", n.Name).Msg("declutter: applied op.Declutterer rewrite")
	return true, nil
}

// AxisAfter reports the axis invariant tracking spec.md §4.5 describes for
// reduce: given a node and an axis on one of its inputs, returns the axis
// that axis maps to on the node's own output, or ok=false if the op does
// not expose this invariant (op.AxisInvariants) or the axis does not
// survive (e.g. it was reduced away). Used by the pulsify traversal to
// follow a streaming axis forward through the graph one node at a time.
func AxisAfter(g *model.Graph, nodeID, inputIdx, inputAxis int) (int, bool) {
	n := g.Node(nodeID)
	if n == nil {
		return -1, false
	}
	inv, ok := n.Op.(op.AxisInvariants)
	if !ok {
		return -1, false
	}
	return inv.AxisAfter(inputIdx, inputAxis)
}
