// Package pulse implements pulsification: rewriting a typed, decluttered
// graph so its designated streaming axis carries a fixed-size pulse per
// tick instead of the whole axis at once. It is a single forward traversal
// in topological order — unlike solver's alternating fixed point, pulsify
// never needs a backward pass, since every pulsed fact is fully determined
// by its producer's already-typed fact plus the chosen axis and pulse
// length. Grounded on the op-capability dispatch pattern solver/declutter
// already use: a node's op.Pulsifier/op.PulsedFacter/op.AxisInvariants
// capabilities (whichever it implements) decide how the streaming axis
// propagates through it.
package pulse

import (
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/op"
)

// Run rewrites every node reachable from g's input outlets along axis
// `axis`, so each pulls `pulseLen` elements of that axis per tick instead of
// the whole axis, and records the resulting fact.Pulsed at every outlet on
// the streaming path. Nodes the streaming axis never reaches (e.g. a
// constant kernel feeding a conv) are left untouched. Run mutates g's
// nodes' Op in place; it never changes graph topology, so any Plan built
// against g before Run remains valid.
func Run(g *model.Graph, axis, pulseLen int) error {
	order, err := g.TopoSort()
	if err != nil {
		return err
	}

	pulsed := map[model.OutletID]fact.Pulsed{}
	for _, o := range g.Inputs() {
		pulsed[o] = fact.Pulsed{
			Normalized: typedFactOf(g, o),
			Axis:       axis,
			Pulse:      pulseLen,
		}
		g.SetOutletFact(o, pulsed[o])
	}

	for _, id := range order {
		n := g.Node(id)
		if n == nil {
			continue
		}
		if err := pulsifyNode(g, n, pulsed); err != nil {
			return err
		}
	}
	return nil
}

// typedFactOf reads whatever fact.Normalized or fact.Typed lowering already
// left at o, defaulting to a zero-value Normalized, which carries neither a
// dtype nor a shape, if none is present.
func typedFactOf(g *model.Graph, o model.OutletID) fact.Normalized {
	raw, ok := g.OutletFact(o)
	if !ok {
		return fact.Normalized{}
	}
	switch f := raw.(type) {
	case fact.Normalized:
		return f
	case fact.Typed:
		return fact.Normalized{Typed: f}
	default:
		return fact.Normalized{}
	}
}

// pulsifyNode decides, for one node, whether the streaming axis reaches any
// of its inputs, and if so propagates a fact.Pulsed to every one of its
// outputs — rewriting its op via Pulsifier when the op has temporal state
// to set up (a ring buffer, an accumulator), or leaving it untouched when
// the axis simply passes through unchanged (ordinary elementwise ops need
// no rewrite to run correctly on pulse-sized tensors).
func pulsifyNode(g *model.Graph, n *model.Node, pulsed map[model.OutletID]fact.Pulsed) error {
	inPulsed := make([]fact.Pulsed, len(n.Inputs))
	streaming := make([]int, 0, len(n.Inputs))
	for i, in := range n.Inputs {
		pf, ok := pulsed[in]
		if !ok {
			continue
		}
		inPulsed[i] = pf
		streaming = append(streaming, i)
	}
	if len(streaming) == 0 {
		// Entirely off the streaming path (e.g. a constant kernel or bias).
		return nil
	}
	primary := streaming[0]

	if p, ok := n.Op.(op.Pulsifier); ok {
		axis := inPulsed[primary].Axis
		newOp, err := p.Pulsify(axis, inPulsed[primary].Pulse, inPulsed)
		if err != nil {
			return xerr.Wrap("pulsify", n.Name, err)
		}
		n.Op = newOp
	}

	var outs []fact.Pulsed
	if pf, ok := n.Op.(op.PulsedFacter); ok {
		facts, err := pf.PulsedFacts(inPulsed)
		if err != nil {
			return xerr.Wrap("pulsify", n.Name, err)
		}
		outs = facts
	} else {
		inv, ok := n.Op.(op.AxisInvariants)
		if !ok {
			return &xerr.NotPulsifiable{
				Node:   n.Name,
				Reason: "op implements neither PulsedFacter nor AxisInvariants",
			}
		}
		base := inPulsed[primary]
		outAxis, ok := inv.AxisAfter(primary, base.Axis)
		if !ok {
			return &xerr.NotPulsifiable{
				Node:   n.Name,
				Reason: "streaming axis does not pass through this op unchanged",
			}
		}
		outs = make([]fact.Pulsed, n.NumOutputs)
		for slot := range outs {
			outs[slot] = fact.Pulsed{
				Normalized: base.Normalized,
				Axis:       outAxis,
				Pulse:      base.Pulse,
				Delay:      base.Delay,
			}
		}
	}

	if len(outs) != n.NumOutputs {
		return &xerr.ArityError{Expected: n.NumOutputs, Got: len(outs)}
	}
	for slot, of := range outs {
		o := model.OutletID{Node: n.ID, Slot: slot}
		pulsed[o] = of
		g.SetOutletFact(o, of)
	}
	return nil
}
