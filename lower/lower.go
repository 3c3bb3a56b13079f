// Package lower implements the inference-to-typed lowering step: it runs
// the solver to saturate a graph's partial facts, then rewrites every
// outlet's stored fact from the partial fact.Tensor the solver leaves
// behind into a concrete fact.Typed. This is the `analyse` step from the
// external surface (spec's "analyse(graph) -> typed graph (runs solver,
// lowers)"), split into its own package so the top-level API stays a thin
// wrapper, matching the layering solver/model already established.
package lower

import (
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/solver"
)

// Analyse runs the solver against g with the given input seeds, then lowers
// every outlet's fact from the solver's partial fact.Tensor to a concrete
// fact.Typed, storing the result back via SetOutletFact. It returns
// xerr.UnderdeterminedFact for the first outlet that cannot be concretized,
// naming the owning node.
func Analyse(g *model.Graph, seeds map[model.OutletID]fact.Tensor) error {
	if err := solver.Solve(g, seeds); err != nil {
		return err
	}
	return ToTyped(g)
}

// ToTyped walks every node in g and replaces each output outlet's stored
// fact.Tensor with the fact.Typed it concretizes to. Graphs passed to
// ToTyped are expected to already have every outlet solved (normally via
// solver.Solve); an outlet that is not yet concrete is reported as
// xerr.UnderdeterminedFact rather than silently left as a partial fact.
func ToTyped(g *model.Graph) error {
	for n := range g.Nodes() {
		for slot := 0; slot < n.NumOutputs; slot++ {
			o := model.OutletID{Node: n.ID, Slot: slot}
			raw, ok := g.OutletFact(o)
			if !ok {
				return &xerr.UnderdeterminedFact{Node: n.Name, Attribute: "fact"}
			}
			tf, ok := raw.(fact.Tensor)
			if !ok {
				// already lowered (e.g. a second ToTyped pass over a
				// graph analysed before) — leave it as-is.
				continue
			}
			typed, err := fact.FromTensor(tf)
			if err != nil {
				return &xerr.UnderdeterminedFact{Node: n.Name, Attribute: "shape"}
			}
			g.SetOutletFact(o, typed)
		}
	}
	return nil
}
