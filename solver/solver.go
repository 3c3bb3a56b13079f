// Package solver implements the forward/backward alternating fixed-point
// inference pass that propagates partial (TensorFact) knowledge across a
// model.Graph until every outlet's dtype, shape and (where possible) value
// is known or the pass provably cannot make further progress. Grounded on
// original_source/src/analyser/mod.rs's analyse/one_pass! loop; the
// original splits each op's contribution into separate infer_forward and
// infer_backward methods, which this port collapses into one
// op.RuleEmitter.Rules call per node per pass — the Equals/EqualsAll
// constraints it posts already unify information from both directions, so
// a single call captures what the original's two methods did together.
package solver

import (
	"fmt"

	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/internal/xlog"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/op"
)

// MaxPasses caps the number of forward/backward alternations before the
// solver gives up and reports whatever remains underdetermined.
const MaxPasses = 100

// Solver holds the in-progress TensorFact for every outlet of a graph
// while a solve is running.
type Solver struct {
	g     *model.Graph
	facts map[model.OutletID]fact.Tensor
}

// New creates a solver seeded with fact.Top for every outlet not already
// carrying a fact (e.g. a graph input the caller pre-seeded with a
// concrete shape/dtype).
func New(g *model.Graph) *Solver {
	s := &Solver{g: g, facts: map[model.OutletID]fact.Tensor{}}
	return s
}

// Seed sets the initial TensorFact for an outlet (typically a graph
// input), to be unified with anything the ops themselves derive.
func (s *Solver) Seed(o model.OutletID, f fact.Tensor) {
	s.facts[o] = f
}

func (s *Solver) factOf(o model.OutletID) fact.Tensor {
	if f, ok := s.facts[o]; ok {
		return f
	}
	return fact.Top
}

// Solve runs the alternating fixed-point pass to convergence, then writes
// the final fact.Tensor for every outlet back into the graph's
// OutputFacts. It returns xerr.InferenceContradiction if two constraints
// on the same outlet disagree, or xerr.UnderdeterminedFact if the pass
// converges (no more changes) while an output outlet's dtype or rank
// remains unknown.
func Solve(g *model.Graph, seeds map[model.OutletID]fact.Tensor) error {
	s := New(g)
	for o, f := range seeds {
		s.Seed(o, f)
	}

	order, err := g.TopoSort()
	if err != nil {
		return err
	}

	forward := true
	for pass := 0; pass < MaxPasses; pass++ {
		changed := false
		visitOrder := order
		if !forward {
			visitOrder = reversed(order)
		}
		for _, id := range visitOrder {
			n := g.Node(id)
			if n == nil {
				continue
			}
			c, err := s.visit(n)
			if err != nil {
				return xerr.Wrap("solver", n.Name, err)
			}
			changed = changed || c
		}
		xlog.Log.Debug().Int("pass", pass).Bool("forward", forward).Bool("changed", changed).Msg("solver pass")
		if !changed && pass > 0 {
			break
		}
		forward = !forward
	}

	for n := range g.Nodes() {
		for slot := 0; slot < n.NumOutputs; slot++ {
			o := model.OutletID{Node: n.ID, Slot: slot}
			f := s.factOf(o)
			g.SetOutletFact(o, f)
		}
	}

	for _, outlet := range g.Outputs() {
		f := s.factOf(outlet)
		if !f.DType.Known {
			return &xerr.UnderdeterminedFact{Node: g.Node(outlet.Node).Name, Attribute: "dtype"}
		}
		if !f.Shape.RankKnown() {
			return &xerr.UnderdeterminedFact{Node: g.Node(outlet.Node).Name, Attribute: "shape rank"}
		}
	}
	return nil
}

// visit gives a node's op one chance to post constraints (if it
// implements op.RuleEmitter) or, absent that, to derive its output fact
// directly from concrete TypedFacts (if it implements op.TypedFacter and
// every input is already concrete). It reports whether any outlet's fact
// changed.
func (s *Solver) visit(n *model.Node) (bool, error) {
	changed := false

	if emitter, ok := n.Op.(op.RuleEmitter); ok {
		inputs := make([]op.Proxy, len(n.Inputs))
		for i, in := range n.Inputs {
			inputs[i] = proxy{s: s, outlet: in}
		}
		outputs := make([]op.Proxy, n.NumOutputs)
		for slot := range outputs {
			outputs[slot] = proxy{s: s, outlet: model.OutletID{Node: n.ID, Slot: slot}}
		}
		sink := &sink{s: s, changed: &changed}
		if err := emitter.Rules(sink, inputs, outputs); err != nil {
			return false, err
		}
	}

	if typer, ok := n.Op.(op.TypedFacter); ok {
		typedInputs := make([]fact.Typed, len(n.Inputs))
		allConcrete := true
		for i, in := range n.Inputs {
			t, err := fact.FromTensor(s.factOf(in))
			if err != nil {
				allConcrete = false
				break
			}
			typedInputs[i] = t
		}
		if allConcrete {
			outs, err := typer.TypedFacts(typedInputs)
			if err != nil {
				return false, err
			}
			for slot, out := range outs {
				o := model.OutletID{Node: n.ID, Slot: slot}
				derived := fact.Tensor{
					DType: fact.Concrete(out.DType),
					Shape: fact.ClosedShape(out.Shape...),
					Value: out.Value,
				}
				merged, err := fact.Unify(s.factOf(o), derived)
				if err != nil {
					return false, &xerr.InferenceContradiction{Node: n.Name, Attribute: "dtype/shape", A: s.factOf(o), B: derived}
				}
				if !merged.LessSpecific(s.factOf(o)) || !s.factOf(o).LessSpecific(merged) {
					changed = true
				}
				s.facts[o] = merged
			}
		}
	}

	return changed, nil
}

func reversed(s []int) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// --- op.Proxy / op.Attr / op.RuleSink implementation ---

type proxy struct {
	s      *Solver
	outlet model.OutletID
}

func (p proxy) DType() op.Attr          { return dtypeAttr(p) }
func (p proxy) Rank() op.Attr           { return rankAttr(p) }
func (p proxy) ShapeDim(i int) op.Attr  { return dimAttr{proxy: p, index: i} }
func (p proxy) Shape() op.Attr          { return shapeAttr(p) }
func (p proxy) Value() op.Attr          { return valueAttr(p) }

// Each concrete Attr kind below is a thin wrapper around a proxy plus
// whatever extra index it needs (dimAttr); sink's Equals/EqualsAll type
// switch on the concrete kind to perform the actual unification, and
// valueOf does the same to read out a concrete Go value for Given.

type dtypeAttr proxy

func (dtypeAttr) attrMarker() {}

type rankAttr proxy

func (rankAttr) attrMarker() {}

type shapeAttr proxy

func (shapeAttr) attrMarker() {}

type dimAttr struct {
	proxy
	index int
}

func (dimAttr) attrMarker() {}

type valueAttr proxy

func (valueAttr) attrMarker() {}

// sink implements op.RuleSink against a Solver, performing the actual
// unification for Equals/EqualsAll and deciding whether to fire a Given
// closure immediately (when its condition attr is already concrete) or
// defer it to a later pass.
type sink struct {
	s       *Solver
	changed *bool
}

func (sk *sink) Equals(a, b op.Attr) error {
	return sk.unifyAttrs(a, b)
}

func (sk *sink) EqualsAll(attrs ...op.Attr) error {
	for i := 1; i < len(attrs); i++ {
		if err := sk.unifyAttrs(attrs[0], attrs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (sk *sink) Given(expr op.Attr, closure func(op.RuleSink, any) error) error {
	v, ok := sk.valueOf(expr)
	if !ok {
		return nil // not concrete yet; this pass retries next time around
	}
	return closure(sk, v)
}

// valueOf extracts the current concrete Go value behind an Attr (a
// datum.Type for DType, an int for Rank/ShapeDim, a dim.Shape-ish []dim.Dim
// for Shape, or a *tensor.Tensor for Value), or ok=false if not yet known.
func (sk *sink) valueOf(a op.Attr) (any, bool) {
	switch at := a.(type) {
	case dtypeAttr:
		f := at.s.factOf(at.outlet)
		if !f.DType.Known {
			return nil, false
		}
		return f.DType.Type, true
	case rankAttr:
		f := at.s.factOf(at.outlet)
		if f.Shape.Open {
			return nil, false
		}
		return len(f.Shape.Dims), true
	case dimAttr:
		f := at.s.factOf(at.outlet)
		if at.index >= len(f.Shape.Dims) || !f.Shape.Dims[at.index].Known {
			return nil, false
		}
		return f.Shape.Dims[at.index].Dim, true
	case shapeAttr:
		f := at.s.factOf(at.outlet)
		shape, ok := f.Shape.ToConcrete()
		if !ok {
			return nil, false
		}
		return shape, true
	case valueAttr:
		f := at.s.factOf(at.outlet)
		if !f.Value.Known {
			return nil, false
		}
		return f.Value.T, true
	default:
		return nil, false
	}
}

// unifyAttrs merges the two attrs' current partial knowledge and writes
// the result back to both outlets, reporting a contradiction as an error.
func (sk *sink) unifyAttrs(a, b op.Attr) error {
	switch at := a.(type) {
	case dtypeAttr:
		bt, ok := b.(dtypeAttr)
		if !ok {
			return fmt.Errorf("solver: Equals requires matching attr kinds")
		}
		return sk.unifyDType(at, bt)
	case rankAttr:
		bt, ok := b.(rankAttr)
		if !ok {
			return fmt.Errorf("solver: Equals requires matching attr kinds")
		}
		return sk.unifyRank(at, bt)
	case dimAttr:
		bt, ok := b.(dimAttr)
		if !ok {
			return fmt.Errorf("solver: Equals requires matching attr kinds")
		}
		return sk.unifyDim(at, bt)
	case shapeAttr:
		bt, ok := b.(shapeAttr)
		if !ok {
			return fmt.Errorf("solver: Equals requires matching attr kinds")
		}
		return sk.unifyShape(at, bt)
	case valueAttr:
		bt, ok := b.(valueAttr)
		if !ok {
			return fmt.Errorf("solver: Equals requires matching attr kinds")
		}
		return sk.unifyValue(at, bt)
	default:
		return fmt.Errorf("solver: unsupported attr kind")
	}
}

func (sk *sink) unifyDType(a, b dtypeAttr) error {
	fa, fb := a.s.factOf(a.outlet), b.s.factOf(b.outlet)
	merged, err := fact.UnifyDType(fa.DType, fb.DType)
	if err != nil {
		return &xerr.InferenceContradiction{Attribute: "dtype", A: fa.DType, B: fb.DType}
	}
	sk.writeDType(a.outlet, merged)
	sk.writeDType(b.outlet, merged)
	return nil
}

func (sk *sink) writeDType(o model.OutletID, dt fact.DType) {
	f := sk.s.factOf(o)
	if f.DType != dt {
		*sk.changed = true
	}
	f.DType = dt
	sk.s.facts[o] = f
}

func (sk *sink) unifyRank(a, b rankAttr) error {
	fa, fb := a.s.factOf(a.outlet), b.s.factOf(b.outlet)
	ra, raOK := rankOf(fa)
	rb, rbOK := rankOf(fb)
	switch {
	case raOK && rbOK:
		if ra != rb {
			return &xerr.InferenceContradiction{Attribute: "rank", A: ra, B: rb}
		}
	case raOK && !rbOK:
		sk.closeRank(b.outlet, ra)
	case !raOK && rbOK:
		sk.closeRank(a.outlet, rb)
	}
	return nil
}

func rankOf(f fact.Tensor) (int, bool) {
	if f.Shape.Open {
		return 0, false
	}
	return len(f.Shape.Dims), true
}

func (sk *sink) closeRank(o model.OutletID, rank int) {
	f := sk.s.factOf(o)
	if !f.Shape.Open {
		return
	}
	dims := make([]fact.ShapeDim, rank)
	copy(dims, f.Shape.Dims)
	f.Shape = fact.Shape{Open: false, Dims: dims}
	sk.s.facts[o] = f
	*sk.changed = true
}

func (sk *sink) unifyDim(a, b dimAttr) error {
	fa, fb := a.s.factOf(a.outlet), b.s.factOf(b.outlet)
	var da, db fact.ShapeDim
	if a.index < len(fa.Shape.Dims) {
		da = fa.Shape.Dims[a.index]
	}
	if b.index < len(fb.Shape.Dims) {
		db = fb.Shape.Dims[b.index]
	}
	merged, err := fact.UnifyDim(da, db)
	if err != nil {
		return &xerr.InferenceContradiction{Attribute: "shape dim", A: da, B: db}
	}
	sk.writeDim(a.outlet, a.index, merged)
	sk.writeDim(b.outlet, b.index, merged)
	return nil
}

func (sk *sink) writeDim(o model.OutletID, index int, d fact.ShapeDim) {
	f := sk.s.factOf(o)
	for len(f.Shape.Dims) <= index {
		f.Shape.Dims = append(f.Shape.Dims, fact.UnknownDim)
	}
	if !shapeDimEqual(f.Shape.Dims[index], d) {
		*sk.changed = true
	}
	f.Shape.Dims[index] = d
	sk.s.facts[o] = f
}

// shapeDimEqual compares two ShapeDims without relying on `==`, since
// dim.Dim carries a map field and is not a comparable type.
func shapeDimEqual(a, b fact.ShapeDim) bool {
	if a.Known != b.Known {
		return false
	}
	if !a.Known {
		return true
	}
	return a.Dim.Equal(b.Dim)
}

func (sk *sink) unifyShape(a, b shapeAttr) error {
	fa, fb := a.s.factOf(a.outlet), b.s.factOf(b.outlet)
	merged, err := fact.UnifyShape(fa.Shape, fb.Shape)
	if err != nil {
		return &xerr.InferenceContradiction{Attribute: "shape", A: fa.Shape, B: fb.Shape}
	}
	sk.writeShape(a.outlet, merged)
	sk.writeShape(b.outlet, merged)
	return nil
}

func (sk *sink) writeShape(o model.OutletID, shape fact.Shape) {
	f := sk.s.factOf(o)
	if !shapeEqual(f.Shape, shape) {
		*sk.changed = true
	}
	f.Shape = shape
	sk.s.facts[o] = f
}

func shapeEqual(a, b fact.Shape) bool {
	if a.Open != b.Open || len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if !shapeDimEqual(a.Dims[i], b.Dims[i]) {
			return false
		}
	}
	return true
}

func (sk *sink) unifyValue(a, b valueAttr) error {
	fa, fb := a.s.factOf(a.outlet), b.s.factOf(b.outlet)
	merged, err := fact.UnifyValue(fa.Value, fb.Value)
	if err != nil {
		return &xerr.InferenceContradiction{Attribute: "value"}
	}
	if merged.Known && (!fa.Value.Known || !fb.Value.Known) {
		*sk.changed = true
	}
	f1 := sk.s.factOf(a.outlet)
	f1.Value = merged
	sk.s.facts[a.outlet] = f1
	f2 := sk.s.factOf(b.outlet)
	f2.Value = merged
	sk.s.facts[b.outlet] = f2
	return nil
}
