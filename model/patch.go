package model

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/itohio/inferx/op"
)

// Patch is a transactional set of graph edits staged against a Graph and
// applied atomically on Commit, or thrown away on Rollback — the
// declutter loop's unit of rewrite. Grounded on the teacher's
// GraphTransaction (x/math/graph/graph.go): stage Add/Delete/Update calls,
// then Commit or Rollback the whole batch.
type Patch struct {
	g  *Graph
	ID uuid.UUID

	added   []pendingNode
	taps    map[OutletID]OutletID // old outlet -> replacement outlet, for outputs rewired to shunt around removed nodes
	removed map[int]bool
}

type pendingNode struct {
	name       string
	op         op.Op
	inputs     []OutletID
	numOutputs int
}

// NewPatch begins a patch against g. Each patch gets its own random ID so a
// declutter pass logging several rewrites within one pass can correlate log
// lines back to the patch that produced them, without reusing small
// integers that could alias a node id.
func NewPatch(g *Graph) *Patch {
	return &Patch{g: g, ID: uuid.New(), taps: map[OutletID]OutletID{}, removed: map[int]bool{}}
}

// pendingID is the node id a staged-but-not-yet-committed node will
// receive once Commit runs; ids are assigned in Commit order so later
// AddNode calls in the same patch can reference an earlier AddNode's
// output before Commit actually allocates it.
type pendingID struct {
	patch *Patch
	index int
}

// AddNode stages a brand-new node; its real id is only assigned on
// Commit, so refer to it symbolically in later AddNode inputs or
// ShuntOutside calls using the returned placeholder outlet (slot carries
// the intended output slot, Node carries a negative, patch-local index
// pending resolution).
func (p *Patch) AddNode(name string, o op.Op, inputs []OutletID, numOutputs int) OutletID {
	idx := len(p.added)
	p.added = append(p.added, pendingNode{name: name, op: o, inputs: inputs, numOutputs: numOutputs})
	return OutletID{Node: -(idx + 1), Slot: 0}
}

// TapModel returns an existing graph outlet unchanged, for use as an input
// to a node being added in this same patch: existing outlets need no
// placeholder, so nothing is recorded; named for the tract `tap_model` primitive
// this mirrors (reading a value that already exists in the parent graph
// into a patch under construction).
func (p *Patch) TapModel(existing OutletID) OutletID {
	return existing
}

// ShuntOutside records that every consumer currently reading `from`
// should, after Commit, read `to` instead — the primitive a Declutterer
// uses to splice a replacement subgraph's output in place of the node
// being rewritten, without walking every consumer by hand.
func (p *Patch) ShuntOutside(from, to OutletID) {
	p.taps[from] = to
}

// RemoveNode marks an existing node for deletion once Commit has rewired
// every consumer away from it. A node with no remaining consumer after
// ShuntOutside rewiring is safe to remove; Commit does not verify this
// itself (the declutter loop only calls RemoveNode for nodes it has just
// shunted around).
func (p *Patch) RemoveNode(id int) {
	p.removed[id] = true
}

// IsNoop reports whether this patch stages no change at all — a
// Declutterer returns a no-op patch to mean "no rewrite applies here".
func (p *Patch) IsNoop() bool {
	return len(p.added) == 0 && len(p.taps) == 0 && len(p.removed) == 0
}

// Commit applies every staged edit to the underlying graph atomically:
// new nodes are allocated real ids, patch-local placeholder outlets in
// their inputs are resolved, shunted outlets are rewired across every
// remaining node's Inputs, and removed nodes are nil'd out.
func (p *Patch) Commit() error {
	if p.IsNoop() {
		return nil
	}

	resolved := make([]int, len(p.added))
	for i, pn := range p.added {
		inputs := make([]OutletID, len(pn.inputs))
		for j, in := range pn.inputs {
			inputs[j] = p.resolvePlaceholder(in, resolved)
		}
		id := p.g.AddNode(pn.name, pn.op, inputs, pn.numOutputs)
		resolved[i] = id
	}

	for _, n := range p.g.nodes {
		if n == nil {
			continue
		}
		for i, in := range n.Inputs {
			n.Inputs[i] = p.rewire(in, resolved)
		}
	}
	for i, o := range p.g.outputs {
		p.g.outputs[i] = p.rewire(o, resolved)
	}

	for id := range p.removed {
		if id >= 0 && id < len(p.g.nodes) {
			p.g.nodes[id] = nil
		}
	}
	return nil
}

func (p *Patch) resolvePlaceholder(o OutletID, resolved []int) OutletID {
	if o.Node < 0 {
		idx := -(o.Node) - 1
		if idx < 0 || idx >= len(resolved) {
			panic(fmt.Sprintf("model: patch references unresolved placeholder %v", o))
		}
		return OutletID{Node: resolved[idx], Slot: o.Slot}
	}
	return o
}

func (p *Patch) rewire(o OutletID, resolved []int) OutletID {
	o = p.resolvePlaceholder(o, resolved)
	if to, ok := p.taps[o]; ok {
		return p.rewire(to, resolved)
	}
	return o
}

// Rollback discards every staged edit; the underlying graph is untouched
// since Commit is the only method that mutates it.
func (p *Patch) Rollback() {
	p.added = nil
	p.taps = map[OutletID]OutletID{}
	p.removed = map[int]bool{}
}
