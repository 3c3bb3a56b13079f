// Package model implements the dataflow graph (Model): a dense-id node
// table connected by OutletID edges, plus patch-based transactional
// rewrites used by the declutter pass. Grounded on the teacher's generic
// graph.Node[N,E]/Graph[N,E] interfaces (x/math/graph/graph.go),
// specialized here to a concrete op.Op payload instead of a generic type
// parameter, and on its GraphTransaction Commit/Rollback shape for Patch.
package model

import (
	"fmt"
	"iter"

	"github.com/itohio/inferx/datum"
	"github.com/itohio/inferx/dim"
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/ops/mathops"
	"github.com/itohio/inferx/tensor"
)

// InputPlaceholder is the op a graph's designated input outlets carry: it
// takes no inputs and declares its own concrete dtype/shape, marking that
// outlet's value as bound externally (by Plan/State.Run) rather than
// computed from other nodes. Grounded on tract's TypedSource: a leaf op
// whose sole job is to carry the fact the rest of the graph was built
// against.
type InputPlaceholder struct {
	DType datum.Type
	Shape []dim.Dim
}

func (InputPlaceholder) Name() string { return "Input" }

// TypedFacts reports the placeholder's own declared fact, letting lowering
// concretize an input outlet without an external solver seed.
func (p InputPlaceholder) TypedFacts(inputs []fact.Typed) ([]fact.Typed, error) {
	shape := append([]dim.Dim(nil), p.Shape...)
	return []fact.Typed{{DType: p.DType, Shape: shape}}, nil
}

// OutletID identifies one output slot of one node — the graph's edge
// endpoint type, standing in for the teacher's generic Edge[N,E].
type OutletID struct {
	Node int
	Slot int
}

func (o OutletID) String() string { return fmt.Sprintf("%d:%d", o.Node, o.Slot) }

// Node is one operator instance in the graph: its op, its input outlets,
// its output count, and (once lowering has progressed) the Fact for each
// output outlet.
type Node struct {
	ID         int
	Name       string
	Op         op.Op
	Inputs     []OutletID
	NumOutputs int

	// OutputFacts holds one Fact per output outlet, indexed by slot. Its
	// concrete type (fact.Tensor / fact.Typed / fact.Normalized /
	// fact.Pulsed) depends on how far lowering has progressed; it is
	// stored as `any` here because model does not otherwise depend on
	// every stage of the fact chain.
	OutputFacts []any
}

// Const reports the node's output 0 as a known constant tensor: directly,
// if the op is a mathops.Const leaf (so a freshly folded constant is
// recognized even before a solve pass has populated its OutputFacts), or
// else via a populated TypedFact's KnownValue.
func (n *Node) Const() (*tensor.Tensor, bool) {
	if c, ok := n.Op.(mathops.Const); ok {
		return c.Value, true
	}
	if len(n.OutputFacts) == 0 {
		return nil, false
	}
	typed, ok := n.OutputFacts[0].(fact.Typed)
	if !ok {
		if norm, ok := n.OutputFacts[0].(fact.Normalized); ok {
			typed = norm.Typed
		} else {
			return nil, false
		}
	}
	if !typed.Value.Known {
		return nil, false
	}
	return typed.Value.T, true
}

// Graph is the Model: a dense array of nodes (deleted nodes become nil
// holes, never reused, so OutletIDs remain stable across a patch), plus
// the designated input and output outlets.
type Graph struct {
	nodes   []*Node
	inputs  []OutletID
	outputs []OutletID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode appends a new node and returns its id.
func (g *Graph) AddNode(name string, o op.Op, inputs []OutletID, numOutputs int) int {
	id := len(g.nodes)
	g.nodes = append(g.nodes, &Node{
		ID:          id,
		Name:        name,
		Op:          o,
		Inputs:      append([]OutletID(nil), inputs...),
		NumOutputs:  numOutputs,
		OutputFacts: make([]any, numOutputs),
	})
	return id
}

// Node returns the node with the given id, or nil if it was removed.
func (g *Graph) Node(id int) *Node {
	if id < 0 || id >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// NumNodes returns the number of id slots (including holes left by
// removed nodes).
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Nodes iterates live (non-nil) nodes in ascending id order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, n := range g.nodes {
			if n == nil {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// SetInputs/SetOutputs designate the graph's external input and output
// outlets.
func (g *Graph) SetInputs(outlets ...OutletID)  { g.inputs = outlets }
func (g *Graph) SetOutputs(outlets ...OutletID) { g.outputs = outlets }

// Inputs/Outputs returns the graph's external outlets.
func (g *Graph) Inputs() []OutletID  { return g.inputs }
func (g *Graph) Outputs() []OutletID { return g.outputs }

// OutletFact returns the Fact stored at an outlet's output slot.
func (g *Graph) OutletFact(o OutletID) (any, bool) {
	n := g.Node(o.Node)
	if n == nil || o.Slot < 0 || o.Slot >= len(n.OutputFacts) {
		return nil, false
	}
	return n.OutputFacts[o.Slot], n.OutputFacts[o.Slot] != nil
}

// SetOutletFact stores a Fact at an outlet's output slot.
func (g *Graph) SetOutletFact(o OutletID, f any) {
	n := g.Node(o.Node)
	if n == nil {
		return
	}
	n.OutputFacts[o.Slot] = f
}

// TopoSort returns node ids in topological order (every node after all of
// its inputs), using Kahn's algorithm with ascending-id tie-breaking so the
// result is deterministic across runs of the same graph.
func (g *Graph) TopoSort() ([]int, error) {
	indegree := make(map[int]int, len(g.nodes))
	dependents := make(map[int][]int, len(g.nodes))
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		indegree[n.ID] = 0
	}
	for _, n := range g.nodes {
		if n == nil {
			continue
		}
		seen := map[int]bool{}
		for _, in := range n.Inputs {
			if seen[in.Node] {
				continue
			}
			seen[in.Node] = true
			indegree[n.ID]++
			dependents[in.Node] = append(dependents[in.Node], n.ID)
		}
	}

	ready := make([]int, 0, len(indegree))
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sortInts(ready)

	var order []int
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		next := dependents[id]
		sortInts(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = insertSorted(ready, dep)
			}
		}
	}

	if len(order) != len(indegree) {
		return nil, fmt.Errorf("model: graph contains a cycle")
	}
	return order, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func insertSorted(s []int, v int) []int {
	i := 0
	for i < len(s) && s[i] < v {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// --- op.DeclutterContext adapter ---

// declutterView adapts a *Graph/*Node pair to op.DeclutterContext without
// the op package needing to know about model.Graph.
type declutterView struct {
	g *Graph
	n *Node
}

// DeclutterContext returns the capability view a Declutterer op's
// Declutter method receives for node id.
func (g *Graph) DeclutterContext(id int) op.DeclutterContext {
	return declutterView{g: g, n: g.Node(id)}
}

func (d declutterView) NodeName() string { return d.n.Name }

func (d declutterView) InputIsConst(i int) (*tensor.Tensor, bool) {
	if i < 0 || i >= len(d.n.Inputs) {
		return nil, false
	}
	src := d.g.Node(d.n.Inputs[i].Node)
	if src == nil {
		return nil, false
	}
	return src.Const()
}

func (d declutterView) NumInputs() int { return len(d.n.Inputs) }
