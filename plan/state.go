package plan

import (
	"fmt"
	"sync"

	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/internal/xerr"
	"github.com/itohio/inferx/model"
	"github.com/itohio/inferx/op"
	"github.com/itohio/inferx/tensor"
)

// State holds one Plan's live execution: the current value at every still-
// live outlet (reference-counted via tensor.Shared, released as soon as a
// plan step's liveness interval ends) and the per-stateful-op State object
// a pulsified or otherwise statefull node carries across runs.
type State struct {
	mu sync.Mutex

	plan    *Plan
	outlets map[model.OutletID]*tensor.Shared
	ops     map[int]op.State
}

// NewState allocates a fresh State bound to p, with no outlets or
// per-stateful-op state populated yet.
func (p *Plan) NewState() *State {
	return &State{
		plan:    p,
		outlets: map[model.OutletID]*tensor.Shared{},
		ops:     map[int]op.State{},
	}
}

// Run binds inputs to the graph's input outlets, executes every node in
// plan order, and returns the tensors at the graph's output outlets. Each
// call reuses any per-stateful-op State from a previous Run, so a
// pulsified graph's ring buffers advance across successive calls exactly
// as they would across successive stream ticks.
func (s *State) Run(inputs map[model.OutletID]*tensor.Tensor) (map[model.OutletID]*tensor.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.bindInputs(inputs); err != nil {
		return nil, err
	}
	for step, id := range s.plan.order {
		if err := s.computeOne(step, id); err != nil {
			return nil, err
		}
	}

	outs := make(map[model.OutletID]*tensor.Tensor, len(s.plan.g.Outputs()))
	for _, o := range s.plan.g.Outputs() {
		sh, ok := s.outlets[o]
		if !ok {
			return nil, fmt.Errorf("plan: output outlet %s was never computed", o)
		}
		t, _ := sh.Unwrap()
		outs[o] = t
	}
	return outs, nil
}

// ComputeOne executes a single plan step and leaves its outputs in state,
// without running the rest of the plan — the diagnostic variant spec.md
// §4.6 describes for profiling. step indexes into Plan.Order(), not a raw
// node id.
func (s *State) ComputeOne(step int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if step < 0 || step >= len(s.plan.order) {
		return fmt.Errorf("plan: step %d out of range (plan has %d steps)", step, len(s.plan.order))
	}
	return s.computeOne(step, s.plan.order[step])
}

func (s *State) bindInputs(inputs map[model.OutletID]*tensor.Tensor) error {
	want := s.plan.g.Inputs()
	if len(inputs) != len(want) {
		return &xerr.ArityError{Expected: len(want), Got: len(inputs)}
	}
	for _, in := range want {
		t, ok := inputs[in]
		if !ok {
			return &xerr.ArityError{Expected: len(want), Got: len(inputs)}
		}
		if err := checkDType(s.plan.g, in, t); err != nil {
			return err
		}
		s.outlets[in] = tensor.NewShared(t)
	}
	return nil
}

func checkDType(g *model.Graph, o model.OutletID, t *tensor.Tensor) error {
	raw, ok := g.OutletFact(o)
	if !ok {
		return nil
	}
	typed, ok := raw.(fact.Typed)
	if !ok {
		if norm, ok := raw.(fact.Normalized); ok {
			typed = norm.Typed
		} else {
			return nil
		}
	}
	if typed.DType != t.DataType() {
		return &xerr.DtypeError{Expected: typed.DType, Got: t.DataType()}
	}
	return nil
}

func (s *State) computeOne(step, id int) error {
	n := s.plan.g.Node(id)
	if n == nil {
		return nil
	}
	if s.plan.inputNodeIDs[id] {
		// its value was already bound by Run's caller via bindInputs.
		s.releaseAt(step)
		return nil
	}

	inputs := make([]*tensor.Tensor, len(n.Inputs))
	for i, in := range n.Inputs {
		sh, ok := s.outlets[in]
		if !ok {
			return fmt.Errorf("plan: node %q input %d (outlet %s) was not computed yet", n.Name, i, in)
		}
		t, _ := sh.Unwrap()
		inputs[i] = t
	}

	outs, err := s.eval(id, n, inputs)
	if err != nil {
		return xerr.Wrap("plan", n.Name, err)
	}
	if len(outs) != n.NumOutputs {
		return &xerr.ArityError{Expected: n.NumOutputs, Got: len(outs)}
	}
	for slot, t := range outs {
		s.outlets[model.OutletID{Node: id, Slot: slot}] = tensor.NewShared(t)
	}

	s.releaseAt(step)
	return nil
}

func (s *State) eval(id int, n *model.Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if sf, ok := n.Op.(op.StatefullEvaluator); ok {
		st, ok := s.ops[id]
		if !ok {
			st = sf.NewState()
			s.ops[id] = st
		}
		return st.Eval(n.Op, inputs)
	}
	if se, ok := n.Op.(op.StatelessEvaluator); ok {
		outs, err := se.EvalStateless(inputs)
		if err != nil {
			return nil, err
		}
		return roundTripThroughDense(outs), nil
	}
	return nil, fmt.Errorf("plan: op %q has neither stateless nor statefull eval", n.Op.Name())
}

// roundTripThroughDense passes every float tensor a stateless eval produced
// through gorgonia.org/tensor's Dense backing and back, the dense-array
// storage this engine borrows from the teacher's gorgonia integration (see tensor.ToDense/FromDense). Non-float
// outputs (quantized integers, bools) have no Dense counterpart here and
// pass through unchanged.
func roundTripThroughDense(outs []*tensor.Tensor) []*tensor.Tensor {
	for i, t := range outs {
		d, err := t.ToDense()
		if err != nil {
			continue
		}
		back, err := tensor.FromDense(d)
		if err != nil {
			continue
		}
		outs[i] = back
	}
	return outs
}

// releaseAt drops every outlet whose liveness interval ends at step,
// decrementing its Shared reference count.
func (s *State) releaseAt(step int) {
	for o, until := range s.plan.liveUntil {
		if until != step {
			continue
		}
		if sh, ok := s.outlets[o]; ok {
			sh.Release()
			delete(s.outlets, o)
		}
	}
}
