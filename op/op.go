// Package op defines the polymorphic operator abstraction that drives every
// lowering stage. Following the capability-interface split this codebase
// uses for tensor features (Core/ElementWise/Normalizations/Pooling are
// each their own interface, implemented selectively), an Op exposes only
// Name() at minimum; every other ability — evaluation, inference rules,
// typed facts, declutter, pulsify — is its own small interface that a
// concrete op implements when it applies. Callers discover capabilities
// with a type assertion, e.g. `if e, ok := o.(op.StatelessEvaluator); ok`.
package op

import (
	"github.com/itohio/inferx/fact"
	"github.com/itohio/inferx/tensor"
)

// Op is the capability every operator has: a stable, human-readable name
// used in error messages and declutter diagnostics.
type Op interface {
	Name() string
}

// StatelessEvaluator computes outputs from inputs as a pure function. Most
// ops (Add, MatMul, Relu, Flatten, ...) implement only this.
type StatelessEvaluator interface {
	Op
	EvalStateless(inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// State is the mutable per-invocation object a statefull op's Eval may
// carry across plan steps (e.g. a pulsified conv's ring buffer).
type State interface {
	// Eval consumes one tick's worth of inputs and produces this tick's
	// outputs, updating internal state in place.
	Eval(op Op, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// StatefullEvaluator produces a fresh State for one plan run.
type StatefullEvaluator interface {
	Op
	NewState() State
}

// RuleEmitter emits inference-solver constraints relating an op's input and
// output Fact proxies. See package solver for Proxy/Rule definitions; op
// does not import solver (solver depends on op) so this is expressed with a
// narrow local interface the solver package adapts to its own Solver type.
type RuleEmitter interface {
	Op
	Rules(s RuleSink, inputs, outputs []Proxy) error
}

// Proxy is a handle the solver hands an op's Rules method, one per input or
// output outlet, letting the op refer to "this outlet's dtype" or "this
// outlet's shape" without depending on the solver's internal bookkeeping.
type Proxy interface {
	DType() Attr
	Rank() Attr
	ShapeDim(i int) Attr
	Shape() Attr
	Value() Attr
}

// Attr identifies one unifiable attribute of one Proxy; the solver package
// implements it.
type Attr interface {
	attrMarker()
}

// RuleSink is the subset of solver.Solver an op's Rules method needs: the
// three rule-posting primitives from spec.md §4.3.
type RuleSink interface {
	Equals(a, b Attr) error
	EqualsAll(attrs ...Attr) error
	Given(expr Attr, closure func(RuleSink, any) error) error
}

// TypedFacter computes output TypedFacts purely from input TypedFacts, with
// no solver involved — used by the inference->typed lowering once every
// input is already concrete.
type TypedFacter interface {
	Op
	TypedFacts(inputs []fact.Typed) ([]fact.Typed, error)
}

// Declutterer proposes a simpler replacement for this node: a replacement
// op plus, by index into the node's existing inputs, which ones to keep —
// letting a rewrite drop inputs the replacement no longer needs (e.g.
// folding a redundant cast). ok=false means no rewrite applies to this
// node on this pass. The declutter package (not op, to avoid a dependency
// on model) is responsible for turning this proposal into an actual graph
// patch.
type Declutterer interface {
	Op
	Declutter(ctx DeclutterContext) (replacement Op, keepInputs []int, ok bool, err error)
}

// DeclutterContext is the narrow view of the owning node/graph a
// Declutter implementation needs; model.Node/model.Graph implement it.
type DeclutterContext interface {
	NodeName() string
	InputIsConst(i int) (*tensor.Tensor, bool)
	NumInputs() int
}

// AxisInvariants describes which axes of an op's output pass through
// unchanged from a given input, and whether the op is purely elementwise on
// them — used by declutter's reduce-axis tracking and by pulsify to decide
// whether the streaming axis survives an op untouched.
type AxisInvariants interface {
	Op
	// AxisAfter returns the output axis that input axis `inputAxis` of
	// input `input` maps to unchanged, or (-1, false) if that axis does
	// not pass through (e.g. it is reduced, or reshaped away).
	AxisAfter(input, inputAxis int) (outputAxis int, ok bool)
}

// AxisChanger accepts an axis transform applied to one input (e.g. "axis 2
// is being removed by an upstream squeeze") and returns a rewritten op plus
// any change this induces on its own output, for a declutter pass that
// threads axis renumbering through the graph.
type AxisChanger interface {
	Op
	ChangeAxis(input int, removed int) (rewritten Op, outputChange int, ok bool)
}

// Pulsifier rewrites an op for streaming execution over a chosen axis and
// pulse length.
type Pulsifier interface {
	Op
	Pulsify(axis, pulse int, inputs []fact.Pulsed) (pulsed Op, err error)
}

// PulsedFacter produces PulsedFacts for a pulsified op's outputs.
type PulsedFacter interface {
	Op
	PulsedFacts(inputs []fact.Pulsed) ([]fact.Pulsed, error)
}
