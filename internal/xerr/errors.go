// Package xerr defines the structured error taxonomy shared by every
// inferx package. Every error type wraps an optional underlying cause and
// supports errors.Is/As via Unwrap.
package xerr

import "fmt"

// ParseError reports malformed model input.
type ParseError struct {
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inferx: parse error in %s: %v", e.Context, e.Err)
	}
	return fmt.Sprintf("inferx: parse error in %s", e.Context)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownOp reports an operator type absent from the registry.
type UnknownOp struct {
	OpType string
}

func (e *UnknownOp) Error() string {
	return fmt.Sprintf("inferx: unknown op type %q", e.OpType)
}

// InferenceContradiction reports a solver unification failure.
type InferenceContradiction struct {
	Node      string
	Attribute string
	A, B      any
}

func (e *InferenceContradiction) Error() string {
	return fmt.Sprintf("inferx: node %q: contradiction on %s: %v != %v", e.Node, e.Attribute, e.A, e.B)
}

// UnderdeterminedFact reports that the solver converged without fully
// concretizing a required attribute.
type UnderdeterminedFact struct {
	Node      string
	Attribute string
}

func (e *UnderdeterminedFact) Error() string {
	return fmt.Sprintf("inferx: node %q: %s is underdetermined after solving", e.Node, e.Attribute)
}

// DtypeError reports a runtime dtype mismatch.
type DtypeError struct {
	Expected, Got any
}

func (e *DtypeError) Error() string {
	return fmt.Sprintf("inferx: dtype mismatch: expected %v, got %v", e.Expected, e.Got)
}

// ShapeError reports a runtime shape mismatch.
type ShapeError struct {
	Expected, Got any
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("inferx: shape mismatch: expected %v, got %v", e.Expected, e.Got)
}

// ArityError reports a mismatched input/output count.
type ArityError struct {
	Expected, Got int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("inferx: arity mismatch: expected %d, got %d", e.Expected, e.Got)
}

// NotPulsifiable reports that an op or node cannot be pulsified.
type NotPulsifiable struct {
	Node   string
	Reason string
}

func (e *NotPulsifiable) Error() string {
	return fmt.Sprintf("inferx: node %q is not pulsifiable: %s", e.Node, e.Reason)
}

// NonTerminatingDeclutter reports that the declutter loop exceeded its
// iteration cap.
type NonTerminatingDeclutter struct {
	Iterations int
}

func (e *NonTerminatingDeclutter) Error() string {
	return fmt.Sprintf("inferx: declutter did not converge after %d iterations", e.Iterations)
}

// NumericError reports a dtype-specific numeric failure (overflow, a NaN
// where the op forbids it, and so on).
type NumericError struct {
	Node    string
	Message string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("inferx: node %q: numeric error: %s", e.Node, e.Message)
}

// Wrap adds node/phase context to an existing error, the way every layer in
// this codebase accumulates context as an error bubbles up.
func Wrap(phase, node string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: node %q: %w", phase, node, err)
}

// Invariant panics with an InternalInvariantViolated-shaped message. It
// signals a bug in inferx itself, never a recoverable condition, so callers
// must never recover from it.
func Invariant(format string, args ...any) {
	panic("inferx: internal invariant violated: " + fmt.Sprintf(format, args...))
}
