// Package dim implements TDim, the symbolic-or-integer dimension algebra
// used everywhere a shape dimension may be unknown at graph-build time. A
// Dim is a normalized linear polynomial in a small set of named symbols
// (typically one streaming symbol, "S") plus an integer constant.
package dim

import (
	"fmt"
	"sort"
	"strings"
)

// Dim is an immutable symbolic dimension: constant + sum(coeff * symbol).
// The zero value is the constant 0.
type Dim struct {
	constant int64
	terms    map[string]int64 // symbol -> nonzero coefficient
}

// Int returns the constant dimension n.
func Int(n int64) Dim {
	return Dim{constant: n}
}

// Sym returns the dimension consisting of exactly one symbol with
// coefficient 1, e.g. Sym("S").
func Sym(name string) Dim {
	return Dim{terms: map[string]int64{name: 1}}
}

func (d Dim) clone() map[string]int64 {
	if len(d.terms) == 0 {
		return nil
	}
	out := make(map[string]int64, len(d.terms))
	for k, v := range d.terms {
		out[k] = v
	}
	return out
}

func normalize(constant int64, terms map[string]int64) Dim {
	for k, v := range terms {
		if v == 0 {
			delete(terms, k)
		}
	}
	if len(terms) == 0 {
		terms = nil
	}
	return Dim{constant: constant, terms: terms}
}

// IsConstant reports whether d has no free symbols.
func (d Dim) IsConstant() bool {
	return len(d.terms) == 0
}

// ToInt64 returns (value, true) iff d is a constant expression.
func (d Dim) ToInt64() (int64, bool) {
	if d.IsConstant() {
		return d.constant, true
	}
	return 0, false
}

// Add returns d + other.
func (d Dim) Add(other Dim) Dim {
	terms := d.clone()
	if terms == nil {
		terms = map[string]int64{}
	}
	for k, v := range other.terms {
		terms[k] += v
	}
	return normalize(d.constant+other.constant, terms)
}

// Sub returns d - other.
func (d Dim) Sub(other Dim) Dim {
	return d.Add(other.Neg())
}

// Neg returns -d.
func (d Dim) Neg() Dim {
	terms := d.clone()
	for k, v := range terms {
		terms[k] = -v
	}
	return normalize(-d.constant, terms)
}

// MulInt returns d * k for an integer scalar k.
func (d Dim) MulInt(k int64) Dim {
	if k == 0 {
		return Int(0)
	}
	terms := d.clone()
	for sym, v := range terms {
		terms[sym] = v * k
	}
	return normalize(d.constant*k, terms)
}

// Mul returns d * other. The result is an exact linear polynomial when at
// most one of the two operands carries free symbols — multiplying two
// non-constant dims would require a higher-degree polynomial this algebra
// does not represent, so Mul falls back to a single opaque product symbol
// named by the two operands' rendered forms.
func (d Dim) Mul(other Dim) Dim {
	if d.IsConstant() {
		return other.MulInt(d.constant)
	}
	if other.IsConstant() {
		return d.MulInt(other.constant)
	}
	// Both symbolic: fold into a single opaque compound symbol so the
	// algebra stays closed. Equal is deterministic for this synthetic
	// symbol because it is derived from the two operands' normal forms;
	// Subst does not look inside it, so substituting "S" leaves it as is.
	return Sym(fmt.Sprintf("(%s)*(%s)", d.String(), other.String()))
}

// Div attempts exact integer division d / k. It succeeds iff k divides the
// constant and every coefficient, or iff d is itself a pure constant
// divisible by k. Division failure is a recoverable error, never a panic.
func (d Dim) Div(k int64) (Dim, error) {
	if k == 0 {
		return Dim{}, fmt.Errorf("dim: division by zero")
	}
	if d.constant%k != 0 {
		return Dim{}, fmt.Errorf("dim: %s is not evenly divisible by %d", d.String(), k)
	}
	terms := d.clone()
	for sym, v := range terms {
		if v%k != 0 {
			return Dim{}, fmt.Errorf("dim: %s is not evenly divisible by %d", d.String(), k)
		}
		terms[sym] = v / k
	}
	return normalize(d.constant/k, terms), nil
}

// Mod attempts d % k. Succeeds iff d is constant, or iff every coefficient
// and the constant are already a multiple of k (in which case the result is
// the constant 0).
func (d Dim) Mod(k int64) (Dim, error) {
	if k == 0 {
		return Dim{}, fmt.Errorf("dim: modulo by zero")
	}
	if d.IsConstant() {
		m := d.constant % k
		if m < 0 {
			m += k
		}
		return Int(m), nil
	}
	for _, v := range d.terms {
		if v%k != 0 {
			return Dim{}, fmt.Errorf("dim: %s is not reducible modulo %d", d.String(), k)
		}
	}
	if d.constant%k != 0 {
		return Dim{}, fmt.Errorf("dim: %s is not reducible modulo %d", d.String(), k)
	}
	return Int(0), nil
}

// Max returns the larger of d and other. Defined when the two are
// structurally equal (in which case either is the answer) or both
// constant; comparing two distinct symbolic dims has no general answer in
// this algebra, so that case is a recoverable error, the same style Div
// and Mod use for their own partiality.
func Max(d, other Dim) (Dim, error) {
	if d.Equal(other) {
		return d, nil
	}
	dc, dok := d.ToInt64()
	oc, ook := other.ToInt64()
	if !dok || !ook {
		return Dim{}, fmt.Errorf("dim: cannot compare symbolic dims %s and %s", d.String(), other.String())
	}
	if dc >= oc {
		return d, nil
	}
	return other, nil
}

// Min returns the smaller of d and other, with the same partiality as Max.
func Min(d, other Dim) (Dim, error) {
	if d.Equal(other) {
		return d, nil
	}
	dc, dok := d.ToInt64()
	oc, ook := other.ToInt64()
	if !dok || !ook {
		return Dim{}, fmt.Errorf("dim: cannot compare symbolic dims %s and %s", d.String(), other.String())
	}
	if dc <= oc {
		return d, nil
	}
	return other, nil
}

// Equal reports structural equality after normalization. This is not
// semantic equality over all integer assignments to the free symbols — two
// dims that always evaluate equal but are not the same normal form (e.g.
// after a Mul opaque-symbol fold) compare unequal.
func (d Dim) Equal(other Dim) bool {
	if d.constant != other.constant {
		return false
	}
	if len(d.terms) != len(other.terms) {
		return false
	}
	for k, v := range d.terms {
		if other.terms[k] != v {
			return false
		}
	}
	return true
}

// Subst replaces every occurrence of symbol name with the integer value n
// and returns the resulting (possibly now-constant) dim.
func (d Dim) Subst(name string, n int64) Dim {
	coeff, ok := d.terms[name]
	if !ok {
		return d
	}
	terms := d.clone()
	delete(terms, name)
	return normalize(d.constant+coeff*n, terms)
}

// Symbols returns the free symbol names appearing in d, sorted for
// deterministic output.
func (d Dim) Symbols() []string {
	names := make([]string, 0, len(d.terms))
	for k := range d.terms {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders d as e.g. "4*S+1", "S", or "7".
func (d Dim) String() string {
	names := d.Symbols()
	var parts []string
	for _, name := range names {
		coeff := d.terms[name]
		switch coeff {
		case 1:
			parts = append(parts, name)
		case -1:
			parts = append(parts, "-"+name)
		default:
			parts = append(parts, fmt.Sprintf("%d*%s", coeff, name))
		}
	}
	if d.constant != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d", d.constant))
	}
	out := parts[0]
	for _, p := range parts[1:] {
		if strings.HasPrefix(p, "-") {
			out += p
		} else {
			out += "+" + p
		}
	}
	return out
}
