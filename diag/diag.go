// Package diag defines the structured, source-locatable errors produced by
// the checker.
//
// A Diagnostic identifies the failing declaration and stage and carries the
// conflicting shapes, so an external CLI or REPL can merge it with the
// parser's location metadata and point at a line of source. Diagnostics for
// one declaration are aggregated in a Bag: checking never stops at the first
// error, the user sees every shape problem in a model in one pass.
//
// Inside the solver, transfer functions and the dimension algebra signal
// failures by panicking with a *Diagnostic (see Raisef); the solver catches
// them at each stage boundary with exceptions.TryCatch and files them into the
// declaration's Bag.
package diag

import (
	"fmt"
	"strings"

	"github.com/NeuraLang/neuralang/types/shapes"
	"github.com/NeuraLang/neuralang/types/xslices"
)

// Kind enumerates the error taxonomy. Every user-facing failure of the
// checker is one of these; LoweringInvariantViolation is reserved for checks
// that should be unreachable given correct solver behavior.
type Kind int

const (
	InvalidKind Kind = iota
	DuplicateDeclaration
	UnknownDeclaration
	MissingConfigOption
	UnknownConfigOption
	ShapeMismatch
	DeclaredVsInferredMismatch
	UnresolvedDimensionVariable
	StackingFixpointViolation
	LoweringInvariantViolation
)

var kindNames = map[Kind]string{
	InvalidKind:                 "InvalidKind",
	DuplicateDeclaration:        "DuplicateDeclaration",
	UnknownDeclaration:          "UnknownDeclaration",
	MissingConfigOption:         "MissingConfigOption",
	UnknownConfigOption:         "UnknownConfigOption",
	ShapeMismatch:               "ShapeMismatch",
	DeclaredVsInferredMismatch:  "DeclaredVsInferredMismatch",
	UnresolvedDimensionVariable: "UnresolvedDimensionVariable",
	StackingFixpointViolation:   "StackingFixpointViolation",
	LoweringInvariantViolation:  "LoweringInvariantViolation",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText makes Kind serialize as its name in JSON records.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsInternal reports whether the kind denotes a defect in the engine itself
// rather than in the user's program.
func (k Kind) IsInternal() bool {
	return k == LoweringInvariantViolation
}

// Diagnostic is one structured error. Declaration and StageIndex are filled
// in by the solver when the error surfaces; transfer functions only provide
// Kind, Message and the shapes involved. StageIndex is -1 when the error is
// not tied to a particular stage.
type Diagnostic struct {
	Kind        Kind           `json:"kind"`
	Declaration string         `json:"declaration,omitempty"`
	StageIndex  int            `json:"stage_index"`
	Message     string         `json:"message"`
	Shapes      []shapes.Shape `json:"shapes_involved,omitempty"`
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(d.Kind.String())
	if d.Declaration != "" {
		fmt.Fprintf(&b, " in %q", d.Declaration)
	}
	if d.StageIndex >= 0 {
		fmt.Fprintf(&b, " (stage #%d)", d.StageIndex)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	if len(d.Shapes) > 0 {
		parts := xslices.Map(d.Shapes, shapes.Shape.String)
		fmt.Fprintf(&b, " [shapes: %s]", strings.Join(parts, " vs "))
	}
	return b.String()
}

// Newf creates a Diagnostic with an unset stage.
func Newf(kind Kind, involved []shapes.Shape, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Kind:       kind,
		StageIndex: -1,
		Message:    fmt.Sprintf(format, args...),
		Shapes:     involved,
	}
}

// Raisef panics with a new *Diagnostic. This is how transfer functions and
// the dimension algebra abort the current stage; the solver converts the
// panic back into a filed Diagnostic.
func Raisef(kind Kind, involved []shapes.Shape, format string, args ...any) {
	panic(Newf(kind, involved, format, args...))
}

// Bag aggregates the diagnostics of one checking session. The zero value is
// ready to use. Bags are not safe for concurrent use; each declaration owns
// its own during checking.
type Bag struct {
	diags []*Diagnostic
}

// Add files a diagnostic. Nil diagnostics are ignored.
func (b *Bag) Add(d *Diagnostic) {
	if d != nil {
		b.diags = append(b.diags, d)
	}
}

// AddAll files every diagnostic of another bag.
func (b *Bag) AddAll(other *Bag) {
	b.diags = append(b.diags, other.diags...)
}

// Empty returns whether no diagnostics were filed.
func (b *Bag) Empty() bool { return len(b.diags) == 0 }

// Len returns the number of filed diagnostics.
func (b *Bag) Len() int { return len(b.diags) }

// All returns the filed diagnostics in filing order. The returned slice is
// owned by the bag.
func (b *Bag) All() []*Diagnostic { return b.diags }

// Err returns nil if the bag is empty, the single diagnostic if there is
// exactly one, or an error joining all messages otherwise.
func (b *Bag) Err() error {
	switch len(b.diags) {
	case 0:
		return nil
	case 1:
		return b.diags[0]
	}
	parts := xslices.Map(b.diags, (*Diagnostic).Error)
	return fmt.Errorf("%d errors:\n\t%s", len(b.diags), strings.Join(parts, "\n\t"))
}
