// Package unify implements the dimension algebra: unification of dimension
// terms over a per-declaration union-find arena.
//
// Each declaration being checked owns exactly one Arena for the duration of
// its checking session. Named symbolic dimensions ("batch", "seq", ...) are
// union-find cells in the arena; unification binds them to concrete values or
// merges them with other variables. After checking, the arena is frozen:
// bindings become immutable and can be substituted into the declaration's
// shapes, or the arena is simply discarded on failure. There is no global
// dimension-variable state.
//
// Unification is symmetric and idempotent, and always makes monotonic
// progress: a cell only ever goes from unbound to bound, never back.
package unify

import (
	"github.com/gomlx/exceptions"

	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types"
	"github.com/NeuraLang/neuralang/types/shapes"
)

type cell struct {
	parent int
	name   string
	// bound is the concrete value this equivalence class resolved to, or a
	// wildcard while still unbound. Only meaningful on root cells.
	bound shapes.Dim
}

// Arena is the union-find table of one declaration's dimension variables.
// It is exclusively owned by a single checking session and is not safe for
// concurrent use.
type Arena struct {
	cells  []cell
	names  map[string]int
	open   types.Set[string]
	frozen bool
}

// New returns an empty arena.
func New() *Arena {
	return &Arena{
		names: make(map[string]int),
		open:  types.MakeSet[string](),
	}
}

// MarkOpen declares the named dimension variable open: it is allowed to
// remain unresolved at the end of checking (a batch size left generic for a
// pipeline, for instance).
func (a *Arena) MarkOpen(name string) {
	a.open.Insert(name)
}

// varID interns the named variable, creating its cell on first use.
func (a *Arena) varID(name string) int {
	if id, found := a.names[name]; found {
		return id
	}
	id := len(a.cells)
	a.cells = append(a.cells, cell{parent: id, name: name, bound: shapes.Wild()})
	a.names[name] = id
	return id
}

// find returns the root of the cell's equivalence class, with path
// compression.
func (a *Arena) find(id int) int {
	root := id
	for a.cells[root].parent != root {
		root = a.cells[root].parent
	}
	for a.cells[id].parent != id {
		next := a.cells[id].parent
		a.cells[id].parent = root
		id = next
	}
	return root
}

func (a *Arena) checkMutable() {
	if a.frozen {
		exceptions.Panicf("unify.Arena used after Freeze()")
	}
}

// Unify merges two dimension terms into a single consistent term, or raises a
// ShapeMismatch diagnostic (as a panic, see diag.Raisef) if they are
// inconsistent. The rules, in order:
//
//  1. Two concrete values unify iff equal.
//  2. A variable unifies with anything by binding; binding to a wildcard
//     leaves it unresolved but does not error.
//  3. A wildcard unifies with anything, producing the other term.
//
// Unify is symmetric and idempotent: unifying an already-equal pair is a
// no-op.
func (a *Arena) Unify(x, y shapes.Dim) shapes.Dim {
	a.checkMutable()
	x, y = a.Resolve(x), a.Resolve(y)

	// Wildcards never constrain.
	if x.IsWildcard() {
		return y
	}
	if y.IsWildcard() {
		return x
	}

	if x.IsConcrete() && y.IsConcrete() {
		if x.Value != y.Value {
			diag.Raisef(diag.ShapeMismatch, nil, "dimensions %s and %s cannot be unified", x, y)
		}
		return x
	}

	// At least one side is an unbound variable.
	if x.IsSymbol() && y.IsSymbol() {
		rootX, rootY := a.find(a.varID(x.Name)), a.find(a.varID(y.Name))
		if rootX != rootY {
			a.cells[rootY].parent = rootX
			if a.open.Has(y.Name) {
				// Openness follows the merged class.
				a.open.Insert(a.cells[rootX].name)
			}
		}
		return shapes.Sym(a.cells[rootX].name)
	}
	variable, value := x, y
	if y.IsSymbol() {
		variable, value = y, x
	}
	root := a.find(a.varID(variable.Name))
	a.cells[root].bound = value
	return value
}

// Observe interns every symbolic dimension of the shape, so variables that
// flow through a declaration without ever being unified still participate in
// the final unresolved-variable accounting.
func (a *Arena) Observe(s shapes.Shape) {
	a.checkMutable()
	for _, dim := range s.Dimensions {
		if dim.IsSymbol() {
			a.varID(dim.Name)
		}
	}
}

// Resolve substitutes a term's binding, if any: a symbol bound to a concrete
// value resolves to that value; an unbound symbol resolves to its class
// representative. Concrete terms and wildcards resolve to themselves.
func (a *Arena) Resolve(d shapes.Dim) shapes.Dim {
	if !d.IsSymbol() {
		return d
	}
	id, found := a.names[d.Name]
	if !found {
		return d
	}
	root := a.find(id)
	if a.cells[root].bound.IsConcrete() {
		return a.cells[root].bound
	}
	return shapes.Sym(a.cells[root].name)
}

// ResolveShape substitutes bindings on every dimension of the shape.
func (a *Arena) ResolveShape(s shapes.Shape) shapes.Shape {
	resolved := s.Clone()
	for axis, dim := range resolved.Dimensions {
		resolved.Dimensions[axis] = a.Resolve(dim)
	}
	return resolved
}

// UnifyShapes unifies two shapes rank-wise. Ranks are never inferred, so a
// rank difference is a ShapeMismatch, as is a dtype difference.
func (a *Arena) UnifyShapes(x, y shapes.Shape) shapes.Shape {
	if x.DType != y.DType {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{x, y},
			"dtypes %s and %s do not match", x.DType, y.DType)
	}
	if x.Rank() != y.Rank() {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{x, y},
			"ranks %d and %d do not match", x.Rank(), y.Rank())
	}
	out := shapes.Shape{DType: x.DType, Dimensions: make([]shapes.Dim, x.Rank())}
	for axis := range x.Dimensions {
		out.Dimensions[axis] = a.unifyAxis(x, y, axis)
	}
	return out
}

// unifyAxis wraps the dimension-level mismatch with the full shapes for
// diagnostics.
func (a *Arena) unifyAxis(x, y shapes.Shape, axis int) shapes.Dim {
	var out shapes.Dim
	caught := exceptions.TryCatch[*diag.Diagnostic](func() {
		out = a.Unify(x.Dimensions[axis], y.Dimensions[axis])
	})
	if caught != nil {
		diag.Raisef(caught.Kind, []shapes.Shape{x, y}, "axis %d: %s", axis, caught.Message)
	}
	return out
}

// Unresolved returns the representative names of variable classes that are
// still unbound and not marked open, in first-use order. A non-empty result
// at the end of checking a declaration is an UnresolvedDimensionVariable
// error.
func (a *Arena) Unresolved() []string {
	seen := make(map[int]bool)
	var names []string
	for id := range a.cells {
		root := a.find(id)
		if seen[root] {
			continue
		}
		seen[root] = true
		if a.cells[root].bound.IsConcrete() {
			continue
		}
		if a.openClass(root) {
			continue
		}
		names = append(names, a.cells[root].name)
	}
	return names
}

// openClass reports whether any member of the root's equivalence class was
// marked open.
func (a *Arena) openClass(root int) bool {
	for id := range a.cells {
		if a.find(id) == root && a.open.Has(a.cells[id].name) {
			return true
		}
	}
	return false
}

// Freeze promotes the arena to an immutable resolved form: further
// unification panics, resolution remains available.
func (a *Arena) Freeze() {
	a.frozen = true
}
