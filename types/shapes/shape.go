// Package shapes defines Shape, Dim and DType, the value types the whole
// checker is built around.
//
// A Shape pairs an element kind (DType) with an ordered sequence of dimension
// terms. A dimension term (Dim) is a concrete length, a named symbolic
// variable, or a wildcard still to be inferred. A Shape whose terms are all
// concrete is "resolved"; only resolved shapes reach the typed IR.
//
// ## Glossary
//
//   - Rank: number of axes of a tensor. Rank is fixed once declared; the
//     checker infers dimension values, never rank.
//   - Axis: the index of a dimension. Negative axes count from the end, so
//     axis -1 is the trailing dimension.
//   - Dimension: the length of one axis, possibly still symbolic.
//   - DType: the element kind, from a closed numeric set.
//
// Example: `shapes.Make(shapes.Float32, shapes.Sym("batch"), shapes.D(784))`
// is the shape `(float32)[batch 784]` — a rank-2 tensor whose leading axis is
// a dimension variable.
package shapes

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Shape represents the type of a tensor value: its element kind and the
// ordered dimension terms of each axis.
//
// Use Make (or MakeResolved for all-concrete dimensions) to create one.
type Shape struct {
	DType      DType
	Dimensions []Dim
}

// Make returns a Shape with the given dtype and dimension terms.
func Make(dtype DType, dimensions ...Dim) Shape {
	return Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
}

// MakeResolved returns a Shape with all-concrete dimensions. It panics if any
// dimension is negative.
func MakeResolved(dtype DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: make([]Dim, 0, len(dimensions))}
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.MakeResolved(%s): cannot create a shape with a negative dimension %d", dtype, dim)
		}
		s.Dimensions = append(s.Dimensions, D(dim))
	}
	return s
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, just instantiating
// it with Shape{}, is invalid.
func (s Shape) Ok() bool { return s.DType != InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is, there are
// no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension term of the given axis. axis can take negative
// numbers, in which case it counts from the end -- so axis=-1 refers to the
// trailing axis. Like with slice indexing, it panics for an out-of-bounds
// axis.
func (s Shape) Dim(axis int) Dim {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// Shape returns a shallow copy of itself. It implements the HasShape
// interface.
func (s Shape) Shape() Shape { return s }

// String implements fmt.Stringer, pretty-prints the shape.
func (s Shape) String() string {
	if !s.Ok() {
		return "(invalid)"
	}
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, 0, s.Rank())
	for _, dim := range s.Dimensions {
		parts = append(parts, dim.String())
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}

// IsResolved returns whether every dimension term is concrete. Only resolved
// shapes may be lowered to the IR.
func (s Shape) IsResolved() bool {
	for _, dim := range s.Dimensions {
		if !dim.IsConcrete() {
			return false
		}
	}
	return s.Ok()
}

// Size returns the number of elements for this shape, the product of all
// dimensions. It panics if the shape is not resolved.
func (s Shape) Size() (size int) {
	size = 1
	for _, dim := range s.Dimensions {
		if !dim.IsConcrete() {
			exceptions.Panicf("Shape.Size() on unresolved shape %s", s)
		}
		size *= dim.Value
	}
	return
}

// Memory returns the memory needed to store a tensor of this shape, in bytes.
// It panics if the shape is not resolved.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes structurally: dtype, rank and every dimension
// term.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType || s.Rank() != s2.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		if !dim.Equal(s2.Dimensions[axis]) {
			return false
		}
	}
	return true
}

// EqualDimensions compares two shapes for equality of dimensions. DTypes can
// be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	if s.Rank() != s2.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		if !dim.Equal(s2.Dimensions[axis]) {
			return false
		}
	}
	return true
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// WithTrailing returns a copy of the shape whose trailing dimension is
// replaced by the given term. It panics on a scalar shape.
func (s Shape) WithTrailing(dim Dim) Shape {
	if s.Rank() == 0 {
		exceptions.Panicf("Shape.WithTrailing on scalar shape %s", s)
	}
	s2 := s.Clone()
	s2.Dimensions[s2.Rank()-1] = dim
	return s2
}

// Symbols returns the set of symbolic dimension names appearing in the shape,
// in axis order, without duplicates.
func (s Shape) Symbols() []string {
	var names []string
	for _, dim := range s.Dimensions {
		if dim.IsSymbol() && !slices.Contains(names, dim.Name) {
			names = append(names, dim.Name)
		}
	}
	return names
}

// shapeJSON is the wire representation of a Shape.
type shapeJSON struct {
	DType string `json:"dtype"`
	Dims  []Dim  `json:"dims"`
}

// MarshalJSON serializes the shape in the external AST/IR wire format:
// `{"dtype": "float32", "dims": [64, "batch", "?"]}`.
func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal(shapeJSON{DType: s.DType.String(), Dims: s.Dimensions})
}

// UnmarshalJSON parses the format written by MarshalJSON.
func (s *Shape) UnmarshalJSON(data []byte) error {
	var wire shapeJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "cannot parse shape")
	}
	dtype, err := DTypeFromString(wire.DType)
	if err != nil {
		return err
	}
	s.DType = dtype
	s.Dimensions = wire.Dims
	return nil
}

// ConcatenateDimensions of two shapes. The resulting rank is the sum of both
// ranks. They must have the same dtype. If any of them is a scalar, the
// resulting shape will be a copy of the other.
func ConcatenateDimensions(s1, s2 Shape) (shape Shape) {
	if !s1.Ok() || !s2.Ok() || s1.DType != s2.DType {
		return
	}
	if s1.IsScalar() {
		return s2.Clone()
	} else if s2.IsScalar() {
		return s1.Clone()
	}
	shape.DType = s1.DType
	shape.Dimensions = make([]Dim, s1.Rank()+s2.Rank())
	copy(shape.Dimensions, s1.Dimensions)
	copy(shape.Dimensions[s1.Rank():], s2.Dimensions)
	return
}
