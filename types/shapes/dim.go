package shapes

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// DimKind discriminates the three forms a dimension term can take.
type DimKind uint8

const (
	// DimConcrete is a known axis length, always >= 0.
	DimConcrete DimKind = iota

	// DimSymbol is a named dimension variable ("batch", "seq", ...), bound
	// within one declaration's checking session.
	DimSymbol

	// DimWildcard is an unknown axis length to be inferred. Wildcards never
	// constrain what they unify with.
	DimWildcard
)

// Dim is one dimension term of a tensor shape: a concrete axis length, a named
// symbolic variable, or a wildcard. The zero value is the concrete dimension 0.
//
// Use D, Sym and Wild to construct values.
type Dim struct {
	Kind  DimKind
	Value int    // Set for DimConcrete.
	Name  string // Set for DimSymbol.
}

// D returns a concrete dimension term. It panics if value is negative.
func D(value int) Dim {
	if value < 0 {
		exceptions.Panicf("shapes.D(%d): dimensions cannot be negative", value)
	}
	return Dim{Kind: DimConcrete, Value: value}
}

// Sym returns a named symbolic dimension term.
func Sym(name string) Dim {
	if name == "" {
		exceptions.Panicf("shapes.Sym(): symbolic dimensions require a name")
	}
	return Dim{Kind: DimSymbol, Name: name}
}

// Wild returns a wildcard dimension term.
func Wild() Dim {
	return Dim{Kind: DimWildcard}
}

// IsConcrete returns whether the term is a known axis length.
func (d Dim) IsConcrete() bool { return d.Kind == DimConcrete }

// IsSymbol returns whether the term is a named dimension variable.
func (d Dim) IsSymbol() bool { return d.Kind == DimSymbol }

// IsWildcard returns whether the term is an unknown to be inferred.
func (d Dim) IsWildcard() bool { return d.Kind == DimWildcard }

// Equal compares two dimension terms structurally.
func (d Dim) Equal(other Dim) bool {
	if d.Kind != other.Kind {
		return false
	}
	switch d.Kind {
	case DimConcrete:
		return d.Value == other.Value
	case DimSymbol:
		return d.Name == other.Name
	}
	return true
}

// String implements fmt.Stringer.
func (d Dim) String() string {
	switch d.Kind {
	case DimConcrete:
		return strconv.Itoa(d.Value)
	case DimSymbol:
		return d.Name
	}
	return "?"
}

// MarshalJSON serializes a concrete term as a JSON number, a symbol as its
// name and a wildcard as "?". This is the wire format of the external AST and
// IR contracts.
func (d Dim) MarshalJSON() ([]byte, error) {
	switch d.Kind {
	case DimConcrete:
		return json.Marshal(d.Value)
	case DimSymbol:
		return json.Marshal(d.Name)
	}
	return json.Marshal("?")
}

// UnmarshalJSON parses the format written by MarshalJSON.
func (d *Dim) UnmarshalJSON(data []byte) error {
	var asInt int
	if err := json.Unmarshal(data, &asInt); err == nil {
		if asInt < 0 {
			return errors.Errorf("dimension %d is negative", asInt)
		}
		*d = D(asInt)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return errors.Wrapf(err, "cannot parse dimension term from %s", data)
	}
	if asString == "?" || asString == "" {
		*d = Wild()
		return nil
	}
	*d = Sym(asString)
	return nil
}

var _ fmt.Stringer = Dim{}
