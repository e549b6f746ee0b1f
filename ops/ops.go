// Package ops registers the built-in layers, operators and pipeline steps,
// each with its configuration schema and shape transfer function.
//
// A Signature maps an operator name plus its static keyword configuration to
// the operator's output shape, or raises a structured diagnostic (see the
// diag package) when the inputs or the configuration are invalid. Signatures
// are data, not a class hierarchy: the solver dispatches over a closed, flat
// table built once at process start. User-defined layers are expanded into
// sequences of built-in calls by the front end before they reach the solver,
// so nothing here is extensible at runtime.
//
// Configuration handling is strict, to keep keyword defaults honest and
// debuggable: a missing required key is a MissingConfigOption, an
// unrecognized key is an UnknownConfigOption (never silently ignored), and a
// default value is only ever applied for a key the signature explicitly
// declares optional.
package ops

import (
	"github.com/gomlx/exceptions"

	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types/shapes"
	"github.com/NeuraLang/neuralang/types/xslices"
	"github.com/NeuraLang/neuralang/unify"
)

// OptionKind is the literal kind an option accepts.
type OptionKind uint8

const (
	IntOption OptionKind = iota
	FloatOption
	StringOption
	BoolOption
)

func (k OptionKind) String() string {
	switch k {
	case IntOption:
		return "int"
	case FloatOption:
		return "float"
	case StringOption:
		return "string"
	case BoolOption:
		return "bool"
	}
	return "invalid"
}

// Option is one entry of an operator's configuration schema: the recognized
// key, the literal kind it accepts, and -- for optional keys only -- the
// default applied when the key is absent.
type Option struct {
	Key      string
	Kind     OptionKind
	Required bool
	Default  ast.Literal
}

// Config is the validated configuration view handed to a transfer function:
// every declared key is present (defaults already applied) with the declared
// literal kind. The typed getters panic on schema violations, which would be
// a registration bug, not a user error.
type Config struct {
	op     string
	values map[string]ast.Literal
}

func (c Config) lookup(key string, kind OptionKind) ast.Literal {
	value, found := c.values[key]
	if !found {
		exceptions.Panicf("ops.Config: %s has no option %q (schema bug)", c.op, key)
	}
	wantKind := map[OptionKind]ast.LiteralKind{
		IntOption:    ast.LiteralInt,
		FloatOption:  ast.LiteralFloat,
		StringOption: ast.LiteralString,
		BoolOption:   ast.LiteralBool,
	}[kind]
	if value.Kind != wantKind {
		exceptions.Panicf("ops.Config: %s option %q holds %s, wanted %s (schema bug)", c.op, key, value, kind)
	}
	return value
}

// Int returns the value of an IntOption key.
func (c Config) Int(key string) int { return int(c.lookup(key, IntOption).Int) }

// Float returns the value of a FloatOption key.
func (c Config) Float(key string) float64 { return c.lookup(key, FloatOption).Float }

// Str returns the value of a StringOption key.
func (c Config) Str(key string) string { return c.lookup(key, StringOption).Str }

// Bool returns the value of a BoolOption key.
func (c Config) Bool(key string) bool { return c.lookup(key, BoolOption).Bool }

// Values returns the resolved configuration (defaults included), keyed by
// option name. The returned map is shared; callers must not mutate it.
func (c Config) Values() map[string]ast.Literal { return c.values }

// TransferFn computes an operator's output shape from its input shape(s) and
// validated configuration, unifying dimension variables on the declaration's
// arena. It raises a *diag.Diagnostic (via panic) on invalid inputs.
type TransferFn func(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape

// Signature is one operator's registration: name, arity, configuration
// schema and shape transfer function.
type Signature struct {
	Name      string
	NumInputs int
	Options   []Option
	Infer     TransferFn
}

// option returns the schema entry for key, or nil.
func (sig *Signature) option(key string) *Option {
	for ii := range sig.Options {
		if sig.Options[ii].Key == key {
			return &sig.Options[ii]
		}
	}
	return nil
}

// ValidateConfig checks the raw keyword arguments against the schema and
// returns the resolved Config with defaults applied. It raises
// MissingConfigOption or UnknownConfigOption diagnostics.
func (sig *Signature) ValidateConfig(raw map[string]ast.Literal) Config {
	values := make(map[string]ast.Literal, len(sig.Options))
	for _, key := range xslices.SortedKeys(raw) {
		opt := sig.option(key)
		if opt == nil {
			diag.Raisef(diag.UnknownConfigOption, nil,
				"%s does not recognize option %q", sig.Name, key)
		}
		value := raw[key]
		// Ints are accepted where a float is declared; everything else must
		// match the declared kind exactly.
		if opt.Kind == FloatOption && value.Kind == ast.LiteralInt {
			value = ast.Float64(float64(value.Int))
		}
		if !kindMatches(opt.Kind, value.Kind) {
			diag.Raisef(diag.UnknownConfigOption, nil,
				"%s option %q expects %s, got %s", sig.Name, key, opt.Kind, value)
		}
		values[key] = value
	}
	for _, opt := range sig.Options {
		if _, given := values[opt.Key]; given {
			continue
		}
		if opt.Required {
			diag.Raisef(diag.MissingConfigOption, nil,
				"%s requires option %q (%s)", sig.Name, opt.Key, opt.Kind)
		}
		values[opt.Key] = opt.Default
	}
	return Config{op: sig.Name, values: values}
}

func kindMatches(want OptionKind, got ast.LiteralKind) bool {
	switch want {
	case IntOption:
		return got == ast.LiteralInt
	case FloatOption:
		return got == ast.LiteralFloat
	case StringOption:
		return got == ast.LiteralString
	case BoolOption:
		return got == ast.LiteralBool
	}
	return false
}

// Apply validates the raw configuration and runs the transfer function.
func (sig *Signature) Apply(a *unify.Arena, inputs []shapes.Shape, raw map[string]ast.Literal) shapes.Shape {
	if len(inputs) != sig.NumInputs {
		exceptions.Panicf("ops.Signature %s applied to %d inputs, wants %d (solver bug)",
			sig.Name, len(inputs), sig.NumInputs)
	}
	return sig.Infer(a, inputs, sig.ValidateConfig(raw))
}

// Registry is a lookup table of operator signatures, immutable after
// construction and therefore safe for read-only sharing across checking
// goroutines.
type Registry struct {
	sigs map[string]*Signature
}

// newRegistry creates an empty registry.
func newRegistry() *Registry {
	return &Registry{sigs: make(map[string]*Signature)}
}

// register adds a signature. Duplicate names are a registration bug.
func (r *Registry) register(sig *Signature) *Registry {
	if _, found := r.sigs[sig.Name]; found {
		exceptions.Panicf("ops.Registry: %q registered twice", sig.Name)
	}
	r.sigs[sig.Name] = sig
	return r
}

// alias registers an additional name for an existing signature (e.g. "@" for
// matmul).
func (r *Registry) alias(name, target string) *Registry {
	sig, found := r.sigs[target]
	if !found {
		exceptions.Panicf("ops.Registry: alias %q to unknown %q", name, target)
	}
	r.sigs[name] = sig
	return r
}

// Get returns the signature registered under name.
func (r *Registry) Get(name string) (*Signature, bool) {
	sig, found := r.sigs[name]
	return sig, found
}

// Names returns the sorted registered names.
func (r *Registry) Names() []string {
	return xslices.SortedKeys(r.sigs)
}

// builtins is the process-wide table, built once at init time.
var builtins = newBuiltins()

// Builtins returns the registry of built-in operators. The returned registry
// is shared and immutable.
func Builtins() *Registry { return builtins }

// Infer is the convenience entry point used for expression-level operators:
// it looks the operator up in the built-in table and applies it.
//
// For example `Infer(a, "matmul", []shapes.Shape{lhs, rhs}, nil)` resolves
// the shape of `lhs @ rhs`.
func Infer(a *unify.Arena, op string, inputs []shapes.Shape, config map[string]ast.Literal) shapes.Shape {
	sig, found := builtins.Get(op)
	if !found {
		diag.Raisef(diag.UnknownDeclaration, nil, "unknown operator %q", op)
	}
	return sig.Apply(a, inputs, config)
}
