// Package ast holds the abstract syntax tree the checker consumes.
//
// The AST is produced by an external front end (parser/REPL) and handed over
// as plain data, typically as JSON. This package defines only the data
// contract; it performs no parsing and no checking of source text.
package ast

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/NeuraLang/neuralang/types/shapes"
)

// DeclKind identifies the namespace a top-level declaration lives in.
// Names are unique per kind, not globally.
type DeclKind string

const (
	KindModel    DeclKind = "model"
	KindPipeline DeclKind = "pipeline"
	KindTrain    DeclKind = "train"
)

// Program is one compilation unit: every top-level declaration of one source
// unit, already parsed.
type Program struct {
	Models    []*ModelDecl    `json:"models,omitempty"`
	Pipelines []*PipelineDecl `json:"pipelines,omitempty"`
	Trains    []*TrainDecl    `json:"trains,omitempty"`
}

// ModelDecl is a `model` block: a declared input type and a linear stack of
// layer calls, optionally repeated `Stack` times.
type ModelDecl struct {
	Name   string      `json:"name"`
	Input  shapes.Shape `json:"input"`
	Layers []LayerCall `json:"layers"`

	// Stack repeats the layer sequence this many times. Zero or one means no
	// repetition.
	Stack int `json:"stack,omitempty"`

	// Open lists the dimension variable names that may legitimately remain
	// unresolved after checking (e.g. a generic batch dimension).
	Open []string `json:"open,omitempty"`
}

// LayerCall is one layer instance in a model's `layers:` stack, with its
// static keyword configuration and optional explicit `tensor[...]` output
// annotation.
type LayerCall struct {
	Name   string             `json:"name"`
	Config map[string]Literal `json:"config,omitempty"`

	// Output is the explicit type annotation attached to this call, if the
	// source carried one. The checker unifies it with the inferred type.
	Output *shapes.Shape `json:"output,omitempty"`
}

// StepCall is one named transform step in a pipeline (`tokenize`, `batch`,
// `normalize`, ...). Structurally identical to a layer call.
type StepCall = LayerCall

// PipelineDecl is a `pipeline` block: the declared per-sample type (and
// optionally the label type) and a linear chain of transform steps.
type PipelineDecl struct {
	Name   string        `json:"name"`
	Sample shapes.Shape  `json:"sample"`
	Label  *shapes.Shape `json:"label,omitempty"`
	Steps  []StepCall    `json:"steps"`
	Open   []string      `json:"open,omitempty"`
}

// TrainDecl is a `train` block. ModelRef and PipelineRef are name-based,
// non-owning references, resolved to the concrete declarations by the
// declaration table's binding pass.
type TrainDecl struct {
	Name        string `json:"name"`
	ModelRef    string `json:"model_ref"`
	PipelineRef string `json:"pipeline_ref"`
	Optimizer   string `json:"optimizer"`
	Loss        string `json:"loss"`
	Epochs      int    `json:"epochs"`
	Distribute  string `json:"distribute,omitempty"`
	Checkpoint  string `json:"checkpoint,omitempty"`
	Inspect     bool   `json:"inspect,omitempty"`
}

// LiteralKind discriminates the forms a configuration literal can take.
type LiteralKind uint8

const (
	LiteralInvalid LiteralKind = iota
	LiteralInt
	LiteralFloat
	LiteralString
	LiteralBool
)

// Literal is one keyword-argument value in a layer or step configuration:
// an int, float, string or bool.
type Literal struct {
	Kind  LiteralKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// Int64 returns an int literal.
func Int64(v int64) Literal { return Literal{Kind: LiteralInt, Int: v} }

// Float64 returns a float literal.
func Float64(v float64) Literal { return Literal{Kind: LiteralFloat, Float: v} }

// String returns a string literal.
func String(v string) Literal { return Literal{Kind: LiteralString, Str: v} }

// Bool returns a bool literal.
func Bool(v bool) Literal { return Literal{Kind: LiteralBool, Bool: v} }

// GoString renders the literal as it would appear in source.
func (l Literal) GoString() string {
	switch l.Kind {
	case LiteralInt:
		return strconv.FormatInt(l.Int, 10)
	case LiteralFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LiteralString:
		return strconv.Quote(l.Str)
	case LiteralBool:
		return strconv.FormatBool(l.Bool)
	}
	return "<invalid>"
}

// String implements fmt.Stringer.
func (l Literal) String() string { return l.GoString() }

// MarshalJSON serializes the literal as its plain JSON value.
func (l Literal) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case LiteralInt:
		return json.Marshal(l.Int)
	case LiteralFloat:
		return json.Marshal(l.Float)
	case LiteralString:
		return json.Marshal(l.Str)
	case LiteralBool:
		return json.Marshal(l.Bool)
	}
	return nil, errors.Errorf("cannot serialize invalid literal")
}

// UnmarshalJSON sniffs the JSON value type: bool, integer, float or string.
func (l *Literal) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		*l = Bool(asBool)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		if asInt, err := asNumber.Int64(); err == nil {
			*l = Int64(asInt)
			return nil
		}
		asFloat, err := asNumber.Float64()
		if err != nil {
			return errors.Wrapf(err, "cannot parse numeric literal %s", asNumber)
		}
		*l = Float64(asFloat)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return errors.Errorf("cannot parse literal from %s", data)
	}
	*l = String(asString)
	return nil
}

var _ fmt.Stringer = Literal{}
