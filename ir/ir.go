// Package ir defines the typed intermediate representation handed to the
// backend: a flat, ordered node list per declaration, every node carrying its
// fully resolved input and output types and its resolved configuration.
//
// Lowering fails closed. The driver never lowers a declaration that produced
// diagnostics, and Lower re-validates resolvedness on its own: a wildcard
// dimension surviving into lowering means a gap in the solver, reported as an
// internal LoweringInvariantViolation rather than silently producing a wrong
// module. Open dimension variables (a generic batch size, say) are the one
// symbolic form allowed through; the backend binds them at execution time.
package ir

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/checker"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types/shapes"
)

// Value is one resolved configuration entry of an IR node. Defaults from the
// operator schema are already applied; nothing symbolic remains.
type Value = ast.Literal

// Node is one lowered operator instance.
type Node struct {
	Op         string           `json:"op"`
	InputTypes []shapes.Shape   `json:"input_types"`
	OutputType shapes.Shape     `json:"output_type"`
	Config     map[string]Value `json:"config,omitempty"`
}

// Shape implements shapes.HasShape with the node's output type.
func (n Node) Shape() shapes.Shape { return n.OutputType }

// Module is the lowered form of one model or pipeline declaration.
type Module struct {
	ID         uuid.UUID     `json:"id"`
	Name       string        `json:"name"`
	Kind       ast.DeclKind  `json:"kind"`
	Nodes      []Node        `json:"nodes"`
	OutputType shapes.Shape  `json:"output_type"`
	LabelType  *shapes.Shape `json:"label_type,omitempty"`
}

// TrainPlan is the lowered form of a train declaration: the resolved types
// the runtime needs to validate loss compatibility, plus the training options
// carried through verbatim.
type TrainPlan struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Model       string        `json:"model"`
	Pipeline    string        `json:"pipeline"`
	ModelOutput shapes.Shape  `json:"model_output"`
	SampleType  shapes.Shape  `json:"sample_type"`
	LabelType   *shapes.Shape `json:"label_type,omitempty"`
	Optimizer   string        `json:"optimizer"`
	Loss        string        `json:"loss"`
	Epochs      int           `json:"epochs"`
	Distribute  string        `json:"distribute,omitempty"`
	Checkpoint  string        `json:"checkpoint,omitempty"`
	Inspect     bool          `json:"inspect,omitempty"`
}

// violation builds the internal-invariant error for a declaration that
// reached lowering in a state it never should have.
func violation(decl string, format string, args ...any) error {
	d := diag.Newf(diag.LoweringInvariantViolation, nil, format, args...)
	d.Declaration = decl
	return errors.WithStack(d)
}

// checkLowerable verifies a shape can be emitted into the IR: concrete and
// symbolic (open) dimensions pass, wildcards do not.
func checkLowerable(decl, context string, s shapes.Shape) error {
	if !s.Ok() {
		return violation(decl, "%s has no type", context)
	}
	for axis, dim := range s.Dimensions {
		if dim.IsWildcard() {
			return violation(decl, "%s axis %d of %s is an unbound wildcard", context, axis, s)
		}
	}
	return nil
}

// Lower flattens a checked model or pipeline into an ordered typed node list.
// A `stack: N` model is expanded: the block's nodes are emitted N times, each
// repetition owning its own parameters.
func Lower(checked *checker.Checked) (*Module, error) {
	if checked.Kind == ast.KindTrain {
		return nil, violation(checked.Name, "train declarations lower to a TrainPlan, not a Module")
	}
	if !checked.Ok() {
		return nil, violation(checked.Name, "declaration has %d unresolved error(s)", checked.Diags.Len())
	}

	module := &Module{
		ID:         uuid.New(),
		Name:       checked.Name,
		Kind:       checked.Kind,
		Nodes:      make([]Node, 0, len(checked.Stages)*checked.StackCount),
		OutputType: checked.Output,
	}
	if err := checkLowerable(checked.Name, "output", checked.Output); err != nil {
		return nil, err
	}
	if checked.Label.Ok() {
		if err := checkLowerable(checked.Name, "label", checked.Label); err != nil {
			return nil, err
		}
		label := checked.Label
		module.LabelType = &label
	}

	for repeat := 0; repeat < checked.StackCount; repeat++ {
		for _, stage := range checked.Stages {
			context := fmt.Sprintf("stage #%d %s", stage.Index, stage.Op)
			if err := checkLowerable(checked.Name, context+" input", stage.Input); err != nil {
				return nil, err
			}
			if err := checkLowerable(checked.Name, context+" output", stage.Output); err != nil {
				return nil, err
			}
			module.Nodes = append(module.Nodes, Node{
				Op:         stage.Op,
				InputTypes: []shapes.Shape{stage.Input},
				OutputType: stage.Output,
				Config:     stage.Config,
			})
		}
	}
	return module, nil
}

// LowerTrain turns a checked train declaration into the plan record the
// runtime consumes.
func LowerTrain(checked *checker.Checked) (*TrainPlan, error) {
	if checked.Kind != ast.KindTrain {
		return nil, violation(checked.Name, "%s declarations lower to a Module, not a TrainPlan", checked.Kind)
	}
	if !checked.Ok() {
		return nil, violation(checked.Name, "declaration has %d unresolved error(s)", checked.Diags.Len())
	}
	info := checked.Train
	if info == nil {
		return nil, violation(checked.Name, "train declaration checked without train info")
	}
	plan := &TrainPlan{
		ID:          uuid.New(),
		Name:        checked.Name,
		Model:       info.Model,
		Pipeline:    info.Pipeline,
		ModelOutput: info.ModelOutput,
		SampleType:  info.SampleType,
		Optimizer:   info.Optimizer,
		Loss:        info.Loss,
		Epochs:      info.Epochs,
		Distribute:  info.Distribute,
		Checkpoint:  info.Checkpoint,
		Inspect:     info.Inspect,
	}
	if info.LabelType.Ok() {
		label := info.LabelType
		plan.LabelType = &label
	}
	return plan, nil
}
