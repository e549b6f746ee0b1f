package ops

import (
	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types/shapes"
	"github.com/NeuraLang/neuralang/unify"
)

// BatchStep is the step the solver also applies to a pipeline's label shape,
// so samples and labels stay batched together.
const BatchStep = "batch"

// tokenizeInfer turns one text sample into a fixed-length Int32 token
// sequence. The incoming sample shape is ignored on purpose: tokenization is
// defined on whole samples, before any batching.
func tokenizeInfer(_ *unify.Arena, _ []shapes.Shape, config Config) shapes.Shape {
	length := config.Int("length")
	if length <= 0 {
		diag.Raisef(diag.ShapeMismatch, nil,
			"tokenize length must be positive, got %d", length)
	}
	if vocab := config.Int("vocab_size"); vocab < 0 {
		diag.Raisef(diag.ShapeMismatch, nil,
			"tokenize vocab_size cannot be negative, got %d", vocab)
	}
	return shapes.MakeResolved(shapes.Int32, length)
}

// batchInfer prepends a batch axis of the configured size.
func batchInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	size := config.Int("size")
	if size <= 0 {
		diag.Raisef(diag.ShapeMismatch, inputs,
			"batch size must be positive, got %d", size)
	}
	input := a.ResolveShape(inputs[0])
	return shapes.ConcatenateDimensions(shapes.Make(input.DType, shapes.D(size)), input)
}

// normalizeInfer preserves the shape; it only applies to float samples.
func normalizeInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	input := a.ResolveShape(inputs[0])
	if !input.DType.IsFloat() {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"normalize needs float samples, got %s", input)
	}
	if std := config.Float("std"); std <= 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"normalize std must be positive, got %g", std)
	}
	return input
}

// passThroughInfer is shared by the steps that only affect the data stream,
// never the sample shape.
func passThroughInfer(a *unify.Arena, inputs []shapes.Shape, _ Config) shapes.Shape {
	return a.ResolveShape(inputs[0])
}

func registerSteps(r *Registry) {
	r.register(&Signature{
		Name:      "tokenize",
		NumInputs: 1,
		Options: []Option{
			{Key: "length", Kind: IntOption, Required: true},
			{Key: "vocab_size", Kind: IntOption, Default: ast.Int64(0)},
			{Key: "truncate", Kind: BoolOption, Default: ast.Bool(true)},
		},
		Infer: tokenizeInfer,
	})
	r.register(&Signature{
		Name:      BatchStep,
		NumInputs: 1,
		Options: []Option{
			{Key: "size", Kind: IntOption, Required: true},
			{Key: "drop_remainder", Kind: BoolOption, Default: ast.Bool(false)},
		},
		Infer: batchInfer,
	})
	r.register(&Signature{
		Name:      "normalize",
		NumInputs: 1,
		Options: []Option{
			{Key: "mean", Kind: FloatOption, Default: ast.Float64(0)},
			{Key: "std", Kind: FloatOption, Default: ast.Float64(1)},
		},
		Infer: normalizeInfer,
	})
	r.register(&Signature{
		Name:      "shuffle",
		NumInputs: 1,
		Options: []Option{
			{Key: "buffer", Kind: IntOption, Required: true},
			{Key: "seed", Kind: IntOption, Default: ast.Int64(0)},
		},
		Infer: passThroughInfer,
	})
	r.register(&Signature{
		Name:      "cache",
		NumInputs: 1,
		Infer:     passThroughInfer,
	})
	r.register(&Signature{
		Name:      "prefetch",
		NumInputs: 1,
		Options: []Option{
			{Key: "buffer", Kind: IntOption, Default: ast.Int64(1)},
		},
		Infer: passThroughInfer,
	})
}

// newBuiltins assembles the full built-in table. Called once at package
// initialization; the result is immutable afterwards.
func newBuiltins() *Registry {
	r := newRegistry()
	registerLayers(r)
	registerBinary(r)
	registerSteps(r)
	return r
}
