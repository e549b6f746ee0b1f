package ops

import (
	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types/shapes"
	"github.com/NeuraLang/neuralang/unify"
)

// denseInfer replaces the trailing dimension of its input with `units`,
// preserving all leading dimensions.
func denseInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	input := inputs[0]
	if input.Rank() < 1 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"Dense needs an input of rank >= 1, got %s", input)
	}
	units := config.Int("units")
	if units <= 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"Dense units must be positive, got %d", units)
	}
	return a.ResolveShape(input).WithTrailing(shapes.D(units))
}

// conv2DInfer expects channels-last inputs `[batch, height, width, channels]`
// and replaces the channels axis with `filters`. Spatial axes shrink
// according to kernel_size, stride and padding; a symbolic spatial axis stays
// symbolic under `padding=same, stride=1` and degrades to a wildcard
// otherwise.
func conv2DInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	input := a.ResolveShape(inputs[0])
	if input.Rank() != 4 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"Conv2D needs a rank-4 input [batch, height, width, channels], got %s", input)
	}
	filters := config.Int("filters")
	kernel := config.Int("kernel_size")
	stride := config.Int("stride")
	padding := config.Str("padding")
	if filters <= 0 || kernel <= 0 || stride <= 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"Conv2D filters, kernel_size and stride must be positive, got filters=%d kernel_size=%d stride=%d",
			filters, kernel, stride)
	}
	if padding != "same" && padding != "valid" {
		diag.Raisef(diag.UnknownConfigOption, nil,
			`Conv2D padding must be "same" or "valid", got %q`, padding)
	}

	spatial := func(dim shapes.Dim) shapes.Dim {
		if !dim.IsConcrete() {
			if padding == "same" && stride == 1 {
				return dim
			}
			return shapes.Wild()
		}
		if padding == "same" {
			return shapes.D((dim.Value + stride - 1) / stride)
		}
		if dim.Value < kernel {
			diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
				"Conv2D valid padding needs spatial dimension >= kernel_size, got %d < %d", dim.Value, kernel)
		}
		return shapes.D((dim.Value-kernel)/stride + 1)
	}
	out := input.Clone()
	out.Dimensions[1] = spatial(input.Dim(1))
	out.Dimensions[2] = spatial(input.Dim(2))
	out.Dimensions[3] = shapes.D(filters)
	return out
}

// multiHeadAttentionInfer preserves the input shape. The trailing (embedding)
// dimension must be evenly divisible by `heads`; a still-symbolic embedding
// dimension is accepted, since divisibility cannot be decided before the
// variable resolves.
func multiHeadAttentionInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	input := a.ResolveShape(inputs[0])
	if input.Rank() < 2 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"MultiHeadAttention needs an input of rank >= 2 with a trailing embedding axis, got %s", input)
	}
	heads := config.Int("heads")
	if heads <= 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"MultiHeadAttention heads must be positive, got %d", heads)
	}
	if embed := input.Dim(-1); embed.IsConcrete() && embed.Value%heads != 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"MultiHeadAttention embedding dimension %d is not divisible by heads=%d", embed.Value, heads)
	}
	return input
}

// feedForwardInfer expands the trailing dimension to `hidden` and projects
// back, so the shape is preserved end to end.
func feedForwardInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	input := a.ResolveShape(inputs[0])
	if input.Rank() < 1 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"FeedForward needs an input of rank >= 1, got %s", input)
	}
	if hidden := config.Int("hidden"); hidden <= 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"FeedForward hidden must be positive, got %d", hidden)
	}
	return input
}

// layerNormInfer preserves the shape; normalization is a numeric concern.
func layerNormInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	input := a.ResolveShape(inputs[0])
	if !input.DType.IsFloat() {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"LayerNorm needs a float input, got %s", input)
	}
	if epsilon := config.Float("epsilon"); epsilon <= 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"LayerNorm epsilon must be positive, got %g", epsilon)
	}
	return input
}

// dropoutInfer preserves the shape.
func dropoutInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	if rate := config.Float("rate"); rate < 0 || rate >= 1 {
		diag.Raisef(diag.ShapeMismatch, inputs,
			"Dropout rate must be in [0, 1), got %g", rate)
	}
	return a.ResolveShape(inputs[0])
}

// embeddingInfer maps integer token indices to learned vectors: the output
// appends an embedding axis of size `dim` and carries Float32 values.
func embeddingInfer(a *unify.Arena, inputs []shapes.Shape, config Config) shapes.Shape {
	input := a.ResolveShape(inputs[0])
	if !input.DType.IsInt() {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"Embedding needs integer token indices, got %s", input)
	}
	vocab := config.Int("vocab_size")
	dim := config.Int("dim")
	if vocab <= 0 || dim <= 0 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"Embedding vocab_size and dim must be positive, got vocab_size=%d dim=%d", vocab, dim)
	}
	out := shapes.Shape{DType: shapes.Float32, Dimensions: make([]shapes.Dim, 0, input.Rank()+1)}
	out.Dimensions = append(out.Dimensions, input.Dimensions...)
	out.Dimensions = append(out.Dimensions, shapes.D(dim))
	return out
}

// flattenInfer collapses every axis but the leading one. The collapsed size
// is only computable when the non-leading axes are concrete; otherwise the
// trailing dimension degrades to a wildcard.
func flattenInfer(a *unify.Arena, inputs []shapes.Shape, _ Config) shapes.Shape {
	input := a.ResolveShape(inputs[0])
	if input.Rank() < 2 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
			"Flatten needs an input of rank >= 2, got %s", input)
	}
	flat := shapes.D(1)
	for _, dim := range input.Dimensions[1:] {
		if !dim.IsConcrete() {
			flat = shapes.Wild()
			break
		}
		flat = shapes.D(flat.Value * dim.Value)
	}
	return shapes.Make(input.DType, input.Dim(0), flat)
}

// activationInfer is shared by relu, gelu, sigmoid, tanh and softmax: float
// input, shape preserved.
func activationInfer(name string) TransferFn {
	return func(a *unify.Arena, inputs []shapes.Shape, _ Config) shapes.Shape {
		input := a.ResolveShape(inputs[0])
		if !input.DType.IsFloat() {
			diag.Raisef(diag.ShapeMismatch, []shapes.Shape{input},
				"%s needs a float input, got %s", name, input)
		}
		return input
	}
}

func registerLayers(r *Registry) {
	r.register(&Signature{
		Name:      "Dense",
		NumInputs: 1,
		Options: []Option{
			{Key: "units", Kind: IntOption, Required: true},
			{Key: "activation", Kind: StringOption, Default: ast.String("linear")},
			{Key: "use_bias", Kind: BoolOption, Default: ast.Bool(true)},
		},
		Infer: denseInfer,
	})
	r.register(&Signature{
		Name:      "Conv2D",
		NumInputs: 1,
		Options: []Option{
			{Key: "filters", Kind: IntOption, Required: true},
			{Key: "kernel_size", Kind: IntOption, Default: ast.Int64(3)},
			{Key: "stride", Kind: IntOption, Default: ast.Int64(1)},
			{Key: "padding", Kind: StringOption, Default: ast.String("same")},
			{Key: "activation", Kind: StringOption, Default: ast.String("linear")},
		},
		Infer: conv2DInfer,
	})
	r.register(&Signature{
		Name:      "MultiHeadAttention",
		NumInputs: 1,
		Options: []Option{
			{Key: "heads", Kind: IntOption, Required: true},
			{Key: "dropout", Kind: FloatOption, Default: ast.Float64(0)},
		},
		Infer: multiHeadAttentionInfer,
	})
	r.register(&Signature{
		Name:      "FeedForward",
		NumInputs: 1,
		Options: []Option{
			{Key: "hidden", Kind: IntOption, Required: true},
			{Key: "activation", Kind: StringOption, Default: ast.String("gelu")},
		},
		Infer: feedForwardInfer,
	})
	r.register(&Signature{
		Name:      "LayerNorm",
		NumInputs: 1,
		Options: []Option{
			{Key: "epsilon", Kind: FloatOption, Default: ast.Float64(1e-5)},
		},
		Infer: layerNormInfer,
	})
	r.register(&Signature{
		Name:      "Dropout",
		NumInputs: 1,
		Options: []Option{
			{Key: "rate", Kind: FloatOption, Required: true},
		},
		Infer: dropoutInfer,
	})
	r.register(&Signature{
		Name:      "Embedding",
		NumInputs: 1,
		Options: []Option{
			{Key: "vocab_size", Kind: IntOption, Required: true},
			{Key: "dim", Kind: IntOption, Required: true},
		},
		Infer: embeddingInfer,
	})
	r.register(&Signature{
		Name:      "Flatten",
		NumInputs: 1,
		Infer:     flattenInfer,
	})
	for _, name := range []string{"relu", "gelu", "sigmoid", "tanh"} {
		r.register(&Signature{Name: name, NumInputs: 1, Infer: activationInfer(name)})
	}
	r.register(&Signature{
		Name:      "softmax",
		NumInputs: 1,
		Options: []Option{
			{Key: "axis", Kind: IntOption, Default: ast.Int64(-1)},
		},
		Infer: activationInfer("softmax"),
	})
}
