package checker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types/shapes"
)

func config(pairs ...any) map[string]ast.Literal {
	out := make(map[string]ast.Literal, len(pairs)/2)
	for ii := 0; ii < len(pairs); ii += 2 {
		key := pairs[ii].(string)
		switch v := pairs[ii+1].(type) {
		case int:
			out[key] = ast.Int64(int64(v))
		case float64:
			out[key] = ast.Float64(v)
		case string:
			out[key] = ast.String(v)
		case bool:
			out[key] = ast.Bool(v)
		default:
			panic(fmt.Sprintf("config: unsupported value %v", v))
		}
	}
	return out
}

// kinds collects the diagnostic kinds filed for one checked declaration.
func kinds(c *Checked) []diag.Kind {
	var out []diag.Kind
	for _, d := range c.Diags.All() {
		out = append(out, d.Kind)
	}
	return out
}

func TestCheckTransformerModel(t *testing.T) {
	model := &ast.ModelDecl{
		Name:  "encoder",
		Input: shapes.Make(shapes.Int32, shapes.Sym("batch"), shapes.D(128)),
		Open:  []string{"batch"},
		Layers: []ast.LayerCall{
			{Name: "Embedding", Config: config("vocab_size", 30000, "dim", 512)},
			{Name: "MultiHeadAttention", Config: config("heads", 8)},
			{Name: "LayerNorm"},
			{Name: "FeedForward", Config: config("hidden", 2048)},
			{Name: "Dense", Config: config("units", 10)},
		},
	}
	result := New().Check(&ast.Program{Models: []*ast.ModelDecl{model}})
	require.True(t, result.Ok(), "diags: %v", result.Diags.All())

	checked := result.Decl(ast.KindModel, "encoder")
	require.NotNil(t, checked)
	assert.Equal(t, 1, checked.StackCount)
	want := shapes.Make(shapes.Float32, shapes.Sym("batch"), shapes.D(128), shapes.D(10))
	assert.True(t, checked.Output.Equal(want), "got %s", checked.Output)

	// Intermediate stage types are recorded with final bindings substituted.
	require.Len(t, checked.Stages, 5)
	embedded := shapes.Make(shapes.Float32, shapes.Sym("batch"), shapes.D(128), shapes.D(512))
	assert.True(t, checked.Stages[0].Output.Equal(embedded), "got %s", checked.Stages[0].Output)
	assert.True(t, checked.Stages[1].Input.Equal(embedded))

	// Defaults from the schema land in the resolved stage config.
	assert.Equal(t, ast.Float64(0), checked.Stages[1].Config["dropout"])
}

func TestCheckModelStacking(t *testing.T) {
	block := []ast.LayerCall{
		{Name: "MultiHeadAttention", Config: config("heads", 8)},
		{Name: "FeedForward", Config: config("hidden", 2048)},
		{Name: "LayerNorm"},
	}

	// A shape-preserving block is a valid fixpoint; the stack count is carried
	// through for lowering, the walk itself stays bounded.
	model := &ast.ModelDecl{
		Name:   "deep",
		Input:  shapes.MakeResolved(shapes.Float32, 32, 128, 512),
		Layers: block,
		Stack:  12,
	}
	result := New().Check(&ast.Program{Models: []*ast.ModelDecl{model}})
	require.True(t, result.Ok(), "diags: %v", result.Diags.All())
	checked := result.Decl(ast.KindModel, "deep")
	assert.Equal(t, 12, checked.StackCount)
	assert.True(t, checked.Output.Equal(model.Input))

	// A block that changes the trailing dimension cannot repeat.
	bad := &ast.ModelDecl{
		Name:   "shrinking",
		Input:  shapes.MakeResolved(shapes.Float32, 32, 512),
		Layers: []ast.LayerCall{{Name: "Dense", Config: config("units", 256)}},
		Stack:  3,
	}
	result = New().Check(&ast.Program{Models: []*ast.ModelDecl{bad}})
	checked = result.Decl(ast.KindModel, "shrinking")
	require.False(t, checked.Ok())
	assert.Contains(t, kinds(checked), diag.StackingFixpointViolation)
}

func TestCheckModelDeclaredVsInferred(t *testing.T) {
	annotated := shapes.MakeResolved(shapes.Float32, 64, 32)
	model := &ast.ModelDecl{
		Name:  "annotated",
		Input: shapes.MakeResolved(shapes.Float32, 64, 784),
		Layers: []ast.LayerCall{
			{Name: "Dense", Config: config("units", 64), Output: &annotated},
			{Name: "relu"},
		},
	}
	result := New().Check(&ast.Program{Models: []*ast.ModelDecl{model}})
	checked := result.Decl(ast.KindModel, "annotated")
	require.False(t, checked.Ok())
	require.Equal(t, 1, checked.Diags.Len())
	d := checked.Diags.All()[0]
	assert.Equal(t, diag.DeclaredVsInferredMismatch, d.Kind)
	assert.Equal(t, "annotated", d.Declaration)
	assert.Equal(t, 0, d.StageIndex)
	require.Len(t, d.Shapes, 2)

	// Recovery carries the annotation forward: the relu stage was still
	// checked against the declared shape.
	assert.True(t, checked.Stages[1].Input.Equal(annotated))
}

func TestCheckModelErrorRecovery(t *testing.T) {
	// Three independent mistakes in one declaration must surface in one pass.
	model := &ast.ModelDecl{
		Name:  "buggy",
		Input: shapes.MakeResolved(shapes.Float32, 64, 784),
		Layers: []ast.LayerCall{
			{Name: "Dens", Config: config("units", 128)},              // typo
			{Name: "Dense", Config: config("units", 128, "uints", 1)}, // unknown key
			{Name: "Dropout"},                                         // missing required
			{Name: "Dense", Config: config("units", 10)},              // fine
		},
	}
	result := New().Check(&ast.Program{Models: []*ast.ModelDecl{model}})
	checked := result.Decl(ast.KindModel, "buggy")
	require.Equal(t, 3, checked.Diags.Len())
	assert.Equal(t, []diag.Kind{
		diag.UnknownDeclaration,
		diag.UnknownConfigOption,
		diag.MissingConfigOption,
	}, kinds(checked))
	for ii, d := range checked.Diags.All() {
		assert.Equal(t, ii, d.StageIndex)
	}

	// The last stage still checked against the recovered input.
	assert.True(t, checked.Output.Equal(shapes.MakeResolved(shapes.Float32, 64, 10)))
}

func TestCheckModelUnresolvedVariable(t *testing.T) {
	model := &ast.ModelDecl{
		Name:   "generic",
		Input:  shapes.Make(shapes.Float32, shapes.Sym("batch"), shapes.D(784)),
		Layers: []ast.LayerCall{{Name: "Dense", Config: config("units", 10)}},
	}

	result := New().Check(&ast.Program{Models: []*ast.ModelDecl{model}})
	checked := result.Decl(ast.KindModel, "generic")
	require.False(t, checked.Ok())
	assert.Equal(t, []diag.Kind{diag.UnresolvedDimensionVariable}, kinds(checked))

	// Declaring the variable open makes the same model legal.
	model.Open = []string{"batch"}
	result = New().Check(&ast.Program{Models: []*ast.ModelDecl{model}})
	assert.True(t, result.Ok(), "diags: %v", result.Diags.All())
}

func TestCheckPipeline(t *testing.T) {
	label := shapes.MakeResolved(shapes.Int32)
	pipeline := &ast.PipelineDecl{
		Name:   "mnist",
		Sample: shapes.MakeResolved(shapes.Float32, 28, 28, 1),
		Label:  &label,
		Steps: []ast.StepCall{
			{Name: "normalize", Config: config("mean", 0.1307, "std", 0.3081)},
			{Name: "shuffle", Config: config("buffer", 10000)},
			{Name: "batch", Config: config("size", 64)},
			{Name: "prefetch"},
		},
	}
	result := New().Check(&ast.Program{Pipelines: []*ast.PipelineDecl{pipeline}})
	require.True(t, result.Ok(), "diags: %v", result.Diags.All())

	checked := result.Decl(ast.KindPipeline, "mnist")
	assert.True(t, checked.Output.Equal(shapes.MakeResolved(shapes.Float32, 64, 28, 28, 1)),
		"got %s", checked.Output)
	// The batch step applies to the label too.
	assert.True(t, checked.Label.Equal(shapes.MakeResolved(shapes.Int32, 64)), "got %s", checked.Label)
}

func TestCheckPipelineTokenize(t *testing.T) {
	pipeline := &ast.PipelineDecl{
		Name:   "text",
		Sample: shapes.MakeResolved(shapes.Int8),
		Steps: []ast.StepCall{
			{Name: "tokenize", Config: config("length", 128, "vocab_size", 30000)},
			{Name: "batch", Config: config("size", 32)},
		},
	}
	result := New().Check(&ast.Program{Pipelines: []*ast.PipelineDecl{pipeline}})
	require.True(t, result.Ok(), "diags: %v", result.Diags.All())
	checked := result.Decl(ast.KindPipeline, "text")
	assert.True(t, checked.Output.Equal(shapes.MakeResolved(shapes.Int32, 32, 128)), "got %s", checked.Output)
	assert.False(t, checked.Label.Ok())
}

func TestCheckDuplicateDeclaration(t *testing.T) {
	program := &ast.Program{
		Models: []*ast.ModelDecl{
			{
				Name:   "net",
				Input:  shapes.MakeResolved(shapes.Float32, 1, 4),
				Layers: []ast.LayerCall{{Name: "Dense", Config: config("units", 2)}},
			},
			{
				Name:   "net",
				Input:  shapes.MakeResolved(shapes.Float32, 1, 8),
				Layers: []ast.LayerCall{{Name: "Dense", Config: config("units", 3)}},
			},
		},
	}
	result := New().Check(program)
	require.False(t, result.Ok())
	require.Equal(t, 1, result.Diags.Len())
	assert.Equal(t, diag.DuplicateDeclaration, result.Diags.All()[0].Kind)

	// Only the first declaration was checked; the shadowed one is skipped.
	require.Len(t, result.Decls, 1)
	assert.True(t, result.Decls[0].Output.Equal(shapes.MakeResolved(shapes.Float32, 1, 2)))
}

func trainProgram() *ast.Program {
	label := shapes.MakeResolved(shapes.Int32)
	return &ast.Program{
		Models: []*ast.ModelDecl{{
			Name:  "classifier",
			Input: shapes.MakeResolved(shapes.Float32, 64, 784),
			Layers: []ast.LayerCall{
				{Name: "Dense", Config: config("units", 128)},
				{Name: "relu"},
				{Name: "Dense", Config: config("units", 10)},
			},
		}},
		Pipelines: []*ast.PipelineDecl{{
			Name:   "digits",
			Sample: shapes.MakeResolved(shapes.Float32, 784),
			Label:  &label,
			Steps: []ast.StepCall{
				{Name: "normalize", Config: config("std", 0.5)},
				{Name: "batch", Config: config("size", 64)},
			},
		}},
		Trains: []*ast.TrainDecl{{
			Name:        "run1",
			ModelRef:    "classifier",
			PipelineRef: "digits",
			Optimizer:   "adamw",
			Loss:        "cross_entropy",
			Epochs:      10,
		}},
	}
}

func TestCheckTrain(t *testing.T) {
	result := New().Check(trainProgram())
	require.True(t, result.Ok(), "diags: %v", result.Diags.All())

	checked := result.Decl(ast.KindTrain, "run1")
	require.NotNil(t, checked)
	info := checked.Train
	require.NotNil(t, info)
	assert.Equal(t, "classifier", info.Model)
	assert.Equal(t, "adamw", info.Optimizer)
	assert.Equal(t, 10, info.Epochs)
	assert.True(t, info.ModelOutput.Equal(shapes.MakeResolved(shapes.Float32, 64, 10)))
	assert.True(t, info.SampleType.Equal(shapes.MakeResolved(shapes.Float32, 64, 784)))
	assert.True(t, info.LabelType.Equal(shapes.MakeResolved(shapes.Int32, 64)))
}

func TestCheckTrainBadOptions(t *testing.T) {
	program := trainProgram()
	program.Trains[0].Optimizer = "adamx"
	program.Trains[0].Loss = ""
	program.Trains[0].Epochs = 0
	program.Trains[0].Distribute = "sharded"

	result := New().Check(program)
	checked := result.Decl(ast.KindTrain, "run1")
	require.False(t, checked.Ok())
	assert.ElementsMatch(t, []diag.Kind{
		diag.UnknownConfigOption, // optimizer
		diag.MissingConfigOption, // loss
		diag.UnknownConfigOption, // distribute
		diag.UnknownConfigOption, // epochs
	}, kinds(checked))
}

func TestCheckTrainUnknownReferences(t *testing.T) {
	program := trainProgram()
	program.Trains[0].ModelRef = "nope"
	program.Trains[0].PipelineRef = "missing"

	result := New().Check(program)
	checked := result.Decl(ast.KindTrain, "run1")
	require.False(t, checked.Ok())
	// Both dangling references are filed, not just the first.
	assert.Equal(t, []diag.Kind{diag.UnknownDeclaration, diag.UnknownDeclaration}, kinds(checked))
}

func TestCheckTrainPipelineDoesNotFeedModel(t *testing.T) {
	program := trainProgram()
	program.Pipelines[0].Steps[1].Config = config("size", 32) // model declares batch 64

	result := New().Check(program)
	checked := result.Decl(ast.KindTrain, "run1")
	require.False(t, checked.Ok())
	require.Equal(t, 1, checked.Diags.Len())
	d := checked.Diags.All()[0]
	assert.Equal(t, diag.ShapeMismatch, d.Kind)
	require.Len(t, d.Shapes, 2)
}

func TestCheckTrainAgainstBrokenModel(t *testing.T) {
	program := trainProgram()
	program.Models[0].Layers[0].Config = config("units", 128, "typo", 1)

	result := New().Check(program)
	checked := result.Decl(ast.KindTrain, "run1")
	require.False(t, checked.Ok())
	assert.Contains(t, kinds(checked), diag.UnknownDeclaration)
	// No model output type is reported for a declaration that failed.
	assert.False(t, checked.Train.ModelOutput.Ok())
}

func TestCheckParallelDeterminism(t *testing.T) {
	// Many independent declarations; the result order must match the input
	// order on every run regardless of goroutine scheduling.
	program := &ast.Program{}
	for ii := 0; ii < 50; ii++ {
		program.Models = append(program.Models, &ast.ModelDecl{
			Name:   fmt.Sprintf("model%02d", ii),
			Input:  shapes.MakeResolved(shapes.Float32, 8, 16),
			Layers: []ast.LayerCall{{Name: "Dense", Config: config("units", ii+1)}},
		})
	}
	first := New().Check(program)
	second := New().SetMaxParallelism(2).Check(program)
	require.Len(t, first.Decls, 50)
	for ii := range first.Decls {
		assert.Equal(t, fmt.Sprintf("model%02d", ii), first.Decls[ii].Name)
		assert.Equal(t, second.Decls[ii].Name, first.Decls[ii].Name)
		assert.True(t, first.Decls[ii].Output.Equal(shapes.MakeResolved(shapes.Float32, 8, ii+1)))
	}
}
