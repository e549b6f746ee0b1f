package checker

import (
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types"
	"github.com/NeuraLang/neuralang/types/shapes"
	"github.com/NeuraLang/neuralang/types/xslices"
	"github.com/NeuraLang/neuralang/unify"
)

// Closed sets of training options. These are names the runtime understands;
// anything else is rejected at check time rather than at launch.
var (
	knownOptimizers = types.SetWith("sgd", "momentum", "adam", "adamw", "rmsprop")
	knownLosses     = types.SetWith("cross_entropy", "mse", "mae", "huber")
	knownDistribute = types.SetWith("", "none", "mirrored", "data_parallel")
)

// checkTrain validates a train declaration against its (already checked)
// model and pipeline. It resolves the model output type and the pipeline
// sample/label types for the backend, and verifies the pipeline actually
// feeds the model.
func checkTrain(train *ast.TrainDecl, table *Table, checked map[string]*Checked) *Checked {
	bag := &diag.Bag{}
	file := func(d *diag.Diagnostic) {
		d.Declaration = train.Name
		bag.Add(d)
	}

	model, pipeline := table.Bind(train, bag)

	if train.Optimizer == "" {
		file(diag.Newf(diag.MissingConfigOption, nil, "train block requires an optimizer"))
	} else if !knownOptimizers.Has(train.Optimizer) {
		file(diag.Newf(diag.UnknownConfigOption, nil, "unknown optimizer %q (known: %s)",
			train.Optimizer, strings.Join(xslices.SortedKeys(knownOptimizers), ", ")))
	}
	if train.Loss == "" {
		file(diag.Newf(diag.MissingConfigOption, nil, "train block requires a loss"))
	} else if !knownLosses.Has(train.Loss) {
		file(diag.Newf(diag.UnknownConfigOption, nil, "unknown loss %q (known: %s)",
			train.Loss, strings.Join(xslices.SortedKeys(knownLosses), ", ")))
	}
	if !knownDistribute.Has(train.Distribute) {
		file(diag.Newf(diag.UnknownConfigOption, nil, "unknown distribute strategy %q", train.Distribute))
	}
	if train.Epochs < 1 {
		file(diag.Newf(diag.UnknownConfigOption, nil, "epochs must be >= 1, got %d", train.Epochs))
	}

	info := &TrainInfo{
		Model:      train.ModelRef,
		Pipeline:   train.PipelineRef,
		Optimizer:  train.Optimizer,
		Loss:       train.Loss,
		Epochs:     train.Epochs,
		Distribute: train.Distribute,
		Checkpoint: train.Checkpoint,
		Inspect:    train.Inspect,
	}

	var checkedModel, checkedPipeline *Checked
	if model != nil {
		checkedModel = checked[checkedKey(ast.KindModel, model.Name)]
		if checkedModel != nil && !checkedModel.Ok() {
			file(diag.Newf(diag.UnknownDeclaration, nil,
				"model %q did not check successfully; training cannot be validated", model.Name))
			checkedModel = nil
		}
	}
	if pipeline != nil {
		checkedPipeline = checked[checkedKey(ast.KindPipeline, pipeline.Name)]
		if checkedPipeline != nil && !checkedPipeline.Ok() {
			file(diag.Newf(diag.UnknownDeclaration, nil,
				"pipeline %q did not check successfully; training cannot be validated", pipeline.Name))
			checkedPipeline = nil
		}
	}

	if checkedModel != nil {
		info.ModelOutput = checkedModel.Output
	}
	if checkedPipeline != nil {
		info.SampleType = checkedPipeline.Output
		info.LabelType = checkedPipeline.Label
	}

	// The pipeline's batched sample type must feed the model's declared
	// input type. Loss/label compatibility itself is the runtime's concern;
	// this only guarantees both types exist and agree structurally.
	if checkedModel != nil && checkedPipeline != nil {
		arena := unify.New()
		caught := exceptions.TryCatch[*diag.Diagnostic](func() {
			arena.UnifyShapes(model.Input, checkedPipeline.Output)
		})
		if caught != nil {
			file(diag.Newf(diag.ShapeMismatch,
				[]shapes.Shape{model.Input, checkedPipeline.Output},
				"pipeline %q output %s does not feed model %q input %s: %s",
				pipeline.Name, checkedPipeline.Output, model.Name, model.Input, caught.Message))
		}
	}

	return &Checked{
		Name:       train.Name,
		Kind:       ast.KindTrain,
		StackCount: 1,
		Train:      info,
		Diags:      bag,
	}
}
