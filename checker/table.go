package checker

import (
	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
)

// Table collects every top-level declaration of a compilation unit and
// resolves cross-declaration references. Names are unique per declaration
// kind. After Collect returns, the table is read-only and can be shared
// across checking goroutines.
type Table struct {
	models    map[string]*ast.ModelDecl
	pipelines map[string]*ast.PipelineDecl
	trains    map[string]*ast.TrainDecl
}

// NewTable returns an empty declaration table.
func NewTable() *Table {
	return &Table{
		models:    make(map[string]*ast.ModelDecl),
		pipelines: make(map[string]*ast.PipelineDecl),
		trains:    make(map[string]*ast.TrainDecl),
	}
}

// Collect registers every declaration of the program, filing a
// DuplicateDeclaration for each same-kind name collision. Registration of
// the non-colliding declarations proceeds regardless, so later phases can
// still check them.
func (t *Table) Collect(program *ast.Program, bag *diag.Bag) {
	for _, model := range program.Models {
		if _, dup := t.models[model.Name]; dup {
			bag.Add(duplicate(ast.KindModel, model.Name))
			continue
		}
		t.models[model.Name] = model
	}
	for _, pipeline := range program.Pipelines {
		if _, dup := t.pipelines[pipeline.Name]; dup {
			bag.Add(duplicate(ast.KindPipeline, pipeline.Name))
			continue
		}
		t.pipelines[pipeline.Name] = pipeline
	}
	for _, train := range program.Trains {
		if _, dup := t.trains[train.Name]; dup {
			bag.Add(duplicate(ast.KindTrain, train.Name))
			continue
		}
		t.trains[train.Name] = train
	}
}

func duplicate(kind ast.DeclKind, name string) *diag.Diagnostic {
	d := diag.Newf(diag.DuplicateDeclaration, nil, "%s %q declared more than once", kind, name)
	d.Declaration = name
	return d
}

// Model resolves a model reference by name.
func (t *Table) Model(name string) (*ast.ModelDecl, *diag.Diagnostic) {
	if model, found := t.models[name]; found {
		return model, nil
	}
	return nil, diag.Newf(diag.UnknownDeclaration, nil, "model %q is not declared", name)
}

// Pipeline resolves a pipeline reference by name.
func (t *Table) Pipeline(name string) (*ast.PipelineDecl, *diag.Diagnostic) {
	if pipeline, found := t.pipelines[name]; found {
		return pipeline, nil
	}
	return nil, diag.Newf(diag.UnknownDeclaration, nil, "pipeline %q is not declared", name)
}

// Bind resolves a train declaration's name-based model and pipeline
// references to the concrete declarations. Both failures are filed, not just
// the first.
func (t *Table) Bind(train *ast.TrainDecl, bag *diag.Bag) (model *ast.ModelDecl, pipeline *ast.PipelineDecl) {
	model, errModel := t.Model(train.ModelRef)
	if errModel != nil {
		errModel.Declaration = train.Name
		bag.Add(errModel)
	}
	pipeline, errPipeline := t.Pipeline(train.PipelineRef)
	if errPipeline != nil {
		errPipeline.Declaration = train.Name
		bag.Add(errPipeline)
	}
	return
}
