// Package checker implements the shape and type checking of NeuraLang
// programs: it collects declarations, resolves cross-declaration references,
// drives the per-stage shape transfer functions over each model and pipeline,
// and reports structured diagnostics.
//
// Checking one declaration is single-threaded, synchronous and owns its own
// unification arena; independent declarations have no data dependency beyond
// the read-only declaration table and operator registry, so they are checked
// concurrently. Results are slotted by input position, making the output
// deterministic regardless of scheduling.
package checker

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/internal/workpool"
	"github.com/NeuraLang/neuralang/ops"
)

// Checker checks whole programs. The zero value is not usable; create one
// with New.
type Checker struct {
	registry *ops.Registry
	pool     *workpool.Pool
}

// New returns a Checker over the built-in operator registry.
func New() *Checker {
	return &Checker{registry: ops.Builtins(), pool: workpool.New()}
}

// SetMaxParallelism limits (or disables, with 0) the parallel checking of
// independent declarations. Call before Check.
func (c *Checker) SetMaxParallelism(maxParallelism int) *Checker {
	c.pool.SetMaxParallelism(maxParallelism)
	return c
}

// Result is the outcome of checking one program: every checked declaration
// in input order (models, then pipelines, then trains) plus all diagnostics.
type Result struct {
	Decls []*Checked
	Diags diag.Bag
}

// Ok returns whether the whole program checked without errors.
func (r *Result) Ok() bool { return r.Diags.Empty() }

// Decl returns the checked declaration of the given kind and name, or nil.
func (r *Result) Decl(kind ast.DeclKind, name string) *Checked {
	for _, c := range r.Decls {
		if c.Kind == kind && c.Name == name {
			return c
		}
	}
	return nil
}

func checkedKey(kind ast.DeclKind, name string) string {
	return fmt.Sprintf("%s/%s", kind, name)
}

// Check checks every declaration of the program. Models and pipelines are
// independent of each other and are checked in parallel; train declarations
// follow, since they read the checked types of what they reference.
func (c *Checker) Check(program *ast.Program) *Result {
	result := &Result{}
	table := NewTable()
	table.Collect(program, &result.Diags)

	type job struct {
		slot int
		run  func() *Checked
	}
	var jobs []job
	slots := 0

	// Shadowed duplicates are skipped: their DuplicateDeclaration was filed
	// during collection and only the registered declaration is checked.
	for _, model := range program.Models {
		if table.models[model.Name] != model {
			continue
		}
		model := model
		jobs = append(jobs, job{slot: slots, run: func() *Checked {
			return checkModel(c.registry, model)
		}})
		slots++
	}
	for _, pipeline := range program.Pipelines {
		if table.pipelines[pipeline.Name] != pipeline {
			continue
		}
		pipeline := pipeline
		jobs = append(jobs, job{slot: slots, run: func() *Checked {
			return checkPipeline(c.registry, pipeline)
		}})
		slots++
	}

	checked := make([]*Checked, slots)
	c.pool.ForEach(len(jobs), func(ii int) {
		checked[jobs[ii].slot] = jobs[ii].run()
	})

	byKey := make(map[string]*Checked, len(checked))
	for _, decl := range checked {
		byKey[checkedKey(decl.Kind, decl.Name)] = decl
	}

	var trains []*Checked
	var trainDecls []*ast.TrainDecl
	for _, train := range program.Trains {
		if table.trains[train.Name] != train {
			continue
		}
		trainDecls = append(trainDecls, train)
	}
	trains = make([]*Checked, len(trainDecls))
	c.pool.ForEach(len(trainDecls), func(ii int) {
		trains[ii] = checkTrain(trainDecls[ii], table, byKey)
	})

	result.Decls = append(checked, trains...)
	for _, decl := range result.Decls {
		if !decl.Ok() {
			klog.V(1).Infof("%s %q failed with %d error(s)", decl.Kind, decl.Name, decl.Diags.Len())
		}
		result.Diags.AddAll(decl.Diags)
	}
	return result
}
