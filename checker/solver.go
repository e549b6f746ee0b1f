package checker

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/NeuraLang/neuralang/ast"
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/ops"
	"github.com/NeuraLang/neuralang/types/shapes"
	"github.com/NeuraLang/neuralang/types/xslices"
	"github.com/NeuraLang/neuralang/unify"
)

// Stage is one checked layer or step instance: the operator, its resolved
// input and output types and its resolved configuration (defaults applied).
type Stage struct {
	Index  int
	Op     string
	Input  shapes.Shape
	Output shapes.Shape
	Config map[string]ast.Literal
}

// Shape implements shapes.HasShape with the stage's output type.
func (s Stage) Shape() shapes.Shape { return s.Output }

// TrainInfo is the checked form of a train declaration: the resolved types
// the backend needs to validate loss-function compatibility, plus the
// training options carried through verbatim.
type TrainInfo struct {
	Model       string
	Pipeline    string
	ModelOutput shapes.Shape
	SampleType  shapes.Shape
	LabelType   shapes.Shape
	Optimizer   string
	Loss        string
	Epochs      int
	Distribute  string
	Checkpoint  string
	Inspect     bool
}

// Checked is the result of checking one declaration. When Ok() is false the
// stages and shapes are best-effort only and must not be lowered.
type Checked struct {
	Name   string
	Kind   ast.DeclKind
	Stages []Stage

	// Output is the model's final output type, or the pipeline's batched
	// sample type.
	Output shapes.Shape

	// Label is the pipeline's batched label type; invalid if the pipeline
	// declares no labels. Unused for models.
	Label shapes.Shape

	// StackCount is the number of times the stage sequence repeats (>= 1).
	StackCount int

	// Train is set for train declarations only.
	Train *TrainInfo

	Diags *diag.Bag
}

// Ok returns whether the declaration checked without errors.
func (c *Checked) Ok() bool { return c.Diags.Empty() }

// solver walks one declaration's stages, accumulating diagnostics and
// unifying dimension variables on the declaration's own arena.
type solver struct {
	registry *ops.Registry
	arena    *unify.Arena
	bag      *diag.Bag
	decl     string
}

// file locates the diagnostic at the given stage and records it.
func (s *solver) file(d *diag.Diagnostic, stageIndex int) {
	d.Declaration = s.decl
	if d.StageIndex < 0 {
		d.StageIndex = stageIndex
	}
	s.bag.Add(d)
}

// catch runs fn and files any diagnostic it raises, returning whether fn
// completed. Panics other than *diag.Diagnostic (engine bugs) propagate.
func (s *solver) catch(stageIndex int, fn func()) bool {
	caught := exceptions.TryCatch[*diag.Diagnostic](fn)
	if caught != nil {
		s.file(caught, stageIndex)
		return false
	}
	return true
}

// stage checks one layer/step call against the current input type and
// returns the type carried forward. On failure the error is filed and the
// best available type (explicit annotation, else the unchanged input) is
// carried so the remaining stages still get checked.
func (s *solver) stage(index int, call ast.LayerCall, input shapes.Shape) Stage {
	out := Stage{Index: index, Op: call.Name, Input: input}
	if call.Output != nil {
		s.arena.Observe(*call.Output)
	}
	fallback := input
	if call.Output != nil {
		fallback = *call.Output
	}

	sig, found := s.registry.Get(call.Name)
	if !found {
		s.file(diag.Newf(diag.UnknownDeclaration, nil, "unknown layer or step %q", call.Name), index)
		out.Output = fallback
		return out
	}

	var config ops.Config
	if !s.catch(index, func() { config = sig.ValidateConfig(call.Config) }) {
		out.Output = fallback
		return out
	}
	out.Config = config.Values()

	var inferred shapes.Shape
	if !s.catch(index, func() { inferred = sig.Infer(s.arena, []shapes.Shape{input}, config) }) {
		out.Output = fallback
		return out
	}

	if call.Output != nil {
		declared := *call.Output
		merged := inferred
		ok := s.catch(index, func() { merged = s.arena.UnifyShapes(declared, inferred) })
		if !ok {
			// Re-file with the dedicated kind; the mismatch itself was
			// already recorded by catch, so replace it in place.
			last := xslices.Last(s.bag.All())
			last.Kind = diag.DeclaredVsInferredMismatch
			last.Shapes = []shapes.Shape{declared, inferred}
			out.Output = declared
			return out
		}
		out.Output = merged
		klog.V(2).Infof("%s stage #%d %s: %s -> %s (declared %s)", s.decl, index, call.Name, input, merged, declared)
		return out
	}

	out.Output = inferred
	klog.V(2).Infof("%s stage #%d %s: %s -> %s", s.decl, index, call.Name, input, inferred)
	return out
}

// walk checks a stage sequence left to right, threading the output of each
// stage into the next. The walk is strictly linear; unification makes
// monotonic progress, so termination is immediate.
func (s *solver) walk(calls []ast.LayerCall, input shapes.Shape) (shapes.Shape, []Stage) {
	stages := make([]Stage, 0, len(calls))
	current := input
	for index, call := range calls {
		st := s.stage(index, call, current)
		stages = append(stages, st)
		current = st.Output
	}
	return current, stages
}

// reportUnresolved files one UnresolvedDimensionVariable per variable class
// left unbound and not declared open.
func (s *solver) reportUnresolved() {
	for _, name := range s.arena.Unresolved() {
		s.file(diag.Newf(diag.UnresolvedDimensionVariable, nil,
			"dimension variable %q was never resolved; bind it or declare it open", name), -1)
	}
}

// resolveStages substitutes final bindings into the recorded stage types:
// a variable may have been bound only by a later stage.
func (s *solver) resolveStages(stages []Stage) {
	for ii := range stages {
		stages[ii].Input = s.arena.ResolveShape(stages[ii].Input)
		stages[ii].Output = s.arena.ResolveShape(stages[ii].Output)
	}
}

// checkModel checks one model declaration: a single linear walk, plus the
// bounded symbolic double-pass that verifies the stacking fixpoint when
// `stack: N` is present. The walk never repeats N times, so checking cost is
// independent of N.
func checkModel(registry *ops.Registry, model *ast.ModelDecl) *Checked {
	bag := &diag.Bag{}
	arena := unify.New()
	for _, name := range model.Open {
		arena.MarkOpen(name)
	}
	arena.Observe(model.Input)

	s := &solver{registry: registry, arena: arena, bag: bag, decl: model.Name}
	output, stages := s.walk(model.Layers, model.Input)

	stackCount := max(model.Stack, 1)
	if model.Stack > 1 && bag.Empty() {
		in1 := arena.ResolveShape(model.Input)
		out1 := arena.ResolveShape(output)
		if !out1.Equal(in1) {
			s.file(diag.Newf(diag.StackingFixpointViolation, []shapes.Shape{in1, out1},
				"stack: %d requires the block output type to equal its input type", model.Stack), -1)
		} else {
			// Second symbolic pass: feeding the block its own output must be
			// a fixed point as well, or repetition is not well-typed.
			pass2 := &solver{registry: registry, arena: arena, bag: &diag.Bag{}, decl: model.Name}
			output2, _ := pass2.walk(model.Layers, out1)
			bag.AddAll(pass2.bag)
			out2 := arena.ResolveShape(output2)
			if bag.Empty() && !out2.Equal(out1) {
				s.file(diag.Newf(diag.StackingFixpointViolation, []shapes.Shape{out1, out2},
					"stack: %d block output drifts between passes", model.Stack), -1)
			}
		}
	}

	s.reportUnresolved()
	s.resolveStages(stages)
	output = arena.ResolveShape(output)
	arena.Freeze()

	return &Checked{
		Name:       model.Name,
		Kind:       ast.KindModel,
		Stages:     stages,
		Output:     output,
		StackCount: stackCount,
		Diags:      bag,
	}
}

// checkPipeline checks one pipeline declaration. Steps transform the sample
// type; the batch step additionally applies to the label type, so samples
// and labels stay batched together.
func checkPipeline(registry *ops.Registry, pipeline *ast.PipelineDecl) *Checked {
	bag := &diag.Bag{}
	arena := unify.New()
	for _, name := range pipeline.Open {
		arena.MarkOpen(name)
	}
	arena.Observe(pipeline.Sample)
	label := shapes.Invalid()
	if pipeline.Label != nil {
		label = *pipeline.Label
		arena.Observe(label)
	}

	s := &solver{registry: registry, arena: arena, bag: bag, decl: pipeline.Name}
	stages := make([]Stage, 0, len(pipeline.Steps))
	sample := pipeline.Sample
	for index, step := range pipeline.Steps {
		st := s.stage(index, step, sample)
		stages = append(stages, st)
		sample = st.Output

		if step.Name == ops.BatchStep && label.Ok() && st.Config != nil {
			sig, _ := registry.Get(ops.BatchStep)
			labelIn := label
			s.catch(index, func() {
				label = sig.Infer(arena, []shapes.Shape{labelIn}, sig.ValidateConfig(step.Config))
			})
		}
	}

	s.reportUnresolved()
	s.resolveStages(stages)
	sample = arena.ResolveShape(sample)
	if label.Ok() {
		label = arena.ResolveShape(label)
	}
	arena.Freeze()

	return &Checked{
		Name:       pipeline.Name,
		Kind:       ast.KindPipeline,
		Stages:     stages,
		Output:     sample,
		Label:      label,
		StackCount: 1,
		Diags:      bag,
	}
}
