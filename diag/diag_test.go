package diag

import (
	"encoding/json"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeuraLang/neuralang/types/shapes"
)

func TestDiagnosticError(t *testing.T) {
	d := Newf(ShapeMismatch,
		[]shapes.Shape{shapes.MakeResolved(shapes.F32, 64, 784), shapes.MakeResolved(shapes.F32, 100, 10)},
		"cannot contract dimension %d with %d", 784, 100)
	d.Declaration = "classifier"
	d.StageIndex = 2
	assert.Equal(t,
		`ShapeMismatch in "classifier" (stage #2): cannot contract dimension 784 with 100 [shapes: (float32)[64 784] vs (float32)[100 10]]`,
		d.Error())
}

func TestRaisef(t *testing.T) {
	caught := exceptions.TryCatch[*Diagnostic](func() {
		Raisef(MissingConfigOption, nil, "option %q is required", "units")
	})
	require.NotNil(t, caught)
	assert.Equal(t, MissingConfigOption, caught.Kind)
	assert.Equal(t, -1, caught.StageIndex)
	assert.Contains(t, caught.Message, `"units"`)
}

func TestBag(t *testing.T) {
	var bag Bag
	require.True(t, bag.Empty())
	require.NoError(t, bag.Err())

	bag.Add(nil)
	require.True(t, bag.Empty())

	first := Newf(UnknownConfigOption, nil, "no such option")
	bag.Add(first)
	require.Equal(t, 1, bag.Len())
	require.Same(t, first, bag.Err().(*Diagnostic))

	bag.Add(Newf(ShapeMismatch, nil, "ranks differ"))
	require.Equal(t, 2, bag.Len())
	require.ErrorContains(t, bag.Err(), "2 errors")

	var merged Bag
	merged.AddAll(&bag)
	require.Equal(t, 2, merged.Len())
}

func TestKindJSON(t *testing.T) {
	d := Newf(StackingFixpointViolation, nil, "output drifts")
	encoded, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"kind":"StackingFixpointViolation"`)
	assert.True(t, LoweringInvariantViolation.IsInternal())
	assert.False(t, ShapeMismatch.IsInternal())
}
