package shapes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := MakeResolved(Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := MakeResolved(Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.True(t, shape1.IsResolved())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 4*3*2, shape1.Size())
	require.Equal(t, 4*4*3*2, int(shape1.Memory()))
	require.Equal(t, "(float32)[4 3 2]", shape1.String())

	shape2 := Make(Float32, Sym("batch"), D(784))
	require.False(t, shape2.IsResolved())
	require.Equal(t, "(float32)[batch 784]", shape2.String())
	require.Panics(t, func() { _ = shape2.Size() })
}

func TestDim(t *testing.T) {
	shape := MakeResolved(Float32, 4, 3, 2)
	require.Equal(t, D(4), shape.Dim(0))
	require.Equal(t, D(3), shape.Dim(1))
	require.Equal(t, D(2), shape.Dim(2))
	require.Equal(t, D(4), shape.Dim(-3))
	require.Equal(t, D(3), shape.Dim(-2))
	require.Equal(t, D(2), shape.Dim(-1))
	require.Panics(t, func() { _ = shape.Dim(3) })
	require.Panics(t, func() { _ = shape.Dim(-4) })

	require.Panics(t, func() { _ = D(-1) })
	require.Panics(t, func() { _ = Sym("") })
	require.True(t, Wild().IsWildcard())
	require.True(t, D(0).IsConcrete())
}

func TestEqual(t *testing.T) {
	a := Make(Float32, Sym("batch"), D(10))
	b := Make(Float32, Sym("batch"), D(10))
	c := Make(Float32, Sym("batch"), D(11))
	d := Make(Float64, Sym("batch"), D(10))
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(d))
	require.True(t, a.EqualDimensions(d))

	clone := a.Clone()
	clone.Dimensions[1] = D(99)
	require.True(t, a.Equal(b), "Clone must not share dimensions storage")
}

func TestWithTrailing(t *testing.T) {
	in := Make(Float32, Sym("batch"), D(784))
	out := in.WithTrailing(D(128))
	require.Equal(t, Make(Float32, Sym("batch"), D(128)), out)
	require.Equal(t, D(784), in.Dim(-1), "WithTrailing must not mutate the receiver")
	require.Panics(t, func() { MakeResolved(Float32).WithTrailing(D(1)) })
}

func TestCheckDims(t *testing.T) {
	shape := Make(Float32, Sym("batch"), D(28), D(28), D(1))
	require.NoError(t, shape.CheckDims(-1, 28, 28, 1))
	require.NoError(t, shape.CheckDims(7, 28, 28, 1), "symbolic axis matches any wanted value")
	require.Error(t, shape.CheckDims(-1, 28, 28))
	require.Error(t, shape.CheckDims(-1, 28, 28, 3))
	require.NoError(t, shape.CheckRank(4))
	require.Error(t, shape.CheckRank(2))
	require.Panics(t, func() { shape.AssertDims(-1, 1, 1, 1) })
}

func TestShapeJSON(t *testing.T) {
	shape := Make(Float32, D(64), Sym("seq"), Wild())
	encoded, err := json.Marshal(shape)
	require.NoError(t, err)
	require.Equal(t, `{"dtype":"float32","dims":[64,"seq","?"]}`, string(encoded))

	var decoded Shape
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.True(t, shape.Equal(decoded))

	require.Error(t, json.Unmarshal([]byte(`{"dtype":"float7","dims":[]}`), &decoded))
	require.Error(t, json.Unmarshal([]byte(`{"dtype":"float32","dims":[-2]}`), &decoded))
}

func TestConcatenateDimensions(t *testing.T) {
	a := Make(Float32, D(2), Sym("n"))
	b := MakeResolved(Float32, 3)
	got := ConcatenateDimensions(a, b)
	require.Equal(t, Make(Float32, D(2), Sym("n"), D(3)), got)

	scalar := MakeResolved(Float32)
	require.True(t, ConcatenateDimensions(scalar, b).Equal(b))
	require.False(t, ConcatenateDimensions(a, MakeResolved(Float64, 3)).Ok())
}

func TestDTypes(t *testing.T) {
	require.True(t, Float32.IsFloat())
	require.False(t, Float32.IsInt())
	require.True(t, Int64.IsInt())
	require.Equal(t, "bfloat16", BFloat16.String())

	dtype, err := DTypeFromString("Float32")
	require.NoError(t, err)
	require.Equal(t, Float32, dtype)
	_, err = DTypeFromString("quaternion")
	require.Error(t, err)
}
