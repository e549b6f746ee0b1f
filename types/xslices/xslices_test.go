package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	in := []int{1, 2, 3}
	got := Map(in, func(e int) int { return e * 2 })
	assert.Equal(t, []int{2, 4, 6}, got)
}

func TestAtAndLast(t *testing.T) {
	s := Iota(10, 5)
	require.Equal(t, []int{10, 11, 12, 13, 14}, s)
	assert.Equal(t, 12, At(s, 2))
	assert.Equal(t, 13, At(s, -2))
	assert.Equal(t, 14, Last(s))
}

func TestKeys(t *testing.T) {
	m := map[string]int{"c": 2, "a": 0, "b": 1}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, Keys(m))
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
}

func TestCopy(t *testing.T) {
	s := []int{1, 2}
	s2 := Copy(s)
	s2[0] = 99
	assert.Equal(t, []int{1, 2}, s)
	assert.Nil(t, Copy[int](nil))
}
