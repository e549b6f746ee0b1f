package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := MakeSet[int](3)
	s.Insert(1, 3, 5)
	assert.True(t, s.Has(3))
	assert.False(t, s.Has(2))
	assert.Len(t, s, 3)

	s2 := SetWith("adam", "sgd")
	assert.True(t, s2.Has("adam"))
	assert.False(t, s2.Has("adamx"))
}
