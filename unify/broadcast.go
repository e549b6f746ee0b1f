package unify

import (
	"github.com/gomlx/exceptions"

	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types/shapes"
)

// BroadcastUnify combines two shapes under numpy-style broadcasting, used by
// elementwise operators. Dimensions are matched from the trailing (rightmost)
// axis; the shorter shape is aligned with implicit leading 1s. A concrete
// dimension of 1 unifies with any other dimension by widening to it; all
// other pairs follow the regular unification rules.
func (a *Arena) BroadcastUnify(x, y shapes.Shape) shapes.Shape {
	if x.DType != y.DType {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{x, y},
			"dtypes %s and %s do not match", x.DType, y.DType)
	}
	rank := max(x.Rank(), y.Rank())
	out := shapes.Shape{DType: x.DType, Dimensions: make([]shapes.Dim, rank)}
	one := shapes.D(1)
	for offset := 1; offset <= rank; offset++ {
		dimX, dimY := one, one
		if offset <= x.Rank() {
			dimX = a.Resolve(x.Dim(-offset))
		}
		if offset <= y.Rank() {
			dimY = a.Resolve(y.Dim(-offset))
		}
		var merged shapes.Dim
		switch {
		case dimX.IsConcrete() && dimX.Value == 1:
			merged = dimY
		case dimY.IsConcrete() && dimY.Value == 1:
			merged = dimX
		default:
			merged = a.broadcastAxis(x, y, rank-offset, dimX, dimY)
		}
		out.Dimensions[rank-offset] = merged
	}
	return out
}

// broadcastAxis wraps the dimension-level mismatch with the full shapes and
// the aligned axis for diagnostics.
func (a *Arena) broadcastAxis(x, y shapes.Shape, axis int, dimX, dimY shapes.Dim) shapes.Dim {
	var out shapes.Dim
	caught := exceptions.TryCatch[*diag.Diagnostic](func() {
		out = a.Unify(dimX, dimY)
	})
	if caught != nil {
		diag.Raisef(caught.Kind, []shapes.Shape{x, y},
			"shapes are not broadcast-compatible at axis %d: %s", axis, caught.Message)
	}
	return out
}
