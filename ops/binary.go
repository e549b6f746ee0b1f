package ops

import (
	"github.com/NeuraLang/neuralang/diag"
	"github.com/NeuraLang/neuralang/types/shapes"
	"github.com/NeuraLang/neuralang/unify"
)

// matMulInfer contracts the trailing dimension of the left operand against
// the second-to-last dimension of the right operand: `(m,k) @ (k,n) ->
// (m,n)`. Leading (batch) dimensions of higher-rank operands are combined
// under broadcasting. Both operand shapes are attached to the diagnostic on
// mismatch.
func matMulInfer(a *unify.Arena, inputs []shapes.Shape, _ Config) shapes.Shape {
	lhs, rhs := a.ResolveShape(inputs[0]), a.ResolveShape(inputs[1])
	if lhs.DType != rhs.DType {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{lhs, rhs},
			"matmul operands have different dtypes %s and %s", lhs.DType, rhs.DType)
	}
	if lhs.Rank() < 2 || rhs.Rank() < 2 {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{lhs, rhs},
			"matmul needs operands of rank >= 2, got %s and %s", lhs, rhs)
	}

	contract(a, lhs, rhs)

	// Batch dimensions (everything before the contracting pair) broadcast.
	batchLhs := shapes.Make(lhs.DType, lhs.Dimensions[:lhs.Rank()-2]...)
	batchRhs := shapes.Make(rhs.DType, rhs.Dimensions[:rhs.Rank()-2]...)
	batch := a.BroadcastUnify(batchLhs, batchRhs)

	out := shapes.Shape{DType: lhs.DType, Dimensions: make([]shapes.Dim, 0, batch.Rank()+2)}
	out.Dimensions = append(out.Dimensions, batch.Dimensions...)
	out.Dimensions = append(out.Dimensions, a.Resolve(lhs.Dim(-2)), a.Resolve(rhs.Dim(-1)))
	return out
}

// contract unifies lhs's trailing dimension with rhs's second-to-last,
// re-raising the dimension-level mismatch with both operand shapes attached.
func contract(a *unify.Arena, lhs, rhs shapes.Shape) {
	left, right := lhs.Dim(-1), rhs.Dim(-2)
	if left.IsConcrete() && right.IsConcrete() && left.Value != right.Value {
		diag.Raisef(diag.ShapeMismatch, []shapes.Shape{lhs, rhs},
			"matmul cannot contract dimension %s of %s with dimension %s of %s",
			left, lhs, right, rhs)
	}
	a.Unify(left, right)
}

// elementwiseInfer combines two operands under broadcasting.
func elementwiseInfer(a *unify.Arena, inputs []shapes.Shape, _ Config) shapes.Shape {
	return a.BroadcastUnify(inputs[0], inputs[1])
}

func registerBinary(r *Registry) {
	r.register(&Signature{
		Name:      "matmul",
		NumInputs: 2,
		Infer:     matMulInfer,
	})
	r.alias("@", "matmul")
	for _, name := range []string{"add", "sub", "mul", "div"} {
		r.register(&Signature{Name: name, NumInputs: 2, Infer: elementwiseInfer})
	}
	r.alias("+", "add")
	r.alias("-", "sub")
	r.alias("*", "mul")
	r.alias("/", "div")
}
