// Copyright 2025 Fathom ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/fathom-ml/fathom/internal/dispatch"
	"github.com/fathom-ml/fathom/internal/engine"
)

// Element-wise operators. Shapes must match exactly; the runtime is
// broadcast-free. Operands may disagree on layout order: results are
// identical for any mix of row-major and column-major operands.

// Add computes a + b element-wise.
func Add[T Numeric](a, b *Tensor[T]) *Tensor[T] {
	return map2(a, b, func(x, y T) T { return x + y })
}

// Sub computes a - b element-wise.
func Sub[T Numeric](a, b *Tensor[T]) *Tensor[T] {
	return map2(a, b, func(x, y T) T { return x - y })
}

// Mul computes a * b element-wise.
func Mul[T Numeric](a, b *Tensor[T]) *Tensor[T] {
	return map2(a, b, func(x, y T) T { return x * y })
}

// Div computes a / b element-wise.
func Div[T Float](a, b *Tensor[T]) *Tensor[T] {
	return map2(a, b, func(x, y T) T { return x / y })
}

// Neg computes -a element-wise.
func Neg[T Numeric](a *Tensor[T]) *Tensor[T] {
	return map1(a, func(x T) T { return -x })
}

// Abs computes |a| element-wise.
func Abs[T Float](a *Tensor[T]) *Tensor[T] {
	return map1(a, func(x T) T {
		if x < 0 {
			return -x
		}
		return x
	})
}

// Apply computes f(a) element-wise with an arbitrary unary function.
func Apply[T DType](a *Tensor[T], f func(T) T) *Tensor[T] {
	return map1(a, f)
}

// Clone materializes an independently-owned, contiguous copy of a.
func Clone[T DType](a *Tensor[T]) *Tensor[T] {
	out := EmptyIn[T](a.queue, a.Shape(), a.raw.View().Order())
	if err := dispatch.Copy[T](a.queue, a.raw, out.raw); err != nil {
		panic(err)
	}
	return out
}

func map1[T DType](a *Tensor[T], f func(T) T) *Tensor[T] {
	out := Empty[T](a.queue, a.Shape())
	if err := dispatch.Map1(a.queue, a.raw, out.raw, f); err != nil {
		panic(err)
	}
	return out
}

func map2[T DType](a, b *Tensor[T], f func(T, T) T) *Tensor[T] {
	out := Empty[T](a.queue, a.Shape())
	if err := dispatch.Map2(a.queue, a.raw, b.raw, out.raw, f); err != nil {
		panic(err)
	}
	return out
}

// Reductions. An empty axes list reduces over all elements. The result
// keeps the input's rank with extent 1 on every reduced axis.

// Sum reduces by addition.
func Sum[T Numeric](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.Sum[T])
}

// Mean reduces by arithmetic mean.
func Mean[T Float](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.Mean[T])
}

// Prod reduces by multiplication. Zero operands propagate.
func Prod[T Numeric](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.Prod[T])
}

// ProdNonZeros multiplies only the non-zero elements of each cell.
// Cells with no non-zero element yield 1.
func ProdNonZeros[T Numeric](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.ProdNonZeros[T])
}

// Min reduces to the minimum element per cell.
func Min[T Numeric](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.Min[T])
}

// Max reduces to the maximum element per cell.
func Max[T Numeric](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.Max[T])
}

// AbsSum reduces by the sum of absolute values.
func AbsSum[T Float](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.AbsSum[T])
}

// AbsMax reduces to the maximum absolute value per cell.
func AbsMax[T Float](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.AbsMax[T])
}

// L2Norm reduces to the Euclidean norm per cell.
func L2Norm[T Float](a *Tensor[T], axes ...int) *Tensor[T] {
	return reduce(a, axes, dispatch.L2Norm[T])
}

// All reduces a bool tensor by logical AND.
func All(a *Tensor[bool], axes ...int) *Tensor[bool] {
	return reduce(a, axes, dispatch.All)
}

// Any reduces a bool tensor by logical OR.
func Any(a *Tensor[bool], axes ...int) *Tensor[bool] {
	return reduce(a, axes, dispatch.Any)
}

func reduce[T DType](
	a *Tensor[T],
	axes []int,
	fn func(q engine.Queue, in, out *Raw, axes []int) error,
) *Tensor[T] {
	out := Empty[T](a.queue, reducedShape(a.Shape(), axes))
	if err := fn(a.queue, a.raw, out.raw, axes); err != nil {
		panic(err)
	}
	return out
}

// reducedShape keeps the input's rank with extent 1 on reduced axes.
func reducedShape(shape Shape, axes []int) Shape {
	out := shape.Clone()
	if len(axes) == 0 {
		for d := range out {
			out[d] = 1
		}
		return out
	}
	for _, a := range axes {
		if a >= 0 && a < len(out) {
			out[a] = 1
		}
	}
	return out
}
