package dispatch

import (
	"math"

	"github.com/fathom-ml/fathom/internal/engine"
	"github.com/fathom-ml/fathom/internal/tensor"
)

// Reduce folds a binary operator over the reduced axes of in, writing one
// accumulated value per cell of out. An empty axes list reduces over all
// elements. The output view must have extent 1 on every reduced axis and
// match in's extents elsewhere (the "rank-1-everywhere" convention, so a
// full reduction of rank r yields a rank-r scalar view).
//
// Each output cell is seeded with the first eligible element rather than a
// neutral identity, because arbitrary comparable element types have no
// defined identity value. Cells that receive no eligible element keep
// whatever value the caller staged into out beforehand.
//
//   - lift, when non-nil, transforms each eligible element before it is
//     seeded or folded (e.g. absolute value, square).
//   - eligible, when non-nil, skips elements per element (e.g. the
//     non-zero product, which must not special-case globally).
//   - finish, when non-nil, runs once per output cell after the fold with
//     the cell's eligible count (e.g. divide for a mean, square root for
//     an L2 norm).
func Reduce[T tensor.DType](
	q engine.Queue,
	in, out *tensor.Raw,
	axes []int,
	eligible func(T) bool,
	lift func(T) T,
	fold func(acc, x T) T,
	finish func(acc T, n int) T,
) error {
	inView, outView := in.View(), out.View()
	if err := knownLayouts("Reduce", inView, outView); err != nil {
		return err
	}
	reduced, err := reducedAxes("Reduce", inView.Shape(), axes)
	if err != nil {
		return err
	}
	if err := checkReducedShape("Reduce", inView.Shape(), outView.Shape(), reduced); err != nil {
		return err
	}
	if err := stage(q, []*tensor.Raw{out}, in); err != nil {
		return err
	}
	outStrides := outView.Strides()
	return q.Submit(func() {
		inv := tensor.Elems[T](in)
		ov := tensor.Elems[T](out)
		counts := make(map[int]int)
		for idx, off := range inView.IndexedOffsets() {
			x := inv[off]
			if eligible != nil && !eligible(x) {
				continue
			}
			if lift != nil {
				x = lift(x)
			}
			outOff := outView.Offset()
			for d, i := range idx {
				if !reduced[d] {
					outOff += i * outStrides[d]
				}
			}
			if counts[outOff] == 0 {
				ov[outOff] = x
			} else {
				ov[outOff] = fold(ov[outOff], x)
			}
			counts[outOff]++
		}
		if finish != nil {
			for off := range outView.Sequential() {
				ov[off] = finish(ov[off], counts[off])
			}
		}
	})
}

// reducedAxes expands the axis list into a per-dimension mask. Empty axes
// reduce over everything.
func reducedAxes(op string, shape tensor.Shape, axes []int) ([]bool, error) {
	reduced := make([]bool, shape.Rank())
	if len(axes) == 0 {
		for d := range reduced {
			reduced[d] = true
		}
		return reduced, nil
	}
	for _, a := range axes {
		if a < 0 || a >= shape.Rank() {
			return nil, engine.Errorf(op, "axis %d out of range for rank %d", a, shape.Rank())
		}
		if reduced[a] {
			return nil, engine.Errorf(op, "axis %d listed twice", a)
		}
		reduced[a] = true
	}
	return reduced, nil
}

// checkReducedShape validates the rank-1-everywhere output convention.
func checkReducedShape(op string, in, out tensor.Shape, reduced []bool) error {
	if out.Rank() != in.Rank() {
		return engine.Errorf(op, "output rank %d does not match input rank %d", out.Rank(), in.Rank())
	}
	for d := range reduced {
		want := in[d]
		if reduced[d] {
			want = 1
		}
		if out[d] != want {
			return engine.Errorf(op, "output extent %d at dimension %d, want %d", out[d], d, want)
		}
	}
	return nil
}

// Named reductions. These are the folds the tensor surface exposes; each
// is a thin parameterization of Reduce.

// Sum accumulates x0 + x1 + ... per output cell.
func Sum[T tensor.Numeric](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil, nil,
		func(acc, x T) T { return acc + x }, nil)
}

// Mean accumulates a sum and divides by the element count once per cell.
func Mean[T tensor.Float](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil, nil,
		func(acc, x T) T { return acc + x },
		func(acc T, n int) T {
			if n == 0 {
				return acc
			}
			return acc / T(n)
		})
}

// Prod accumulates x0 * x1 * ... per output cell. A zero operand
// propagates, as plain products must.
func Prod[T tensor.Numeric](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil, nil,
		func(acc, x T) T { return acc * x }, nil)
}

// ProdNonZeros multiplies only the non-zero elements of each cell: zero
// operands are skipped per element instead of zeroing the result. Cells
// with no non-zero element yield 1.
func ProdNonZeros[T tensor.Numeric](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	if err := Fill(q, out, func(int) T { return 1 }); err != nil {
		return err
	}
	return Reduce[T](q, in, out, axes,
		func(x T) bool { return x != 0 }, nil,
		func(acc, x T) T { return acc * x }, nil)
}

// Min folds with a strict less-than comparison.
func Min[T tensor.Numeric](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil, nil,
		func(acc, x T) T {
			if x < acc {
				return x
			}
			return acc
		}, nil)
}

// Max folds with a >= comparison. Deliberately a separate fold from Min,
// not a sign-flipped reuse of it.
func Max[T tensor.Numeric](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil, nil,
		func(acc, x T) T {
			if x >= acc {
				return x
			}
			return acc
		}, nil)
}

// AbsSum accumulates |x0| + |x1| + ... per output cell.
func AbsSum[T tensor.Float](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil, absOf[T],
		func(acc, x T) T { return acc + x }, nil)
}

// AbsMax folds the maximum of absolute values.
func AbsMax[T tensor.Float](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil, absOf[T],
		func(acc, x T) T {
			if x >= acc {
				return x
			}
			return acc
		}, nil)
}

// L2Norm accumulates squares and takes the square root once per cell.
func L2Norm[T tensor.Float](q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[T](q, in, out, axes, nil,
		func(x T) T { return x * x },
		func(acc, x T) T { return acc + x },
		func(acc T, n int) T {
			if n == 0 {
				return acc
			}
			return T(math.Sqrt(float64(acc)))
		})
}

// All folds logical AND, seeded with the first element's value.
func All(q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[bool](q, in, out, axes, nil, nil,
		func(acc, x bool) bool { return acc && x }, nil)
}

// Any folds logical OR, seeded with the first element's value.
func Any(q engine.Queue, in, out *tensor.Raw, axes []int) error {
	return Reduce[bool](q, in, out, axes, nil, nil,
		func(acc, x bool) bool { return acc || x }, nil)
}

func absOf[T tensor.Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}
