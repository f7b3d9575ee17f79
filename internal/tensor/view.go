package tensor

import (
	"fmt"
	"iter"
)

// Order is the canonical element order of a view's physical layout.
type Order int8

const (
	// RowMajor lays elements out with the last dimension fastest.
	RowMajor Order = iota
	// ColMajor lays elements out with the first dimension fastest.
	ColMajor
)

// String returns a human-readable order name.
func (o Order) String() string {
	switch o {
	case RowMajor:
		return "RowMajor"
	case ColMajor:
		return "ColMajor"
	default:
		return "Unknown"
	}
}

// Known reports whether o is an order the engine has layout adapters for.
func (o Order) Known() bool { return o == RowMajor || o == ColMajor }

// StridedView maps a logical index space onto offsets in a shared buffer:
// offset = origin + sum(index[d] * strides[d]). Views are immutable; every
// reshape, slice, or transpose produces a new view over the same buffer
// and never copies elements.
type StridedView struct {
	shape   Shape
	strides []int
	order   Order
	offset  int
}

// Contiguous builds a densely-packed view of shape in the given order,
// starting at offset 0.
func Contiguous(shape Shape, order Order) StridedView {
	var strides []int
	if order == ColMajor {
		strides = shape.ColMajorStrides()
	} else {
		strides = shape.RowMajorStrides()
	}
	return StridedView{shape: shape.Clone(), strides: strides, order: order}
}

// NewView builds a view from explicit strides. Sub-views and slices may be
// non-contiguous; consistency of strides with order is only expected for
// densely-packed views.
func NewView(shape Shape, strides []int, order Order, offset int) (StridedView, error) {
	if len(shape) != len(strides) {
		return StridedView{}, fmt.Errorf("rank mismatch: %d extents, %d strides", len(shape), len(strides))
	}
	if err := shape.Validate(); err != nil {
		return StridedView{}, err
	}
	return StridedView{
		shape:   shape.Clone(),
		strides: append([]int(nil), strides...),
		order:   order,
		offset:  offset,
	}, nil
}

// Shape returns the view's extents.
func (v StridedView) Shape() Shape { return v.shape }

// Strides returns the element strides per dimension.
func (v StridedView) Strides() []int { return v.strides }

// Order returns the view's declared element order.
func (v StridedView) Order() Order { return v.order }

// Offset returns the view's origin offset in elements.
func (v StridedView) Offset() int { return v.offset }

// Rank returns the number of dimensions.
func (v StridedView) Rank() int { return len(v.shape) }

// NumElements returns the view's logical element count.
func (v StridedView) NumElements() int { return v.shape.NumElements() }

// IsContiguous reports whether the view is densely packed in its declared
// order starting at its origin.
func (v StridedView) IsContiguous() bool {
	var packed []int
	if v.order == ColMajor {
		packed = v.shape.ColMajorStrides()
	} else {
		packed = v.shape.RowMajorStrides()
	}
	for d := range v.strides {
		if v.shape[d] > 1 && v.strides[d] != packed[d] {
			return false
		}
	}
	return true
}

// OffsetOf computes the buffer offset of one logical index.
func (v StridedView) OffsetOf(index ...int) int {
	off := v.offset
	for d, i := range index {
		off += i * v.strides[d]
	}
	return off
}

// Transpose swaps the shape/strides pairs end to end, reversing the
// dimension order. The buffer is untouched; transposing twice yields a
// view identical to the original.
func (v StridedView) Transpose() StridedView {
	r := v.Rank()
	shape := make(Shape, r)
	strides := make([]int, r)
	for d := 0; d < r; d++ {
		shape[d] = v.shape[r-1-d]
		strides[d] = v.strides[r-1-d]
	}
	return StridedView{shape: shape, strides: strides, order: v.order, offset: v.offset}
}

// Reshape returns a view of the same elements with a new shape. The view
// must be contiguous (a strided slice cannot be reshaped without a copy)
// and the element count must be preserved.
func (v StridedView) Reshape(shape Shape) (StridedView, error) {
	if err := shape.Validate(); err != nil {
		return StridedView{}, err
	}
	if shape.NumElements() != v.NumElements() {
		return StridedView{}, fmt.Errorf("reshape %v to %v changes element count", v.shape, shape)
	}
	if !v.IsContiguous() {
		return StridedView{}, fmt.Errorf("reshape of non-contiguous view %v requires a copy", v.shape)
	}
	nv := Contiguous(shape, v.order)
	nv.offset = v.offset
	return nv, nil
}

// Slice returns the sub-range view starting at starts with the given
// extents. Strides are inherited, so the result may be non-contiguous. No
// elements are copied.
func (v StridedView) Slice(starts, sizes []int) (StridedView, error) {
	if len(starts) != v.Rank() || len(sizes) != v.Rank() {
		return StridedView{}, fmt.Errorf("slice rank mismatch: view rank %d, %d starts, %d sizes",
			v.Rank(), len(starts), len(sizes))
	}
	off := v.offset
	shape := make(Shape, v.Rank())
	for d := range starts {
		if starts[d] < 0 || sizes[d] < 0 || starts[d]+sizes[d] > v.shape[d] {
			return StridedView{}, fmt.Errorf("slice [%d:%d) out of range for dimension %d (extent %d)",
				starts[d], starts[d]+sizes[d], d, v.shape[d])
		}
		off += starts[d] * v.strides[d]
		shape[d] = sizes[d]
	}
	return StridedView{
		shape:   shape,
		strides: append([]int(nil), v.strides...),
		order:   v.order,
		offset:  off,
	}, nil
}

// RowSequential returns the lazy sequence of buffer offsets visiting the
// logical index space with the last dimension fastest. Zero-extent
// dimensions yield an empty sequence.
func (v StridedView) RowSequential() iter.Seq[int] {
	dims := make([]int, v.Rank())
	for d := range dims {
		dims[d] = d
	}
	return v.offsets(dims)
}

// ColSequential returns the lazy sequence of buffer offsets visiting the
// logical index space with the first dimension fastest.
func (v StridedView) ColSequential() iter.Seq[int] {
	dims := make([]int, v.Rank())
	for d := range dims {
		dims[d] = v.Rank() - 1 - d
	}
	return v.offsets(dims)
}

// Sequential returns the offset sequence in the view's own declared order.
// This is the traversal that walks a contiguous buffer front to back.
func (v StridedView) Sequential() iter.Seq[int] {
	if v.order == ColMajor {
		return v.ColSequential()
	}
	return v.RowSequential()
}

// OffsetsIn returns the offset sequence visiting logical indices in the
// given traversal order, independent of the view's physical layout.
func (v StridedView) OffsetsIn(order Order) iter.Seq[int] {
	if order == ColMajor {
		return v.ColSequential()
	}
	return v.RowSequential()
}

// offsets walks the index space as an odometer. dims lists dimensions from
// slowest to fastest; the last entry increments every step.
func (v StridedView) offsets(dims []int) iter.Seq[int] {
	return func(yield func(int) bool) {
		if v.NumElements() == 0 {
			return
		}
		if v.Rank() == 0 {
			yield(v.offset)
			return
		}
		idx := make([]int, v.Rank())
		off := v.offset
		for {
			if !yield(off) {
				return
			}
			k := len(dims) - 1
			for ; k >= 0; k-- {
				d := dims[k]
				idx[d]++
				off += v.strides[d]
				if idx[d] < v.shape[d] {
					break
				}
				off -= idx[d] * v.strides[d]
				idx[d] = 0
			}
			if k < 0 {
				return
			}
		}
	}
}

// IndexedOffsets walks logical indices in row-major order, yielding the
// multi-index alongside the buffer offset. The index slice is reused
// between iterations; callers must copy it to retain it.
func (v StridedView) IndexedOffsets() iter.Seq2[[]int, int] {
	return func(yield func([]int, int) bool) {
		if v.NumElements() == 0 {
			return
		}
		idx := make([]int, v.Rank())
		if v.Rank() == 0 {
			yield(idx, v.offset)
			return
		}
		off := v.offset
		for {
			if !yield(idx, off) {
				return
			}
			d := v.Rank() - 1
			for ; d >= 0; d-- {
				idx[d]++
				off += v.strides[d]
				if idx[d] < v.shape[d] {
					break
				}
				off -= idx[d] * v.strides[d]
				idx[d] = 0
			}
			if d < 0 {
				return
			}
		}
	}
}
