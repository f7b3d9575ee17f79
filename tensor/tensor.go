// Copyright 2025 Fathom ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for typed tensors in the Fathom
// runtime.
//
// A Tensor[T] couples a strided view over device memory with the queue
// that owns the memory. All operations go through that queue, so results
// are ordered with respect to everything else submitted to it.
//
// Example:
//
//	p, _ := engine.NewPlatform(engine.DefaultConfig())
//	defer p.Shutdown()
//	q := p.Current()
//	x := tensor.Zeros[float32](q, tensor.Shape{2, 3})
//	y := tensor.Ones[float32](q, tensor.Shape{2, 3})
//	z := tensor.Add(x, y)
package tensor

import (
	"github.com/fathom-ml/fathom/internal/dispatch"
	"github.com/fathom-ml/fathom/internal/engine"
	"github.com/fathom-ml/fathom/internal/tensor"
)

// Type aliases for the public API.

// DType is the constraint for supported element types.
// Supported types: float32, float64, int32, int64, uint8, bool.
type DType = tensor.DType

// Numeric is the constraint for element types with arithmetic.
type Numeric = tensor.Numeric

// Float is the constraint for floating-point element types.
type Float = tensor.Float

// DataType is the runtime type tag for a buffer's elements.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} is a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Order is the canonical element order of a view's physical layout.
type Order = tensor.Order

// Layout order constants.
const (
	RowMajor Order = tensor.RowMajor
	ColMajor Order = tensor.ColMajor
)

// StridedView maps a logical index space onto buffer offsets.
type StridedView = tensor.StridedView

// Raw is the untyped buffer representation underneath every Tensor.
type Raw = tensor.Raw

// Tensor is a typed tensor bound to the queue that owns its memory.
//
// Creation functions and operators panic on precondition violations
// (shape mismatch, allocation failure); the violations are programming
// errors, checked synchronously before any work is queued. Use the Raw
// API under internal/dispatch semantics via Raw() for error returns.
type Tensor[T DType] struct {
	raw   *tensor.Raw
	queue engine.Queue
}

// New wraps an existing raw buffer. The tensor takes over the caller's
// reference.
func New[T DType](q engine.Queue, raw *tensor.Raw) *Tensor[T] {
	return &Tensor[T]{raw: raw, queue: q}
}

// Raw returns the underlying untyped buffer.
func (t *Tensor[T]) Raw() *tensor.Raw { return t.raw }

// Queue returns the queue that owns the tensor's memory.
func (t *Tensor[T]) Queue() engine.Queue { return t.queue }

// Shape returns the tensor's extents.
func (t *Tensor[T]) Shape() Shape { return t.raw.Shape() }

// Rank returns the number of dimensions.
func (t *Tensor[T]) Rank() int { return t.raw.Shape().Rank() }

// NumElements returns the logical element count.
func (t *Tensor[T]) NumElements() int { return t.raw.NumElements() }

// DataType returns the runtime element type tag.
func (t *Tensor[T]) DataType() DataType { return t.raw.DType() }

// Release drops the tensor's reference to its allocation.
func (t *Tensor[T]) Release() { t.raw.Release() }

// newTensor allocates an uninitialized tensor on q.
func newTensor[T DType](q engine.Queue, shape Shape, order Order) *Tensor[T] {
	raw, err := tensor.NewRaw(q, shape, tensor.DataTypeOf[T](), order)
	if err != nil {
		panic(err)
	}
	return &Tensor[T]{raw: raw, queue: q}
}

// Creation functions. All allocate in row-major order; use EmptyIn for
// column-major layouts.

// Empty creates an uninitialized tensor.
func Empty[T DType](q engine.Queue, shape Shape) *Tensor[T] {
	return newTensor[T](q, shape, RowMajor)
}

// EmptyIn creates an uninitialized tensor with the given layout order.
func EmptyIn[T DType](q engine.Queue, shape Shape, order Order) *Tensor[T] {
	return newTensor[T](q, shape, order)
}

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	x := tensor.Zeros[float32](q, tensor.Shape{2, 3})
func Zeros[T DType](q engine.Queue, shape Shape) *Tensor[T] {
	var zero T
	return Full(q, shape, zero)
}

// Ones creates a numeric tensor filled with ones.
func Ones[T Numeric](q engine.Queue, shape Shape) *Tensor[T] {
	return Full[T](q, shape, 1)
}

// Full creates a tensor filled with value.
func Full[T DType](q engine.Queue, shape Shape, value T) *Tensor[T] {
	t := newTensor[T](q, shape, RowMajor)
	if err := dispatch.Fill(q, t.raw, func(int) T { return value }); err != nil {
		panic(err)
	}
	return t
}

// Arange creates a 1D tensor with values start, start+1, and so on. The
// element count is int(end - start), truncated toward zero, so a
// fractional span yields only the whole steps: Arange(0, 2.5) is [0, 1].
//
// Example:
//
//	x := tensor.Arange[float32](q, 0, 10) // [0, 1, ..., 9]
func Arange[T Numeric](q engine.Queue, start, end T) *Tensor[T] {
	n := int(end - start)
	if n < 0 {
		n = 0
	}
	t := newTensor[T](q, Shape{n}, RowMajor)
	if err := dispatch.Fill(q, t.raw, func(i int) T { return start + T(i) }); err != nil {
		panic(err)
	}
	return t
}

// FromSlice creates a tensor from a Go slice in row-major element order.
func FromSlice[T DType](q engine.Queue, data []T, shape Shape) (*Tensor[T], error) {
	if shape.NumElements() != len(data) {
		return nil, engine.Errorf("FromSlice", "shape %v needs %d elements, got %d",
			shape, shape.NumElements(), len(data))
	}
	raw, err := tensor.NewRaw(q, shape, tensor.DataTypeOf[T](), RowMajor)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Fill(q, raw, func(i int) T { return data[i] }); err != nil {
		raw.Release()
		return nil, err
	}
	return &Tensor[T]{raw: raw, queue: q}, nil
}

// Rand creates a tensor of uniform values in [0, 1), drawn from the
// platform's seeded random source.
func Rand[T Float](p *engine.Platform, shape Shape) *Tensor[T] {
	q := p.Current()
	rng := p.Random()
	t := newTensor[T](q, shape, RowMajor)
	if err := dispatch.Fill(q, t.raw, func(int) T { return T(rng.Float64()) }); err != nil {
		panic(err)
	}
	return t
}

// Randn creates a tensor of standard normal values, drawn from the
// platform's seeded random source.
func Randn[T Float](p *engine.Platform, shape Shape) *Tensor[T] {
	q := p.Current()
	rng := p.Random()
	t := newTensor[T](q, shape, RowMajor)
	if err := dispatch.Fill(q, t.raw, func(int) T { return T(rng.NormFloat64()) }); err != nil {
		panic(err)
	}
	return t
}

// View operations. All are zero-copy; the result shares the allocation.

// Transpose returns a view with reversed dimensions. Transposing twice
// yields the original view.
func (t *Tensor[T]) Transpose() *Tensor[T] {
	return &Tensor[T]{raw: t.raw.Transpose(), queue: t.queue}
}

// Reshape returns a view of the same elements with a new shape. The
// tensor must be contiguous and the element count preserved.
func (t *Tensor[T]) Reshape(shape Shape) (*Tensor[T], error) {
	raw, err := t.raw.Reshape(shape)
	if err != nil {
		return nil, err
	}
	return &Tensor[T]{raw: raw, queue: t.queue}, nil
}

// Slice returns the sub-range view starting at starts with the given
// extents.
func (t *Tensor[T]) Slice(starts, sizes []int) (*Tensor[T], error) {
	raw, err := t.raw.Slice(starts, sizes)
	if err != nil {
		return nil, err
	}
	return &Tensor[T]{raw: raw, queue: t.queue}, nil
}

// Element access. Both drain the owning queue first, so pending writes
// are visible.

// At reads one element by logical index.
func (t *Tensor[T]) At(index ...int) T {
	if err := t.queue.EnsureRead(t.raw.Memory()); err != nil {
		panic(err)
	}
	t.queue.WaitForCompletion()
	return tensor.Elems[T](t.raw)[t.raw.View().OffsetOf(index...)]
}

// Data materializes the tensor's logical elements in row-major order.
func (t *Tensor[T]) Data() []T {
	if err := t.queue.EnsureRead(t.raw.Memory()); err != nil {
		panic(err)
	}
	t.queue.WaitForCompletion()
	out := make([]T, 0, t.NumElements())
	elems := tensor.Elems[T](t.raw)
	for off := range t.raw.View().OffsetsIn(RowMajor) {
		out = append(out, elems[off])
	}
	return out
}
