// Copyright 2025 Fathom ML Runtime. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation over
// Fathom tensors.
//
// A Tape records every differentiable operation executed through it.
// Backward walks the tape in reverse, accumulating one gradient per
// reached input buffer.
//
// Example:
//
//	tape := autodiff.NewTape[float32]()
//	c, _ := autodiff.Mul(tape, q, a.Raw(), b.Raw())
//	loss, _ := autodiff.Sum(tape, q, c)
//	grads, _ := tape.Backward(q, loss)
//	gradA := grads[a.Raw()]
package autodiff

import (
	"github.com/fathom-ml/fathom/internal/autodiff"
	"github.com/fathom-ml/fathom/internal/engine"
	"github.com/fathom-ml/fathom/internal/tensor"
)

// Tape records operations in execution order and walks them in reverse
// to accumulate gradients.
type Tape[T tensor.Float] = autodiff.Tape[T]

// Operation pairs a recorded forward result with its backward rule.
// Implement it to extend the tape with custom primitives.
type Operation[T tensor.Float] = autodiff.Operation[T]

// NewTape creates an empty tape with recording enabled.
func NewTape[T tensor.Float]() *Tape[T] {
	return autodiff.NewTape[T]()
}

// Differentiable primitives. Each computes the forward result on q and
// records its backward rule on the tape.

// Add computes a + b.
func Add[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Add(t, q, a, b)
}

// Sub computes a - b.
func Sub[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Sub(t, q, a, b)
}

// Mul computes a * b element-wise.
func Mul[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Mul(t, q, a, b)
}

// Div computes a / b element-wise.
func Div[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Div(t, q, a, b)
}

// Neg computes -a.
func Neg[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Neg(t, q, a)
}

// Sum computes the full reduction of a into a rank-preserving scalar.
func Sum[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Sum(t, q, a)
}

// Mean computes the full mean reduction of a.
func Mean[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Mean(t, q, a)
}

// Max computes the full max reduction of a.
func Max[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Max(t, q, a)
}

// Min computes the full min reduction of a.
func Min[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	return autodiff.Min(t, q, a)
}
