// Package autodiff provides reverse-mode gradients over the dispatch
// primitives. There is no compiler support involved: each primitive
// registers a forward result together with a backward closure taking the
// upstream gradient, and the tape composes them in reverse order.
package autodiff

import (
	"github.com/fathom-ml/fathom/internal/dispatch"
	"github.com/fathom-ml/fathom/internal/engine"
	"github.com/fathom-ml/fathom/internal/tensor"
)

// Operation pairs a recorded forward result with its backward rule.
type Operation[T tensor.Float] interface {
	// Backward computes one gradient per input, given the gradient of the
	// loss with respect to the output.
	Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error)
	// Inputs returns the operand buffers recorded at forward time.
	Inputs() []*tensor.Raw
	// Output returns the forward result.
	Output() *tensor.Raw
}

// Tape records operations in execution order and walks them in reverse to
// accumulate gradients per buffer.
type Tape[T tensor.Float] struct {
	ops       []Operation[T]
	recording bool
}

// NewTape creates an empty tape with recording enabled.
func NewTape[T tensor.Float]() *Tape[T] {
	return &Tape[T]{recording: true}
}

// StartRecording enables operation recording.
func (t *Tape[T]) StartRecording() { t.recording = true }

// StopRecording disables operation recording.
func (t *Tape[T]) StopRecording() { t.recording = false }

// Record appends an operation when the tape is recording.
func (t *Tape[T]) Record(op Operation[T]) {
	if t.recording {
		t.ops = append(t.ops, op)
	}
}

// Clear drops every recorded operation, keeping the recording state.
func (t *Tape[T]) Clear() { t.ops = t.ops[:0] }

// Backward seeds the root's gradient with ones and walks the tape in
// reverse, applying each backward rule and summing gradients for buffers
// used more than once. The returned map associates every reached input
// buffer with its accumulated gradient.
func (t *Tape[T]) Backward(q engine.Queue, root *tensor.Raw) (map[*tensor.Raw]*tensor.Raw, error) {
	grads := make(map[*tensor.Raw]*tensor.Raw)
	if len(t.ops) == 0 {
		return grads, nil
	}

	wasRecording := t.recording
	t.recording = false
	defer func() { t.recording = wasRecording }()

	seed, err := onesLike[T](q, root)
	if err != nil {
		return nil, err
	}
	grads[root] = seed

	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		outGrad, ok := grads[op.Output()]
		if !ok {
			continue // branch not on the path to root
		}
		inGrads, err := op.Backward(q, outGrad)
		if err != nil {
			return nil, err
		}
		for j, in := range op.Inputs() {
			if err := accumulate[T](q, grads, in, inGrads[j]); err != nil {
				return nil, err
			}
		}
	}
	return grads, nil
}

// accumulate sums g into the gradient already held for key, or installs it.
func accumulate[T tensor.Float](q engine.Queue, grads map[*tensor.Raw]*tensor.Raw, key, g *tensor.Raw) error {
	prev, ok := grads[key]
	if !ok {
		grads[key] = g
		return nil
	}
	sum, err := newLike(q, prev)
	if err != nil {
		return err
	}
	if err := dispatch.Map2(q, prev, g, sum, func(x, y T) T { return x + y }); err != nil {
		return err
	}
	grads[key] = sum
	return nil
}

// newLike allocates an uninitialized buffer with r's shape and order.
func newLike(q engine.Queue, r *tensor.Raw) (*tensor.Raw, error) {
	return tensor.NewRaw(q, r.Shape(), r.DType(), r.View().Order())
}

// onesLike allocates a buffer of ones with r's shape and order.
func onesLike[T tensor.Float](q engine.Queue, r *tensor.Raw) (*tensor.Raw, error) {
	out, err := newLike(q, r)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Fill(q, out, func(int) T { return 1 }); err != nil {
		return nil, err
	}
	return out, nil
}
