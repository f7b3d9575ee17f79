package autodiff

import (
	"github.com/fathom-ml/fathom/internal/dispatch"
	"github.com/fathom-ml/fathom/internal/engine"
	"github.com/fathom-ml/fathom/internal/tensor"
)

// binaryOp carries the operands shared by the two-input rules.
type binaryOp struct {
	inputs []*tensor.Raw
	output *tensor.Raw
}

func (op *binaryOp) Inputs() []*tensor.Raw { return op.inputs }
func (op *binaryOp) Output() *tensor.Raw   { return op.output }

// Add computes a + b and records the rule d(a+b)/da = d(a+b)/db = 1, so
// the upstream gradient flows to both operands unchanged.
func Add[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	out, err := newLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Map2(q, a, b, out, func(x, y T) T { return x + y }); err != nil {
		return nil, err
	}
	t.Record(&addOp[T]{binaryOp{[]*tensor.Raw{a, b}, out}})
	return out, nil
}

type addOp[T tensor.Float] struct{ binaryOp }

func (op *addOp[T]) Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error) {
	// Gradients must be independently owned: accumulation may fold either
	// one into a running sum.
	gradA, err := cloneOf[T](q, outputGrad)
	if err != nil {
		return nil, err
	}
	gradB, err := cloneOf[T](q, outputGrad)
	if err != nil {
		return nil, err
	}
	return []*tensor.Raw{gradA, gradB}, nil
}

// Sub computes a - b; the denominator operand receives the negated
// upstream gradient.
func Sub[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	out, err := newLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Map2(q, a, b, out, func(x, y T) T { return x - y }); err != nil {
		return nil, err
	}
	t.Record(&subOp[T]{binaryOp{[]*tensor.Raw{a, b}, out}})
	return out, nil
}

type subOp[T tensor.Float] struct{ binaryOp }

func (op *subOp[T]) Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error) {
	gradA, err := cloneOf[T](q, outputGrad)
	if err != nil {
		return nil, err
	}
	gradB, err := newLike(q, outputGrad)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Map1(q, outputGrad, gradB, func(g T) T { return -g }); err != nil {
		return nil, err
	}
	return []*tensor.Raw{gradA, gradB}, nil
}

// Mul computes a * b with d(ab)/da = b and d(ab)/db = a. Both gradients
// come out of one fused dual-output traversal.
func Mul[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	out, err := newLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Map2(q, a, b, out, func(x, y T) T { return x * y }); err != nil {
		return nil, err
	}
	t.Record(&mulOp[T]{binaryOp{[]*tensor.Raw{a, b}, out}})
	return out, nil
}

type mulOp[T tensor.Float] struct{ binaryOp }

func (op *mulOp[T]) Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error) {
	a, b := op.inputs[0], op.inputs[1]
	gradA, gradB, err := dualLike(q, outputGrad)
	if err != nil {
		return nil, err
	}
	err = dispatch.Map2Dual(q, a, b, outputGrad, gradA, gradB,
		func(x, y, g T) (T, T) { return g * y, g * x })
	if err != nil {
		return nil, err
	}
	return []*tensor.Raw{gradA, gradB}, nil
}

// Div computes a / b with d(a/b)/da = 1/b and d(a/b)/db = -a/b².
func Div[T tensor.Float](t *Tape[T], q engine.Queue, a, b *tensor.Raw) (*tensor.Raw, error) {
	out, err := newLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Map2(q, a, b, out, func(x, y T) T { return x / y }); err != nil {
		return nil, err
	}
	t.Record(&divOp[T]{binaryOp{[]*tensor.Raw{a, b}, out}})
	return out, nil
}

type divOp[T tensor.Float] struct{ binaryOp }

func (op *divOp[T]) Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error) {
	a, b := op.inputs[0], op.inputs[1]
	gradA, gradB, err := dualLike(q, outputGrad)
	if err != nil {
		return nil, err
	}
	err = dispatch.Map2Dual(q, a, b, outputGrad, gradA, gradB,
		func(x, y, g T) (T, T) { return g / y, -g * x / (y * y) })
	if err != nil {
		return nil, err
	}
	return []*tensor.Raw{gradA, gradB}, nil
}

// Neg computes -a.
func Neg[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	out, err := newLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Map1(q, a, out, func(x T) T { return -x }); err != nil {
		return nil, err
	}
	t.Record(&negOp[T]{binaryOp{[]*tensor.Raw{a}, out}})
	return out, nil
}

type negOp[T tensor.Float] struct{ binaryOp }

func (op *negOp[T]) Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error) {
	grad, err := newLike(q, outputGrad)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Map1(q, outputGrad, grad, func(g T) T { return -g }); err != nil {
		return nil, err
	}
	return []*tensor.Raw{grad}, nil
}

// Sum computes the full reduction of a into a rank-preserving scalar view
// and records the broadcast-back rule: every input element receives the
// scalar upstream gradient.
func Sum[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	out, err := scalarLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Sum[T](q, a, out, nil); err != nil {
		return nil, err
	}
	t.Record(&sumOp[T]{binaryOp{[]*tensor.Raw{a}, out}, 1})
	return out, nil
}

// Mean is Sum scaled by 1/n in both directions.
func Mean[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	out, err := scalarLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Mean[T](q, a, out, nil); err != nil {
		return nil, err
	}
	n := a.NumElements()
	if n == 0 {
		n = 1
	}
	t.Record(&sumOp[T]{binaryOp{[]*tensor.Raw{a}, out}, T(1) / T(n)})
	return out, nil
}

// sumOp broadcasts the scalar upstream gradient back over the input,
// scaled by 1 for Sum and 1/n for Mean.
type sumOp[T tensor.Float] struct {
	binaryOp
	scale T
}

func (op *sumOp[T]) Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error) {
	in := op.inputs[0]
	grad, err := newLike(q, in)
	if err != nil {
		return nil, err
	}
	scale := op.scale
	upOff := outputGrad.View().Offset()
	// The upstream value is read inside the queued work so it reflects
	// the finished producer, not the submission-time contents.
	err = dispatch.Fill(q, grad, func(int) T {
		return tensor.Elems[T](outputGrad)[upOff] * scale
	})
	if err != nil {
		return nil, err
	}
	return []*tensor.Raw{grad}, nil
}

// Max computes the full max reduction and routes the scalar upstream
// gradient to the elements equal to the maximum (indicator rule).
func Max[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	out, err := scalarLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Max[T](q, a, out, nil); err != nil {
		return nil, err
	}
	t.Record(&extremumOp[T]{binaryOp{[]*tensor.Raw{a}, out}})
	return out, nil
}

// Min computes the full min reduction with the same indicator backward.
func Min[T tensor.Float](t *Tape[T], q engine.Queue, a *tensor.Raw) (*tensor.Raw, error) {
	out, err := scalarLike(q, a)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Min[T](q, a, out, nil); err != nil {
		return nil, err
	}
	t.Record(&extremumOp[T]{binaryOp{[]*tensor.Raw{a}, out}})
	return out, nil
}

// extremumOp routes the scalar upstream gradient to every element that
// attains the reduced extremum; everything else gets zero.
type extremumOp[T tensor.Float] struct{ binaryOp }

func (op *extremumOp[T]) Backward(q engine.Queue, outputGrad *tensor.Raw) ([]*tensor.Raw, error) {
	in := op.inputs[0]
	grad, err := newLike(q, in)
	if err != nil {
		return nil, err
	}
	extOff := op.output.View().Offset()
	upOff := outputGrad.View().Offset()
	output := op.output
	err = dispatch.Map1(q, in, grad, func(x T) T {
		if x == tensor.Elems[T](output)[extOff] {
			return tensor.Elems[T](outputGrad)[upOff]
		}
		return 0
	})
	if err != nil {
		return nil, err
	}
	return []*tensor.Raw{grad}, nil
}

// cloneOf materializes an independently-owned copy of src.
func cloneOf[T tensor.Float](q engine.Queue, src *tensor.Raw) (*tensor.Raw, error) {
	out, err := newLike(q, src)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Copy[T](q, src, out); err != nil {
		return nil, err
	}
	return out, nil
}

// dualLike allocates the two gradient outputs of a fused backward.
func dualLike(q engine.Queue, r *tensor.Raw) (*tensor.Raw, *tensor.Raw, error) {
	g1, err := newLike(q, r)
	if err != nil {
		return nil, nil, err
	}
	g2, err := newLike(q, r)
	if err != nil {
		return nil, nil, err
	}
	return g1, g2, nil
}

// scalarLike allocates a rank-preserving all-ones-shape output for a full
// reduction of r.
func scalarLike(q engine.Queue, r *tensor.Raw) (*tensor.Raw, error) {
	shape := make(tensor.Shape, r.Shape().Rank())
	for d := range shape {
		shape[d] = 1
	}
	return tensor.NewRaw(q, shape, r.DType(), r.View().Order())
}
