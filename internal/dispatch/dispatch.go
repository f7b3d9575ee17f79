// Package dispatch executes generic element-wise and reduction operators
// over strided views on a device queue.
//
// Every entry point follows the same protocol:
//
//  1. Shapes are validated synchronously, before any work is queued, so
//     precondition violations surface to the caller regardless of the
//     queue's execution mode.
//  2. Input memory is staged for reading and output memory for
//     read-modify-write against the owning queue. On host queues this is
//     a no-op fast path; an accelerator queue inserts transfers here.
//  3. Operand layouts are reconciled. When every operand shares one
//     traversal order the native sequential iterators are zipped
//     directly; otherwise each operand is driven by its own order adapter
//     with index-for-index correspondence in logical shape space.
//  4. The element loop runs inline on a Sync queue, or is captured as one
//     deferred unit of work on an Async queue. Either way, intra-queue
//     ordering preserves value semantics for any later read through the
//     same queue.
package dispatch

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/fathom-ml/fathom/internal/engine"
	"github.com/fathom-ml/fathom/internal/parallel"
	"github.com/fathom-ml/fathom/internal/tensor"
)

// sameShape checks that all views are element-aligned.
func sameShape(op string, views ...tensor.StridedView) error {
	for i := 1; i < len(views); i++ {
		if !views[0].Shape().Equal(views[i].Shape()) {
			return engine.Errorf(op, "operand %d shape %v does not match %v",
				i, views[i].Shape(), views[0].Shape())
		}
	}
	return nil
}

// knownLayouts rejects operand order combinations the engine has no
// adapter for. Failing fast beats silently reinterpreting memory.
func knownLayouts(op string, views ...tensor.StridedView) error {
	for _, v := range views {
		if !v.Order().Known() {
			return errors.Wrap(engine.ErrUnimplementedLayout, op)
		}
	}
	return nil
}

// stage marks inputs "read" and outputs "read-write" on the queue. This is
// the hook point where a discrete backend inserts host<->device transfers.
func stage(q engine.Queue, outs []*tensor.Raw, ins ...*tensor.Raw) error {
	for _, in := range ins {
		if err := q.EnsureRead(in.Memory()); err != nil {
			return err
		}
	}
	for _, out := range outs {
		if err := q.EnsureReadWrite(out.Memory()); err != nil {
			return err
		}
	}
	return nil
}

// uniformOrder reports whether every view shares one traversal order.
func uniformOrder(views ...tensor.StridedView) bool {
	for i := 1; i < len(views); i++ {
		if views[i].Order() != views[0].Order() {
			return false
		}
	}
	return true
}

// reconcile returns one offset sequence per view such that position k of
// every sequence refers to the same logical index. Same-order operands zip
// their native sequential iterators; mixed orders fall back to driving
// each operand through the first view's order adapter, which keeps the
// logical correspondence while every operand still resolves offsets from
// its own strides.
func reconcile(views ...tensor.StridedView) []iter.Seq[int] {
	seqs := make([]iter.Seq[int], len(views))
	if uniformOrder(views...) {
		for i, v := range views {
			seqs[i] = v.Sequential()
		}
		return seqs
	}
	lead := views[0].Order()
	for i, v := range views {
		seqs[i] = v.OffsetsIn(lead)
	}
	return seqs
}

// denseBases returns each view's origin offset when every view is densely
// packed in one shared order. Position k then maps to base+k for every
// operand, so the element loop runs as a flat range and can be chunked
// across workers without changing which element gets which value.
func denseBases(views ...tensor.StridedView) ([]int, bool) {
	if !uniformOrder(views...) {
		return nil, false
	}
	bases := make([]int, len(views))
	for i, v := range views {
		if !v.IsContiguous() {
			return nil, false
		}
		bases[i] = v.Offset()
	}
	return bases, true
}

// Fill executes a nullary generator into out: every element is assigned
// gen(i) where i counts elements in out's declared order. Used for range
// and random fills.
func Fill[T tensor.DType](q engine.Queue, out *tensor.Raw, gen func(i int) T) error {
	if err := knownLayouts("Fill", out.View()); err != nil {
		return err
	}
	if err := stage(q, []*tensor.Raw{out}); err != nil {
		return err
	}
	// Always sequential: generators may be stateful (seeded random
	// draws), so the call order is part of the contract.
	view := out.View()
	return q.Submit(func() {
		data := tensor.Elems[T](out)
		i := 0
		for off := range view.Sequential() {
			data[off] = gen(i)
			i++
		}
	})
}

// Transform applies a unary operator in place.
func Transform[T tensor.DType](q engine.Queue, inout *tensor.Raw, f func(T) T) error {
	if err := knownLayouts("Transform", inout.View()); err != nil {
		return err
	}
	if err := stage(q, []*tensor.Raw{inout}); err != nil {
		return err
	}
	view := inout.View()
	if bases, ok := denseBases(view); ok {
		n := view.NumElements()
		return q.Submit(func() {
			data := tensor.Elems[T](inout)
			parallel.For(n, func(i int) {
				data[bases[0]+i] = f(data[bases[0]+i])
			}, parallel.DefaultConfig())
		})
	}
	return q.Submit(func() {
		data := tensor.Elems[T](inout)
		for off := range view.Sequential() {
			data[off] = f(data[off])
		}
	})
}

// Map1 applies a unary operator producing a new output.
func Map1[T, R tensor.DType](q engine.Queue, a, out *tensor.Raw, f func(T) R) error {
	if err := sameShape("Map1", out.View(), a.View()); err != nil {
		return err
	}
	if err := knownLayouts("Map1", out.View(), a.View()); err != nil {
		return err
	}
	if err := stage(q, []*tensor.Raw{out}, a); err != nil {
		return err
	}
	if bases, ok := denseBases(out.View(), a.View()); ok {
		n := out.View().NumElements()
		return q.Submit(func() {
			av := tensor.Elems[T](a)
			ov := tensor.Elems[R](out)
			parallel.For(n, func(i int) {
				ov[bases[0]+i] = f(av[bases[1]+i])
			}, parallel.DefaultConfig())
		})
	}
	seqs := reconcile(out.View(), a.View())
	return q.Submit(func() {
		av := tensor.Elems[T](a)
		ov := tensor.Elems[R](out)
		next, stop := iter.Pull(seqs[1])
		defer stop()
		for offOut := range seqs[0] {
			offA, _ := next()
			ov[offOut] = f(av[offA])
		}
	})
}

// Map2 applies a binary operator element-wise: out[i] = f(a[i], b[i]).
// Shapes must already match; the dispatcher is broadcast-free.
func Map2[T, R tensor.DType](q engine.Queue, a, b, out *tensor.Raw, f func(T, T) R) error {
	if err := sameShape("Map2", out.View(), a.View(), b.View()); err != nil {
		return err
	}
	if err := knownLayouts("Map2", out.View(), a.View(), b.View()); err != nil {
		return err
	}
	if err := stage(q, []*tensor.Raw{out}, a, b); err != nil {
		return err
	}
	if bases, ok := denseBases(out.View(), a.View(), b.View()); ok {
		n := out.View().NumElements()
		return q.Submit(func() {
			av := tensor.Elems[T](a)
			bv := tensor.Elems[T](b)
			ov := tensor.Elems[R](out)
			parallel.For(n, func(i int) {
				ov[bases[0]+i] = f(av[bases[1]+i], bv[bases[2]+i])
			}, parallel.DefaultConfig())
		})
	}
	seqs := reconcile(out.View(), a.View(), b.View())
	return q.Submit(func() {
		av := tensor.Elems[T](a)
		bv := tensor.Elems[T](b)
		ov := tensor.Elems[R](out)
		nextA, stopA := iter.Pull(seqs[1])
		defer stopA()
		nextB, stopB := iter.Pull(seqs[2])
		defer stopB()
		for offOut := range seqs[0] {
			offA, _ := nextA()
			offB, _ := nextB()
			ov[offOut] = f(av[offA], bv[offB])
		}
	})
}

// Map3 applies a ternary operator element-wise:
// out[i] = f(a[i], b[i], c[i]).
func Map3[T, R tensor.DType](q engine.Queue, a, b, c, out *tensor.Raw, f func(T, T, T) R) error {
	if err := sameShape("Map3", out.View(), a.View(), b.View(), c.View()); err != nil {
		return err
	}
	if err := knownLayouts("Map3", out.View(), a.View(), b.View(), c.View()); err != nil {
		return err
	}
	if err := stage(q, []*tensor.Raw{out}, a, b, c); err != nil {
		return err
	}
	seqs := reconcile(out.View(), a.View(), b.View(), c.View())
	return q.Submit(func() {
		av := tensor.Elems[T](a)
		bv := tensor.Elems[T](b)
		cv := tensor.Elems[T](c)
		ov := tensor.Elems[R](out)
		nextA, stopA := iter.Pull(seqs[1])
		defer stopA()
		nextB, stopB := iter.Pull(seqs[2])
		defer stopB()
		nextC, stopC := iter.Pull(seqs[3])
		defer stopC()
		for offOut := range seqs[0] {
			offA, _ := nextA()
			offB, _ := nextB()
			offC, _ := nextC()
			ov[offOut] = f(av[offA], bv[offB], cv[offC])
		}
	})
}

// Map2Dual applies a ternary operator producing two outputs
// simultaneously: (out1[i], out2[i]) = f(a[i], b[i], c[i]). This is the
// fused operator+gradient path: the backward rules feed (a, b, upstream)
// and collect both operand gradients in one traversal.
func Map2Dual[T tensor.DType](q engine.Queue, a, b, c, out1, out2 *tensor.Raw, f func(T, T, T) (T, T)) error {
	views := []tensor.StridedView{out1.View(), out2.View(), a.View(), b.View(), c.View()}
	if err := sameShape("Map2Dual", views...); err != nil {
		return err
	}
	if err := knownLayouts("Map2Dual", views...); err != nil {
		return err
	}
	if err := stage(q, []*tensor.Raw{out1, out2}, a, b, c); err != nil {
		return err
	}
	seqs := reconcile(views...)
	return q.Submit(func() {
		o1 := tensor.Elems[T](out1)
		o2 := tensor.Elems[T](out2)
		av := tensor.Elems[T](a)
		bv := tensor.Elems[T](b)
		cv := tensor.Elems[T](c)
		next2, stop2 := iter.Pull(seqs[1])
		defer stop2()
		nextA, stopA := iter.Pull(seqs[2])
		defer stopA()
		nextB, stopB := iter.Pull(seqs[3])
		defer stopB()
		nextC, stopC := iter.Pull(seqs[4])
		defer stopC()
		for off1 := range seqs[0] {
			off2, _ := next2()
			offA, _ := nextA()
			offB, _ := nextB()
			offC, _ := nextC()
			o1[off1], o2[off2] = f(av[offA], bv[offB], cv[offC])
		}
	})
}

// Copy materializes src's logical elements into dst, reconciling layouts.
// Unlike Queue.CopyAsync this is element-wise, so it converts between
// orders and compacts strided slices.
func Copy[T tensor.DType](q engine.Queue, src, dst *tensor.Raw) error {
	return Map1(q, src, dst, func(x T) T { return x })
}
