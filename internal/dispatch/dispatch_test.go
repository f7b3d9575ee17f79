package dispatch

import (
	"math/rand"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/fathom-ml/fathom/internal/engine"
	"github.com/fathom-ml/fathom/internal/tensor"
)

func testPlatform(t *testing.T) *engine.Platform {
	t.Helper()
	p, err := engine.NewPlatform(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

// rawFrom loads row-major logical data into a buffer with the given
// physical layout. Col-major buffers are filled through an element-wise
// copy, which converts the layout.
func rawFrom(t *testing.T, q engine.Queue, data []float32, shape tensor.Shape, order tensor.Order) *tensor.Raw {
	t.Helper()
	row, err := tensor.NewRaw(q, shape, tensor.Float32, tensor.RowMajor)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	if err := Fill(q, row, func(i int) float32 { return data[i] }); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if order == tensor.RowMajor {
		return row
	}
	defer row.Release()
	col, err := tensor.NewRaw(q, shape, tensor.Float32, order)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	if err := Copy[float32](q, row, col); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	return col
}

// logical reads r's elements in row-major logical order after draining q.
func logical(q engine.Queue, r *tensor.Raw) []float32 {
	q.WaitForCompletion()
	elems := tensor.Elems[float32](r)
	out := make([]float32, 0, r.NumElements())
	for off := range r.View().OffsetsIn(tensor.RowMajor) {
		out = append(out, elems[off])
	}
	return out
}

func newOut(t *testing.T, q engine.Queue, shape tensor.Shape, order tensor.Order) *tensor.Raw {
	t.Helper()
	r, err := tensor.NewRaw(q, shape, tensor.Float32, order)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	return r
}

func TestFillCountsInDeclaredOrder(t *testing.T) {
	q := testPlatform(t).Current()

	row := newOut(t, q, tensor.Shape{2, 2}, tensor.RowMajor)
	defer row.Release()
	if err := Fill(q, row, func(i int) float32 { return float32(i) }); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if got := logical(q, row); !slices.Equal(got, []float32{0, 1, 2, 3}) {
		t.Errorf("row-major fill = %v", got)
	}

	// In a col-major buffer the generator index follows col-major order,
	// so logical (row-major) readout sees the transposed counting.
	col := newOut(t, q, tensor.Shape{2, 2}, tensor.ColMajor)
	defer col.Release()
	if err := Fill(q, col, func(i int) float32 { return float32(i) }); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if got := logical(q, col); !slices.Equal(got, []float32{0, 2, 1, 3}) {
		t.Errorf("col-major fill = %v", got)
	}
}

func TestTransformInPlace(t *testing.T) {
	q := testPlatform(t).Current()
	r := rawFrom(t, q, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.RowMajor)
	defer r.Release()

	if err := Transform(q, r, func(x float32) float32 { return x * 10 }); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if got := logical(q, r); !slices.Equal(got, []float32{10, 20, 30, 40}) {
		t.Errorf("transform = %v", got)
	}
}

// TestMap2LayoutIndependence is the core layout property: the same logical
// operands produce the same logical result for every combination of
// physical layouts.
func TestMap2LayoutIndependence(t *testing.T) {
	q := testPlatform(t).Current()
	dataA := []float32{1, 2, 3, 4, 5, 6}
	dataB := []float32{10, 20, 30, 40, 50, 60}
	want := []float32{11, 22, 33, 44, 55, 66}
	shape := tensor.Shape{2, 3}
	orders := []tensor.Order{tensor.RowMajor, tensor.ColMajor}

	for _, oa := range orders {
		for _, ob := range orders {
			for _, oo := range orders {
				a := rawFrom(t, q, dataA, shape, oa)
				b := rawFrom(t, q, dataB, shape, ob)
				out := newOut(t, q, shape, oo)

				if err := Map2(q, a, b, out, func(x, y float32) float32 { return x + y }); err != nil {
					t.Fatalf("Map2(%v,%v,%v): %v", oa, ob, oo, err)
				}
				if got := logical(q, out); !slices.Equal(got, want) {
					t.Errorf("Map2(%v,%v,%v) = %v, want %v", oa, ob, oo, got, want)
				}
				a.Release()
				b.Release()
				out.Release()
			}
		}
	}
}

func TestMap2OnTransposedView(t *testing.T) {
	q := testPlatform(t).Current()
	// a is 2x3; its transpose is 3x2 and shares the buffer.
	a := rawFrom(t, q, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, tensor.RowMajor)
	defer a.Release()
	at := a.Transpose()
	defer at.Release()

	b := rawFrom(t, q, []float32{1, 1, 1, 1, 1, 1}, tensor.Shape{3, 2}, tensor.RowMajor)
	defer b.Release()
	out := newOut(t, q, tensor.Shape{3, 2}, tensor.RowMajor)
	defer out.Release()

	if err := Map2(q, at, b, out, func(x, y float32) float32 { return x + y }); err != nil {
		t.Fatalf("Map2: %v", err)
	}
	// Transposed logical order of a is {1,4},{2,5},{3,6}.
	if got := logical(q, out); !slices.Equal(got, []float32{2, 5, 3, 6, 4, 7}) {
		t.Errorf("Map2 over transpose = %v", got)
	}
}

func TestMapShapeMismatchFailsBeforeQueueing(t *testing.T) {
	p := testPlatform(t)
	host, _ := p.Device(0)
	q, _ := host.Queue(1) // async: the error must still be synchronous

	a := rawFrom(t, q, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.RowMajor)
	defer a.Release()
	b := rawFrom(t, q, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, tensor.RowMajor)
	defer b.Release()
	out := newOut(t, q, tensor.Shape{2, 2}, tensor.RowMajor)
	defer out.Release()

	err := Map2(q, a, b, out, func(x, y float32) float32 { return x + y })
	var pre *engine.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("shape mismatch: got %v, want *PreconditionError", err)
	}
}

func TestMap3AndMap2Dual(t *testing.T) {
	q := testPlatform(t).Current()
	shape := tensor.Shape{4}
	a := rawFrom(t, q, []float32{1, 2, 3, 4}, shape, tensor.RowMajor)
	defer a.Release()
	b := rawFrom(t, q, []float32{5, 6, 7, 8}, shape, tensor.RowMajor)
	defer b.Release()
	c := rawFrom(t, q, []float32{2, 2, 2, 2}, shape, tensor.RowMajor)
	defer c.Release()

	out := newOut(t, q, shape, tensor.RowMajor)
	defer out.Release()
	if err := Map3(q, a, b, c, out, func(x, y, g float32) float32 { return (x + y) * g }); err != nil {
		t.Fatalf("Map3: %v", err)
	}
	if got := logical(q, out); !slices.Equal(got, []float32{12, 16, 20, 24}) {
		t.Errorf("Map3 = %v", got)
	}

	g1 := newOut(t, q, shape, tensor.RowMajor)
	defer g1.Release()
	g2 := newOut(t, q, shape, tensor.ColMajor)
	defer g2.Release()
	err := Map2Dual(q, a, b, c, g1, g2, func(x, y, g float32) (float32, float32) {
		return g * y, g * x
	})
	if err != nil {
		t.Fatalf("Map2Dual: %v", err)
	}
	if got := logical(q, g1); !slices.Equal(got, []float32{10, 12, 14, 16}) {
		t.Errorf("Map2Dual first output = %v", got)
	}
	if got := logical(q, g2); !slices.Equal(got, []float32{2, 4, 6, 8}) {
		t.Errorf("Map2Dual second output = %v", got)
	}
}

func TestCopyConvertsLayout(t *testing.T) {
	q := testPlatform(t).Current()
	data := []float32{1, 2, 3, 4, 5, 6}
	a := rawFrom(t, q, data, tensor.Shape{2, 3}, tensor.RowMajor)
	defer a.Release()

	col := newOut(t, q, tensor.Shape{2, 3}, tensor.ColMajor)
	defer col.Release()
	if err := Copy[float32](q, a, col); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := logical(q, col); !slices.Equal(got, data) {
		t.Errorf("layout-converting copy = %v", got)
	}

	// Physical storage really is col-major: the buffer walks columns.
	q.WaitForCompletion()
	elems := tensor.Elems[float32](col)
	if elems[0] != 1 || elems[1] != 4 || elems[2] != 2 {
		t.Errorf("col-major physical layout = %v", elems[:6])
	}
}

func TestCopyCompactsStridedSlice(t *testing.T) {
	q := testPlatform(t).Current()
	a := rawFrom(t, q, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{3, 3}, tensor.RowMajor)
	defer a.Release()
	sub, err := a.Slice([]int{0, 1}, []int{3, 2})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	defer sub.Release()

	dense := newOut(t, q, tensor.Shape{3, 2}, tensor.RowMajor)
	defer dense.Release()
	if err := Copy[float32](q, sub, dense); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := logical(q, dense); !slices.Equal(got, []float32{2, 3, 5, 6, 8, 9}) {
		t.Errorf("compacted slice = %v", got)
	}
}

// TestEventHandoffDeliversCompleteTensor stresses the cross-queue
// contract at the dispatch level: a producer queue computes a
// many-element sum and records an event; a consumer queue waits on it
// and must never observe a partially written result, regardless of how
// the two workers interleave.
func TestEventHandoffDeliversCompleteTensor(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.QueuesPerDevice = 3
	p, err := engine.NewPlatform(cfg)
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	t.Cleanup(p.Shutdown)
	host, _ := p.Device(0)
	producer, _ := host.Queue(1)
	consumer, _ := host.Queue(2)

	const n = 4096
	const iters = 200
	shape := tensor.Shape{n}
	a := newOut(t, producer, shape, tensor.RowMajor)
	defer a.Release()
	b := newOut(t, producer, shape, tensor.RowMajor)
	defer b.Release()
	out := newOut(t, producer, shape, tensor.RowMajor)
	defer out.Release()

	rng := rand.New(rand.NewSource(1))
	ev := producer.CreateEvent(0)
	var partial atomic.Int64
	for it := 1; it <= iters; it++ {
		// a[i] + b[i] collapses to one per-iteration constant, so any
		// element left over from an earlier iteration stands out.
		want := float32(it)
		if err := Fill(producer, a, func(i int) float32 { return want + float32(i) }); err != nil {
			t.Fatalf("Fill a: %v", err)
		}
		if err := Fill(producer, b, func(i int) float32 { return -float32(i) }); err != nil {
			t.Fatalf("Fill b: %v", err)
		}
		if err := Map2(producer, a, b, out, func(x, y float32) float32 { return x + y }); err != nil {
			t.Fatalf("Map2: %v", err)
		}
		producer.Record(ev)
		if rng.Intn(2) == 0 {
			time.Sleep(time.Duration(rng.Intn(100)) * time.Microsecond)
		}
		consumer.Wait(ev)
		if err := consumer.Submit(func() {
			for _, v := range tensor.Elems[float32](out) {
				if v != want {
					partial.Add(1)
					return
				}
			}
		}); err != nil {
			t.Fatalf("consumer Submit: %v", err)
		}
		// The producer rewrites the buffers next iteration, so the
		// consumer's read must finish first.
		consumer.WaitForCompletion()
	}
	if got := partial.Load(); got != 0 {
		t.Errorf("consumer observed %d incomplete results in %d handoffs", got, iters)
	}
}

// TestAsyncDispatchOrdering checks value semantics through one queue: a
// read scheduled after a chain of writes sees the final values.
func TestAsyncDispatchOrdering(t *testing.T) {
	p := testPlatform(t)
	host, _ := p.Device(0)
	q, _ := host.Queue(1)

	r := newOut(t, q, tensor.Shape{64}, tensor.RowMajor)
	defer r.Release()

	if err := Fill(q, r, func(int) float32 { return 0 }); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := Transform(q, r, func(x float32) float32 { return x + 1 }); err != nil {
			t.Fatalf("Transform %d: %v", i, err)
		}
	}
	got := logical(q, r)
	for i, v := range got {
		if v != 100 {
			t.Fatalf("element %d = %v after 100 increments, want 100", i, v)
		}
	}
}
