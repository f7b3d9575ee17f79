package tensor

import (
	"testing"

	"github.com/fathom-ml/fathom/internal/engine"
)

func testQueue(t *testing.T) engine.Queue {
	t.Helper()
	p, err := engine.NewPlatform(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPlatform: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p.Current()
}

func TestNewRawAllocates(t *testing.T) {
	q := testQueue(t)

	r, err := NewRaw(q, Shape{2, 3}, Float32, RowMajor)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	defer r.Release()

	if r.NumElements() != 6 {
		t.Errorf("NumElements = %d, want 6", r.NumElements())
	}
	if r.Memory().ByteCount() != 6*Float32.Size() {
		t.Errorf("allocation = %d bytes, want %d", r.Memory().ByteCount(), 6*Float32.Size())
	}
	if got := len(Elems[float32](r)); got < 6 {
		t.Errorf("typed view has %d elements, want >= 6", got)
	}
}

func TestNewRawRejectsInvalidShape(t *testing.T) {
	q := testQueue(t)
	if _, err := NewRaw(q, Shape{2, -1}, Float32, RowMajor); err == nil {
		t.Error("negative extent accepted")
	}
}

func TestRawViewsShareAllocation(t *testing.T) {
	q := testQueue(t)

	r, err := NewRaw(q, Shape{2, 3}, Float32, RowMajor)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}

	tr := r.Transpose()
	if tr.Memory() != r.Memory() {
		t.Error("transpose copied the allocation")
	}

	// A write through one view is visible through the other.
	Elems[float32](r)[r.View().OffsetOf(1, 2)] = 42
	if got := Elems[float32](tr)[tr.View().OffsetOf(2, 1)]; got != 42 {
		t.Errorf("transposed read = %v, want 42", got)
	}

	// The allocation survives until the last view releases.
	r.Release()
	if got := Elems[float32](tr)[tr.View().OffsetOf(2, 1)]; got != 42 {
		t.Errorf("read after partial release = %v, want 42", got)
	}
	tr.Release()
}

func TestRawZeroExtentShape(t *testing.T) {
	q := testQueue(t)

	r, err := NewRaw(q, Shape{2, 0, 3}, Float32, RowMajor)
	if err != nil {
		t.Fatalf("NewRaw with zero extent: %v", err)
	}
	defer r.Release()
	if r.NumElements() != 0 {
		t.Errorf("NumElements = %d, want 0", r.NumElements())
	}
}

func TestRawSliceAndReshape(t *testing.T) {
	q := testQueue(t)

	r, err := NewRaw(q, Shape{4, 4}, Float64, RowMajor)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	defer r.Release()

	sub, err := r.Slice([]int{1, 1}, []int{2, 2})
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	defer sub.Release()
	if !sub.Shape().Equal(Shape{2, 2}) {
		t.Errorf("slice shape = %v", sub.Shape())
	}

	if _, err := sub.Reshape(Shape{4}); err == nil {
		t.Error("reshape of strided slice accepted")
	}

	flat, err := r.Reshape(Shape{16})
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	defer flat.Release()
	if flat.Memory() != r.Memory() {
		t.Error("reshape copied the allocation")
	}
}
