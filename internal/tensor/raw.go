package tensor

import (
	"unsafe"

	"github.com/fathom-ml/fathom/internal/engine"
)

// Raw couples a reference-counted device allocation with the strided view
// describing how logical indices map into it. Views produced by Transpose,
// Reshape, and Slice share the allocation; the buffer lives until the last
// referencing Raw is released.
type Raw struct {
	mem   *engine.DeviceMemory
	view  StridedView
	dtype DataType
}

// NewRaw allocates a densely-packed buffer for shape on the queue's device
// and wraps it. Allocation failure is terminal for this request.
func NewRaw(q engine.Queue, shape Shape, dtype DataType, order Order) (*Raw, error) {
	if err := shape.Validate(); err != nil {
		return nil, engine.Errorf("NewRaw", "invalid shape: %v", err)
	}
	mem, err := q.Allocate(shape.NumElements() * dtype.Size())
	if err != nil {
		return nil, err
	}
	return &Raw{mem: mem, view: Contiguous(shape, order), dtype: dtype}, nil
}

// Memory returns the underlying allocation.
func (r *Raw) Memory() *engine.DeviceMemory { return r.mem }

// View returns the strided view.
func (r *Raw) View() StridedView { return r.view }

// DType returns the element type tag.
func (r *Raw) DType() DataType { return r.dtype }

// Shape returns the view's extents.
func (r *Raw) Shape() Shape { return r.view.Shape() }

// NumElements returns the view's logical element count.
func (r *Raw) NumElements() int { return r.view.NumElements() }

// WithView returns a new Raw sharing this allocation under a different
// view. The allocation gains a reference; release both independently.
func (r *Raw) WithView(v StridedView) *Raw {
	return &Raw{mem: r.mem.Retain(), view: v, dtype: r.dtype}
}

// Transpose returns a zero-copy view with reversed dimensions.
func (r *Raw) Transpose() *Raw {
	return r.WithView(r.view.Transpose())
}

// Reshape returns a zero-copy view with a new shape.
func (r *Raw) Reshape(shape Shape) (*Raw, error) {
	v, err := r.view.Reshape(shape)
	if err != nil {
		return nil, engine.Errorf("Reshape", "%v", err)
	}
	return r.WithView(v), nil
}

// Slice returns a zero-copy sub-range view.
func (r *Raw) Slice(starts, sizes []int) (*Raw, error) {
	v, err := r.view.Slice(starts, sizes)
	if err != nil {
		return nil, engine.Errorf("Slice", "%v", err)
	}
	return r.WithView(v), nil
}

// Release drops this Raw's reference to the allocation.
func (r *Raw) Release() { r.mem.Release() }

// Elems reinterprets the full allocation as a []T. View offsets index into
// this slice. The caller must have ensured coherency through the owning
// queue for Discrete memory.
func Elems[T DType](r *Raw) []T {
	bytes := r.mem.Bytes()
	if len(bytes) == 0 {
		return nil
	}
	var dummy T
	n := len(bytes) / int(unsafe.Sizeof(dummy))
	//nolint:gosec // zero-copy typed view; size is fixed at allocation
	return unsafe.Slice((*T)(unsafe.Pointer(&bytes[0])), n)
}
