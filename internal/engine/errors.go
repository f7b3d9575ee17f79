package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// AllocationError reports that a device could not satisfy a memory request.
// It is terminal for the requesting operation; the engine never retries.
type AllocationError struct {
	Device    int
	ByteCount int
	Capacity  uint64
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("device %d cannot allocate %d bytes (capacity %d)",
		e.Device, e.ByteCount, e.Capacity)
}

// PreconditionError reports a shape, rank, or layout mismatch detected
// before any work is queued. It always surfaces synchronously, even when
// the target queue is asynchronous.
type PreconditionError struct {
	Op     string
	Detail string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition violated: %s", e.Op, e.Detail)
}

// Errorf builds a PreconditionError for the named operation.
func Errorf(op, format string, args ...any) error {
	return errors.WithStack(&PreconditionError{
		Op:     op,
		Detail: fmt.Sprintf(format, args...),
	})
}

var (
	// ErrUnimplementedLayout is returned when a map/reduce is asked to
	// reconcile a pair of physical layouts it has no adapter for.
	// Failing fast here beats silently reinterpreting memory.
	ErrUnimplementedLayout = errors.New("layout combination not implemented")

	// ErrQueueClosed is returned when work is submitted to a queue whose
	// platform has already been torn down.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrInvalidDevice is returned for device indices outside the
	// platform's device table.
	ErrInvalidDevice = errors.New("invalid device index")
)
