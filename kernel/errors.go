package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is matched by the error returned from Queue.Process when
	// the queue has no middleware left. It means the caller did not check
	// Queue.Processed before processing.
	ErrOutOfRange = errors.New("kernel: middleware position out of range")

	// ErrTraversalStarted is the panic value of Queue.Prepend once the queue
	// has begun processing.
	ErrTraversalStarted = errors.New("kernel: cannot prepend middleware after traversal has started")

	// ErrNilMiddleware is the panic value when a nil middleware is added to a queue.
	ErrNilMiddleware = errors.New("kernel: nil middleware")

	// ErrNilFallback is the panic value when a kernel or pipeline is built
	// without a fallback handler.
	ErrNilFallback = errors.New("kernel: nil fallback handler")
)

// PositionError reports the cursor position that had no middleware.
type PositionError struct {
	Position int
}

// Error implements the error interface.
func (e *PositionError) Error() string {
	return fmt.Sprintf("kernel: requested middleware in position [%d] does not exist, check Processed first", e.Position)
}

// Is reports whether target is ErrOutOfRange.
func (e *PositionError) Is(target error) bool {
	return target == ErrOutOfRange
}
