package heap

import (
	"os"

	"github.com/pkg/errors"

	"github.com/flswld/bridged/logger"
)

var (
	ErrInvalidConfig      = errors.New("invalid heap config")
	ErrInvalidSize        = errors.New("invalid allocation size")
	ErrOverheadLimit      = errors.New("gc overhead limit exceeded")
	ErrOutOfMemory        = errors.New("out of memory")
	ErrClosed             = errors.New("heap closed")
	ErrAlreadyInitialized = errors.New("heap already initialized")

	ErrCorrupted         = errors.New("heap corrupted")
	ErrToSpaceExhausted  = errors.New("to-space exhausted during copy")
	ErrFullCollection    = errors.New("full collection is not supported")
	ErrRegistryCorrupted = errors.New("chunk registry corrupted")
	ErrFailed            = errors.New("heap failed")
)

// kindError tags an underlying error with a heap sentinel. errors.Is matches
// the sentinel as well as anything in the underlying chain.
type kindError struct {
	kind  error
	cause error
}

func withKind(kind, cause error) error {
	return &kindError{kind: kind, cause: cause}
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.cause
}

func (e *kindError) Cause() error {
	return e.cause
}

// IsOutOfMemory reports whether err is an allocation failure the caller may
// react to, for example by requesting a collection.
func IsOutOfMemory(err error) bool {
	return errors.Is(err, ErrOverheadLimit) || errors.Is(err, ErrOutOfMemory)
}

type Cause int

const (
	CauseExplicit Cause = iota
	CauseAllocationFailure
	CauseHeapInspection
	CauseHeapDump
	CauseShutdown
)

func (c Cause) String() string {
	switch c {
	case CauseExplicit:
		return "explicit"
	case CauseAllocationFailure:
		return "allocation failure"
	case CauseHeapInspection:
		return "heap inspection"
	case CauseHeapDump:
		return "heap dump"
	case CauseShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// defaultFatal ends the process, a half copied heap cannot be resumed.
func defaultFatal(err error) {
	logger.Error("fatal heap error: %+v", err)
	logger.Error("%s", logger.Stack())
	logger.CloseLogger()
	os.Exit(2)
}

// die reports an unrecoverable condition and never returns. The heap is
// marked failed first: if a custom hook or a recover swallows the panic,
// later calls fail with ErrFailed, while mutators held by the safepoint stay
// stopped.
func (h *Heap) die(err error) {
	failure := withKind(ErrFailed, err)
	h.failure.CompareAndSwap(nil, &failure)
	h.fatal(err)
	panic(err)
}

// usable reports why the heap takes no more work, if it does not.
func (h *Heap) usable() error {
	if err := h.failed(); err != nil {
		return err
	}
	if h.closed.Load() {
		return ErrClosed
	}
	return nil
}

// failed returns the error that stopped the heap, or nil.
func (h *Heap) failed() error {
	if p := h.failure.Load(); p != nil {
		return *p
	}
	return nil
}
