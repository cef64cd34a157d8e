//go:build cgo
// +build cgo

package mem

import (
	"sync/atomic"
	"unsafe"
)

// #include <stdlib.h>
import "C"

const DefaultKind = KindC

// CHeap hands out memory from the C allocator linked into the process, which
// is a different allocator instance from the one backing the Go runtime.
type CHeap struct {
	allocSize atomic.Int64
}

func NewCHeap() (*CHeap, error) {
	return new(CHeap), nil
}

func (h *CHeap) Malloc(size uint64) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	total := size + uint64(unsafe.Sizeof(uint64(0)))
	raw := C.calloc(1, C.size_t(total))
	if raw == nil {
		return nil
	}
	// the size prefix lets Free keep GetAllocSize exact
	*(*uint64)(raw) = size
	h.allocSize.Add(int64(size))
	return unsafe.Pointer(uintptr(raw) + unsafe.Sizeof(uint64(0)))
}

func (h *CHeap) Free(p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	raw := unsafe.Pointer(uintptr(p) - unsafe.Sizeof(uint64(0)))
	h.allocSize.Add(-int64(*(*uint64)(raw)))
	C.free(raw)
	return true
}

func (h *CHeap) GetAllocSize() uint64 {
	return uint64(h.allocSize.Load())
}
