//go:build !cgo
// +build !cgo

package mem

import (
	"unsafe"

	"github.com/pkg/errors"
)

const DefaultKind = noCgoDefaultKind

type CHeap struct{}

func NewCHeap() (*CHeap, error) {
	return nil, errors.Wrap(ErrUnsupportedHeap, "c heap requires cgo")
}

func (h *CHeap) Malloc(size uint64) unsafe.Pointer {
	return nil
}

func (h *CHeap) Free(p unsafe.Pointer) bool {
	return false
}

func (h *CHeap) GetAllocSize() uint64 {
	return 0
}
