//go:build !unix

package mem

import (
	"unsafe"

	"github.com/pkg/errors"
)

const noCgoDefaultKind = KindGo

type MmapHeap struct{}

func NewMmapHeap(useLargePages bool) (*MmapHeap, error) {
	return nil, errors.Wrap(ErrUnsupportedHeap, "mmap heap requires a unix system")
}

func (h *MmapHeap) Malloc(size uint64) unsafe.Pointer {
	return nil
}

func (h *MmapHeap) Free(p unsafe.Pointer) bool {
	return false
}

func (h *MmapHeap) GetAllocSize() uint64 {
	return 0
}
