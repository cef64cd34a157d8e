//go:build unix

package mem

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const noCgoDefaultKind = KindMmap

// MmapHeap maps every request as its own anonymous private mapping.
type MmapHeap struct {
	lock       sync.Mutex
	mappings   map[uintptr][]byte
	align      uint64
	largePages bool
	allocSize  uint64
}

func NewMmapHeap(useLargePages bool) (*MmapHeap, error) {
	return &MmapHeap{
		mappings:   make(map[uintptr][]byte),
		align:      HeapAlignment(useLargePages),
		largePages: useLargePages,
	}, nil
}

func (h *MmapHeap) Malloc(size uint64) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	length := AlignUp(size, h.align)
	b, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil
	}
	if h.largePages {
		adviseLargePages(b)
	}
	p := unsafe.Pointer(unsafe.SliceData(b))
	h.lock.Lock()
	h.mappings[uintptr(p)] = b
	h.allocSize += length
	h.lock.Unlock()
	return p
}

func (h *MmapHeap) Free(p unsafe.Pointer) bool {
	h.lock.Lock()
	b, exist := h.mappings[uintptr(p)]
	if !exist {
		h.lock.Unlock()
		return false
	}
	delete(h.mappings, uintptr(p))
	h.allocSize -= uint64(len(b))
	h.lock.Unlock()
	return unix.Munmap(b) == nil
}

func (h *MmapHeap) GetAllocSize() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.allocSize
}
