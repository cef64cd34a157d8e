package mem

import (
	"sync"
	"unsafe"
)

// GoHeap takes memory from the Go runtime as pointer free word slices. The
// slices stay pinned in blocks until freed, so addresses handed out remain
// valid while the runtime never looks inside them. Callers turning those
// addresses back into pointers trip checkptr, so builds with -race or
// -d=checkptr must use another kind.
type GoHeap struct {
	lock      *sync.Mutex
	blocks    map[uintptr][]uint64
	allocSize *uint64
}

func NewGoHeap() GoHeap {
	return GoHeap{
		lock:      new(sync.Mutex),
		blocks:    make(map[uintptr][]uint64),
		allocSize: new(uint64),
	}
}

func (h GoHeap) Malloc(size uint64) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	words := (size + 7) / 8
	block := make([]uint64, words)
	p := unsafe.Pointer(unsafe.SliceData(block))
	h.lock.Lock()
	h.blocks[uintptr(p)] = block
	*h.allocSize += words * 8
	h.lock.Unlock()
	return p
}

func (h GoHeap) Free(p unsafe.Pointer) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	block, exist := h.blocks[uintptr(p)]
	if !exist {
		return false
	}
	delete(h.blocks, uintptr(p))
	*h.allocSize -= uint64(len(block)) * 8
	return true
}

func (h GoHeap) GetAllocSize() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return *h.allocSize
}
