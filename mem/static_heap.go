package mem

import (
	"sync"
	"unsafe"
)

type blockHeader uint64

func (h *blockHeader) getFree() bool {
	return (uint64(*h) >> 63) == 1
}

func (h *blockHeader) setFree(free bool) {
	x := uint64(0)
	if free {
		x = 1 << 63
	}
	*h = blockHeader(x | (uint64(*h) & ((1<<64 - 1) >> 1)))
}

func (h *blockHeader) getSize() uint64 {
	return uint64(*h) & ((1<<64 - 1) >> 1)
}

func (h *blockHeader) setSize(size uint64) {
	*h = blockHeader((uint64(*h) & (1 << 63)) | (size & ((1<<64 - 1) >> 1)))
}

type block struct {
	header blockHeader
	next   uintptr
}

var blockSize = SizeOf[block]()

func blockAt(addr uintptr) *block {
	return (*block)(unsafe.Pointer(addr))
}

// StaticHeap serves first-fit blocks out of a single reservation taken from
// its parent heap. It never grows, so Malloc returns nil once the reservation
// is used up.
type StaticHeap struct {
	lock      sync.Mutex
	parent    Heap
	memory    unsafe.Pointer
	base      uintptr
	capacity  uint64
	allocSize uint64
	blockList uintptr
}

func NewStaticHeap(parent Heap, capacity uint64) *StaticHeap {
	if capacity <= blockSize {
		return nil
	}
	memory := parent.Malloc(capacity)
	if memory == nil {
		return nil
	}
	h := &StaticHeap{
		parent:   parent,
		memory:   memory,
		base:     uintptr(memory),
		capacity: capacity,
	}
	b := blockAt(h.base)
	b.header.setSize(capacity - blockSize)
	b.header.setFree(true)
	b.next = 0
	h.blockList = h.base
	return h
}

func (h *StaticHeap) Malloc(size uint64) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	size = AlignUp(size, 8)
	h.lock.Lock()
	defer h.lock.Unlock()
	for addr := h.blockList; addr != 0; addr = blockAt(addr).next {
		b := blockAt(addr)
		if !b.header.getFree() {
			continue
		}
		if size > b.header.getSize() {
			// merge the free run that follows
			for b.next != 0 {
				nb := blockAt(b.next)
				if !nb.header.getFree() {
					break
				}
				b.header.setSize(b.header.getSize() + nb.header.getSize() + blockSize)
				b.next = nb.next
				if b.header.getSize() >= size {
					break
				}
			}
			if size > b.header.getSize() {
				continue
			}
		}
		if b.header.getSize()-size > blockSize {
			naddr := addr + uintptr(blockSize) + uintptr(size)
			nb := blockAt(naddr)
			nb.header.setSize(b.header.getSize() - size - blockSize)
			nb.header.setFree(true)
			nb.next = b.next
			b.header.setSize(size)
			b.next = naddr
		}
		b.header.setFree(false)
		h.allocSize += blockSize + b.header.getSize()
		p := addr + uintptr(blockSize)
		MemZero(p, b.header.getSize())
		return unsafe.Pointer(p)
	}
	return nil
}

func (h *StaticHeap) Free(p unsafe.Pointer) bool {
	addr := uintptr(p)
	if addr < h.base+uintptr(blockSize) || addr >= h.base+uintptr(h.capacity) {
		return false
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	b := blockAt(addr - uintptr(blockSize))
	if b.header.getFree() {
		return false
	}
	b.header.setFree(true)
	h.allocSize -= blockSize + b.header.getSize()
	return true
}

func (h *StaticHeap) GetAllocSize() uint64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.allocSize
}

func (h *StaticHeap) Capacity() uint64 {
	return h.capacity
}

// Destroy gives the reservation back to the parent heap.
func (h *StaticHeap) Destroy() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.memory == nil {
		return false
	}
	ok := h.parent.Free(h.memory)
	h.memory, h.blockList, h.allocSize = nil, 0, 0
	return ok
}
