package mem

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/flswld/bridged/logger"
)

// Delegate adapts a Heap to the block interface the chunk layer needs. A
// failed Obtain is reported once and never retried.
type Delegate struct {
	heap          Heap
	kind          string
	obtained      atomic.Uint64
	released      atomic.Uint64
	obtainedBytes atomic.Uint64
	releasedBytes atomic.Uint64
	debugLog      atomic.Bool
}

func NewDelegate(kind string, opt HeapOption) (*Delegate, error) {
	heap, err := NewHeap(kind, opt)
	if err != nil {
		return nil, err
	}
	return &Delegate{heap: heap, kind: kind}, nil
}

// NewDelegateWithHeap wraps an already constructed heap.
func NewDelegateWithHeap(kind string, heap Heap) *Delegate {
	return &Delegate{heap: heap, kind: kind}
}

func (d *Delegate) Kind() string {
	return d.kind
}

func (d *Delegate) Heap() Heap {
	return d.heap
}

// SetDebugLog traces every obtained and released block at DEBUG level.
func (d *Delegate) SetDebugLog(enable bool) {
	d.debugLog.Store(enable)
}

func (d *Delegate) Obtain(size uintptr) (uintptr, error) {
	if size == 0 {
		return 0, errors.New("obtain zero sized block")
	}
	words := AlignUp(uint64(size), SizeOf[uintptr]()) / SizeOf[uintptr]()
	p := MallocType[uintptr](d.heap, words)
	if p == nil {
		return 0, errors.Wrapf(ErrExhausted, "%s heap cannot supply %d bytes", d.kind, size)
	}
	d.obtained.Add(1)
	d.obtainedBytes.Add(uint64(size))
	if d.debugLog.Load() {
		logger.Debug("[Obtain] heap:%s size:%d ptr:%p", d.kind, size, p)
	}
	return uintptr(unsafe.Pointer(p)), nil
}

// Release hands a block back. Heaps that cannot free are tolerated: the block
// is simply forgotten.
func (d *Delegate) Release(base uintptr, size uintptr) {
	if base == 0 {
		return
	}
	FreeType(d.heap, (*uintptr)(unsafe.Pointer(base)))
	d.released.Add(1)
	d.releasedBytes.Add(uint64(size))
	if d.debugLog.Load() {
		logger.Debug("[Release] heap:%s size:%d ptr:%#x", d.kind, size, base)
	}
}

type DelegateStats struct {
	Obtained      uint64
	Released      uint64
	ObtainedBytes uint64
	ReleasedBytes uint64
	HeapAllocSize uint64
}

func (d *Delegate) Stats() DelegateStats {
	return DelegateStats{
		Obtained:      d.obtained.Load(),
		Released:      d.released.Load(),
		ObtainedBytes: d.obtainedBytes.Load(),
		ReleasedBytes: d.releasedBytes.Load(),
		HeapAllocSize: d.heap.GetAllocSize(),
	}
}
