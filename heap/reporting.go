package heap

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

const (
	Kind = "BridgedCHeap"
	Name = "Bridged C-Heap"
)

// MemoryManager and MemoryPool describe serviceability beans. The heap
// exposes none.
type MemoryManager struct {
	Name string
}

type MemoryPool struct {
	Name string
	Used uint64
	Max  uint64
}

// CollectedHeap is the surface a runtime framework queries a heap through.
type CollectedHeap interface {
	Kind() string
	Name() string
	Capacity() uint64
	MaxCapacity() uint64
	Used() uint64
	IsMaximalNoGC() bool
	IsIn(addr uintptr) bool

	SupportsTLABAllocation() bool
	TLABCapacity() uint64
	TLABUsed() uint64
	UnsafeMaxTLABAlloc() uint64
	CanElideTLABStoreBarriers() bool
	CanElideInitializingStoreBarrier(addr uintptr) bool
	CardMarkMustFollowStore() bool

	MemoryManagers() []MemoryManager
	MemoryPools() []MemoryPool

	ObjectIterate(fn func(addr uintptr))
	BlockStart(addr uintptr) uintptr
	BlockSize(addr uintptr) uint64
	BlockIsObj(addr uintptr) bool
	IsScavengable(addr uintptr) bool
	IsOop(addr uintptr) bool

	RegisterCode(code uintptr)
	UnregisterCode(code uintptr)
	FlushCode()
	VerifyCode(code uintptr)

	Collect(cause Cause)
	CollectFull(clearSoftRefs bool)
	MillisSinceLastGC() int64

	PrepareForVerify()
	InitializeServiceability()
	Verify(option string)
	PrintOn(w io.Writer)
	PrintTracingInfo(w io.Writer)
}

var _ CollectedHeap = (*Heap)(nil)

func (h *Heap) Kind() string {
	return Kind
}

func (h *Heap) Name() string {
	return Name
}

func (h *Heap) Capacity() uint64 {
	return uint64(h.maxHeap)
}

func (h *Heap) MaxCapacity() uint64 {
	return uint64(h.maxHeap)
}

func (h *Heap) IsMaximalNoGC() bool {
	return false
}

// IsIn answers true for any address; the heap does not track membership for
// the framework.
func (h *Heap) IsIn(addr uintptr) bool {
	return true
}

func (h *Heap) SupportsTLABAllocation() bool {
	return true
}

func (h *Heap) TLABCapacity() uint64 {
	return 0
}

func (h *Heap) TLABUsed() uint64 {
	return 0
}

func (h *Heap) UnsafeMaxTLABAlloc() uint64 {
	return uint64(h.segment)
}

func (h *Heap) CanElideTLABStoreBarriers() bool {
	return false
}

func (h *Heap) CanElideInitializingStoreBarrier(addr uintptr) bool {
	return false
}

func (h *Heap) CardMarkMustFollowStore() bool {
	return false
}

func (h *Heap) MemoryManagers() []MemoryManager {
	return nil
}

func (h *Heap) MemoryPools() []MemoryPool {
	return nil
}

// ObjectIterate does not walk the heap. Chunks contain abandoned gaps that
// carry no header.
func (h *Heap) ObjectIterate(fn func(addr uintptr)) {}

func (h *Heap) BlockStart(addr uintptr) uintptr {
	return 0
}

func (h *Heap) BlockSize(addr uintptr) uint64 {
	return 0
}

func (h *Heap) BlockIsObj(addr uintptr) bool {
	return false
}

func (h *Heap) IsScavengable(addr uintptr) bool {
	return false
}

func (h *Heap) IsOop(addr uintptr) bool {
	return true
}

func (h *Heap) RegisterCode(code uintptr) {}

func (h *Heap) UnregisterCode(code uintptr) {}

func (h *Heap) FlushCode() {}

func (h *Heap) VerifyCode(code uintptr) {}

func (h *Heap) PrepareForVerify() {}

func (h *Heap) InitializeServiceability() {}

func (h *Heap) Verify(option string) {}

func (h *Heap) PrintOn(w io.Writer) {
	_, _ = fmt.Fprintf(w, "%s total %s, used %s\n", Name, humanize.IBytes(h.Capacity()), humanize.IBytes(h.Used()))
}

func (h *Heap) PrintTracingInfo(w io.Writer) {}
