// Package object defines the layout of objects living in the bridged heap.
//
// Every object begins with one header word. A live header holds the object
// size in words (header included) in the upper half of the word and the
// number of reference slots in the lower half, shifted left by one so the
// lowest bit stays clear:
//
//	| size words | refs | 0 |
//
// The reference slots directly follow the header and the payload follows the
// references. While a collection is running, an object that has been copied
// has its header replaced by a forwarding word, the new address with the
// lowest bit set. Addresses are word aligned so that bit is otherwise unused.
package object

import (
	"unsafe"
)

const (
	WordSize = unsafe.Sizeof(uintptr(0))
	WordBits = WordSize * 8

	sizeShift   = WordBits / 2
	refsMask    = uintptr(1)<<(sizeShift-1) - 1
	forwardMark = uintptr(1)

	// MaxWords is the largest object size the header can describe.
	MaxWords = uintptr(1)<<sizeShift - 1
	// MaxRefs is the largest number of reference slots.
	MaxRefs = refsMask
)

type Header uintptr

func MakeHeader(sizeWords, refs uintptr) Header {
	return Header(sizeWords<<sizeShift | (refs&refsMask)<<1)
}

func Forwarding(to uintptr) Header {
	return Header(to | forwardMark)
}

func (h Header) Forwarded() bool {
	return uintptr(h)&forwardMark != 0
}

func (h Header) Forwardee() uintptr {
	return uintptr(h) &^ forwardMark
}

func (h Header) SizeWords() uintptr {
	return uintptr(h) >> sizeShift
}

func (h Header) SizeBytes() uintptr {
	return h.SizeWords() * WordSize
}

func (h Header) Refs() uintptr {
	return (uintptr(h) >> 1) & refsMask
}

// Valid reports whether h is a well formed live header.
func (h Header) Valid() bool {
	if h.Forwarded() {
		return false
	}
	size := h.SizeWords()
	return size > 0 && h.Refs() < size
}

// Words is the object size for refs reference slots and payload words.
func Words(refs, payloadWords uintptr) uintptr {
	return 1 + refs + payloadWords
}

func word(addr uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(addr))
}

// Init writes a fresh header and clears the reference slots.
func Init(addr, sizeWords, refs uintptr) {
	*word(addr) = uintptr(MakeHeader(sizeWords, refs))
	for i := uintptr(0); i < refs; i++ {
		*word(RefSlot(addr, i)) = 0
	}
}

func Load(addr uintptr) Header {
	return Header(*word(addr))
}

func Store(addr uintptr, h Header) {
	*word(addr) = uintptr(h)
}

// Forward replaces the header at addr with a forwarding word to to.
func Forward(addr, to uintptr) {
	Store(addr, Forwarding(to))
}

func SizeBytes(addr uintptr) uintptr {
	return Load(addr).SizeBytes()
}

func Refs(addr uintptr) uintptr {
	return Load(addr).Refs()
}

// RefSlot is the address of the i-th reference slot of the object at addr.
func RefSlot(addr, i uintptr) uintptr {
	return addr + (1+i)*WordSize
}

func Slot(slot uintptr) *uintptr {
	return word(slot)
}

func Ref(addr, i uintptr) uintptr {
	return *word(RefSlot(addr, i))
}

func SetRef(addr, i, target uintptr) {
	*word(RefSlot(addr, i)) = target
}

// Payload views the non-reference words of the object at addr.
func Payload(addr uintptr) []byte {
	h := Load(addr)
	start := RefSlot(addr, h.Refs())
	n := h.SizeBytes() - (start - addr)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(start)), n)
}

// Bytes views the whole object at addr, header included.
func Bytes(addr uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), SizeBytes(addr))
}
