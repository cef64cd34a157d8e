package mem

import (
	"unsafe"

	"github.com/pkg/errors"
)

const (
	B  = 1
	KB = 1024 * B
	MB = 1024 * KB
	GB = 1024 * MB
)

const (
	KindC      = "c"
	KindMmap   = "mmap"
	KindGo     = "go"
	KindStatic = "static"
)

var (
	ErrUnsupportedHeap = errors.New("unsupported heap kind")
	ErrExhausted       = errors.New("delegated heap exhausted")
)

// Heap is a general purpose memory source. Memory returned by Malloc is
// zeroed and word aligned and is never scanned by the Go garbage collector.
type Heap interface {
	Malloc(size uint64) unsafe.Pointer
	Free(p unsafe.Pointer) bool
	GetAllocSize() uint64
}

type HeapOption struct {
	UseLargePages  bool   // 大页
	StaticCapacity uint64 // static堆总容量
}

// NewHeap builds the heap strategy named by kind. The choice is made once and
// the returned heap serves every later request.
func NewHeap(kind string, opt HeapOption) (Heap, error) {
	switch kind {
	case KindC:
		h, err := NewCHeap()
		if err != nil {
			return nil, err
		}
		return h, nil
	case KindMmap:
		h, err := NewMmapHeap(opt.UseLargePages)
		if err != nil {
			return nil, err
		}
		return h, nil
	case KindGo:
		return NewGoHeap(), nil
	case KindStatic:
		if opt.StaticCapacity == 0 {
			return nil, errors.Wrap(ErrUnsupportedHeap, "static heap needs a capacity")
		}
		parent, err := NewSystemHeap(opt)
		if err != nil {
			return nil, err
		}
		h := NewStaticHeap(parent, opt.StaticCapacity)
		if h == nil {
			return nil, errors.Wrapf(ErrExhausted, "reserve static heap of %d bytes", opt.StaticCapacity)
		}
		return h, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedHeap, "kind %q", kind)
	}
}

// NewSystemHeap builds the platform default heap, whose memory lives outside
// the Go heap whenever cgo or mmap is available.
func NewSystemHeap(opt HeapOption) (Heap, error) {
	return NewHeap(DefaultKind, opt)
}

func MallocType[T any](heap Heap, size uint64) *T {
	return (*T)(heap.Malloc(size * SizeOf[T]()))
}

func FreeType[T any](heap Heap, t *T) bool {
	return heap.Free(unsafe.Pointer(t))
}

func SizeOf[T any]() uint64 {
	var t T
	return uint64(unsafe.Sizeof(t))
}

func Offset(p unsafe.Pointer, offset int64) unsafe.Pointer {
	if offset > 0 {
		return unsafe.Pointer(uintptr(p) + uintptr(offset))
	} else if offset < 0 {
		return unsafe.Pointer(uintptr(p) - uintptr(-offset))
	} else {
		return p
	}
}

func OffsetType[T any](t *T, offset int64) *T {
	return (*T)(Offset(unsafe.Pointer(t), offset*int64(SizeOf[T]())))
}

// Bytes views size bytes at addr. The memory must come from a Heap.
func Bytes(addr uintptr, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

func MemCpy(dst uintptr, src uintptr, size uint64) {
	copy(Bytes(dst, size), Bytes(src, size))
}

func MemZero(dst uintptr, size uint64) {
	clear(Bytes(dst, size))
}

func AlignUp(n uint64, align uint64) uint64 {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}
