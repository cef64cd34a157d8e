package mem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoHeap(t *testing.T) {
	var goHeap Heap = NewGoHeap()
	p := MallocType[uint8](goHeap, 1*MB)
	require.True(t, p != nil)
	assert.Equal(t, uint64(1*MB), goHeap.GetAllocSize())
	for i := 0; i < 1*MB; i++ {
		v := OffsetType[uint8](p, int64(i))
		assert.Equal(t, uint8(0), *v)
		*v = 0xFF
	}
	for i := 0; i < 1*MB; i++ {
		if *OffsetType[uint8](p, int64(i)) != 0xFF {
			t.Fatalf("byte %d lost", i)
		}
	}
	assert.True(t, FreeType[uint8](goHeap, p))
	assert.False(t, FreeType[uint8](goHeap, p))
	assert.Equal(t, uint64(0), goHeap.GetAllocSize())
}

func TestGoHeapRoundsToWords(t *testing.T) {
	goHeap := NewGoHeap()
	p := goHeap.Malloc(13)
	require.True(t, p != nil)
	assert.Equal(t, uintptr(0), uintptr(p)%8)
	assert.Equal(t, uint64(16), goHeap.GetAllocSize())
	assert.True(t, goHeap.Malloc(0) == nil)
	goHeap.Free(p)
}

func TestMemCpy(t *testing.T) {
	heap := newSystemHeap(t)
	ptr1 := uintptr(heap.Malloc(4 * KB))
	ptr2 := uintptr(heap.Malloc(4 * KB))
	src := Bytes(ptr1, 4*KB)
	for i := range src {
		src[i] = byte(i)
	}
	MemCpy(ptr2, ptr1, 4*KB)
	assert.Equal(t, src, Bytes(ptr2, 4*KB))
	MemZero(ptr2, 4*KB)
	assert.Equal(t, make([]byte, 4*KB), Bytes(ptr2, 4*KB))
	heap.Free(unsafe.Pointer(ptr1))
	heap.Free(unsafe.Pointer(ptr2))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(0, 8))
	assert.Equal(t, uint64(8), AlignUp(1, 8))
	assert.Equal(t, uint64(4096), AlignUp(4096, 4096))
	assert.Equal(t, uint64(8192), AlignUp(4097, 4096))
	assert.Equal(t, uint64(5), AlignUp(5, 0))
}
