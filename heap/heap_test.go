package heap

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flswld/bridged/mem"
	"github.com/flswld/bridged/object"
	"github.com/flswld/bridged/roots"
)

const testSegment = 4096

func newTestHeap(t *testing.T, cfg Config) *Heap {
	t.Helper()
	if cfg.SegmentSize == 0 {
		cfg.SegmentSize = testSegment
	}
	h, err := New(cfg)
	require.Nil(t, err)
	return h
}

// fatalRecorder keeps the error handed to the fatal hook.
type fatalRecorder struct {
	lock sync.Mutex
	err  error
}

func (r *fatalRecorder) hook(err error) {
	r.lock.Lock()
	r.err = err
	r.lock.Unlock()
}

func (r *fatalRecorder) get() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.err
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(Config{MaxHeapSize: 4096, SegmentSize: 8192})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = New(Config{Allocator: "dpdk"})
	assert.True(t, errors.Is(err, mem.ErrUnsupportedHeap))
}

func TestConfigDefaults(t *testing.T) {
	h := newTestHeap(t, Config{SegmentSize: 4097})
	defer h.Close()
	assert.Equal(t, uintptr(4104), h.SegmentSize())
	assert.Equal(t, uint64(DefaultMaxHeapSize), h.MaxCapacity())
	assert.Equal(t, mem.DefaultKind, h.Config().Allocator)
}

// 100 objects of 32 bytes share one chunk.
func TestSmallAllocations(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	var last uintptr
	for i := 0; i < 100; i++ {
		addr, err := h.AllocateObject(0, 3)
		require.Nil(t, err)
		assert.Equal(t, uintptr(0), addr%object.WordSize)
		if last != 0 {
			assert.Equal(t, last+32, addr)
		}
		last = addr
	}
	s := h.Stats()
	assert.Equal(t, 1, s.Chunks)
	assert.Equal(t, uint64(3200), s.Used)
	assert.Equal(t, uint64(3200), uint64(h.active.Used()))
}

// A request that misses the remaining space by a little gets a default
// sized chunk, and the old remainder is never handed out again.
func TestRemainderAbandoned(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	first, err := h.Allocate(500)
	require.Nil(t, err)
	old := h.current.Load()
	second, err := h.Allocate(25)
	require.Nil(t, err)
	cur := h.current.Load()
	assert.NotEqual(t, old, cur)
	assert.False(t, cur.Dedicated())
	assert.Equal(t, uintptr(testSegment), cur.Size())
	assert.Equal(t, cur.Base(), second)
	assert.Equal(t, 2, h.Stats().Chunks)

	third, err := h.Allocate(1)
	require.Nil(t, err)
	assert.Equal(t, second+200, third)
	assert.Equal(t, first+4000, old.Top())
	assert.Equal(t, uintptr(4000), old.Used())
	assert.Equal(t, uint64(4000+200+8), h.Used())
}

func TestCollectTwiceKeepsUsed(t *testing.T) {
	table := roots.NewHandleTable()
	h := newTestHeap(t, Config{RootScanner: table})
	defer h.Close()
	for i := 0; i < 20; i++ {
		addr, err := h.AllocateObject(1, 30)
		require.Nil(t, err)
		if i%3 == 0 {
			table.New(addr)
		}
	}
	h.Collect(CauseExplicit)
	used := h.Used()
	assert.Equal(t, uint64(7*32*8), used)
	h.Collect(CauseExplicit)
	assert.Equal(t, used, h.Used())
	assert.Equal(t, uint64(2), h.Stats().Collections)
}

func TestUsedMatchesRegistry(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	sizes := []uintptr{3, 100, 500, 1, 511, 2, 64}
	total := uint64(0)
	for _, words := range sizes {
		_, err := h.Allocate(words)
		require.Nil(t, err)
		total += uint64(words * object.WordSize)
	}
	assert.Equal(t, total, h.Used())
	assert.Equal(t, total, uint64(h.active.Used()))
}

func TestInvalidSize(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	_, err := h.Allocate(0)
	assert.True(t, errors.Is(err, ErrInvalidSize))
	_, err = h.Allocate(^uintptr(0))
	assert.True(t, errors.Is(err, ErrInvalidSize))
	_, err = h.AllocateObject(object.MaxRefs+1, 0)
	assert.True(t, errors.Is(err, ErrInvalidSize))
	_, _, err = h.AllocateTLAB(10, 5)
	assert.True(t, errors.Is(err, ErrInvalidSize))
	assert.Equal(t, uint64(0), h.Used())
}

func TestOversizedAllocation(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	small, err := h.Allocate(4)
	require.Nil(t, err)
	big, err := h.Allocate(1000)
	require.Nil(t, err)
	assert.NotEqual(t, small+32, big)
	s := h.Stats()
	assert.Equal(t, 2, s.Chunks)
	assert.Equal(t, uint64(testSegment+8000), s.ChunkBytes)
	assert.Equal(t, uint64(8032), s.Used)

	assert.True(t, h.Deallocate(big))
	assert.False(t, h.Deallocate(big))
	assert.False(t, h.Deallocate(small))
	assert.Equal(t, uint64(32), h.Used())
	assert.Equal(t, 1, h.Stats().Chunks)

	next, err := h.Allocate(4)
	require.Nil(t, err)
	assert.Equal(t, small+32, next)
	assert.Equal(t, uint64(64), h.Used())
	assert.Equal(t, 1, h.Stats().Chunks)
}

// A request sized chunk holds one allocation, small requests keep bumping
// the segment chunk around it.
func TestOversizedKeepsCurrentChunk(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	first, err := h.Allocate(1)
	require.Nil(t, err)
	for i := 0; i < 3; i++ {
		_, err = h.Allocate(1000)
		require.Nil(t, err)
	}
	third, err := h.Allocate(1)
	require.Nil(t, err)
	assert.Equal(t, first+8, third)
	assert.Equal(t, 4, h.Stats().Chunks)
	assert.Equal(t, uint64(testSegment+3*8000), h.Stats().ChunkBytes)
}

func TestTLAB(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	_, err := h.Allocate(500)
	require.Nil(t, err)
	addr, words, err := h.AllocateTLAB(8, 100)
	require.Nil(t, err)
	assert.Equal(t, uintptr(12), words)
	assert.Equal(t, h.current.Load().Base()+4000, addr)

	addr, words, err = h.AllocateTLAB(8, 100)
	require.Nil(t, err)
	assert.Equal(t, uintptr(100), words)
	assert.Equal(t, h.current.Load().Base(), addr)
	assert.Equal(t, uint64(4096+800), h.Used())
}

func TestScratch(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	addr, err := h.AllocateScratch(16)
	require.Nil(t, err)
	b := mem.Bytes(addr, 128)
	b[0], b[127] = 1, 2
	assert.Equal(t, uint64(0), h.Used())

	h.Collect(CauseExplicit)
	s := h.Stats()
	assert.Equal(t, 1, s.ScratchChunks)
	assert.Equal(t, byte(2), mem.Bytes(addr, 128)[127])

	assert.True(t, h.Deallocate(addr))
	assert.False(t, h.Deallocate(addr))
	assert.Equal(t, 0, h.Stats().ScratchChunks)
}

func TestConcurrentAllocation(t *testing.T) {
	h := newTestHeap(t, Config{})
	defer h.Close()
	const workers, each = 8, 500
	addrs := make([][]uintptr, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				addr, err := h.Allocate(2)
				if !assert.Nil(t, err) {
					return
				}
				*object.Slot(addr) = uintptr(w)
				*object.Slot(addr + object.WordSize) = uintptr(i)
				addrs[w] = append(addrs[w], addr)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uintptr]bool)
	for w := 0; w < workers; w++ {
		require.Equal(t, each, len(addrs[w]))
		for i, addr := range addrs[w] {
			assert.False(t, seen[addr])
			seen[addr] = true
			assert.Equal(t, uintptr(w), *object.Slot(addr))
			assert.Equal(t, uintptr(i), *object.Slot(addr + object.WordSize))
		}
	}
	assert.Equal(t, uint64(workers*each*16), h.Used())
	assert.Equal(t, h.Used(), uint64(h.active.Used()))
}

func TestOverheadLimit(t *testing.T) {
	h := newTestHeap(t, Config{MaxHeapSize: 2 * testSegment})
	defer h.Close()
	for i := 0; i < 8; i++ {
		_, err := h.AllocateObject(0, 127)
		require.Nil(t, err)
	}
	_, err := h.AllocateObject(0, 127)
	assert.True(t, errors.Is(err, ErrOverheadLimit))
	assert.True(t, IsOutOfMemory(err))
	_, err = h.Allocate(2*testSegment + 1)
	assert.True(t, errors.Is(err, ErrOverheadLimit))

	h.Collect(CauseAllocationFailure)
	assert.Equal(t, uint64(0), h.Used())
	_, err = h.AllocateObject(0, 127)
	assert.Nil(t, err)
}

func TestDelegateExhausted(t *testing.T) {
	h := newTestHeap(t, Config{Allocator: mem.KindStatic, StaticCapacity: testSegment + 16})
	_, err := h.Allocate(testSegment / object.WordSize)
	require.Nil(t, err)
	_, err = h.Allocate(1)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	assert.True(t, errors.Is(err, mem.ErrExhausted))
	assert.True(t, IsOutOfMemory(err))
	_, err = h.AllocateScratch(1)
	assert.True(t, errors.Is(err, ErrOutOfMemory))
	assert.True(t, errors.Is(err, mem.ErrExhausted))
	assert.Nil(t, h.Close())
}

func TestClose(t *testing.T) {
	h := newTestHeap(t, Config{})
	_, err := h.Allocate(10)
	require.Nil(t, err)
	_, err = h.Allocate(1000)
	require.Nil(t, err)
	require.Nil(t, h.Close())
	assert.True(t, errors.Is(h.Close(), ErrClosed))

	s := h.Stats()
	assert.Equal(t, 0, s.Chunks)
	assert.Equal(t, s.Delegate.Obtained, s.Delegate.Released)
	assert.Equal(t, uint64(0), s.Delegate.HeapAllocSize)

	_, err = h.Allocate(1)
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = h.AllocateScratch(1)
	assert.True(t, errors.Is(err, ErrClosed))
	h.Collect(CauseExplicit)
	assert.Equal(t, uint64(0), h.Stats().Collections)
}

func TestProcessHeap(t *testing.T) {
	require.Nil(t, Initialize(Config{}))
	assert.NotNil(t, Get())
	assert.True(t, errors.Is(Initialize(Config{}), ErrAlreadyInitialized))
	_, err := Get().Allocate(4)
	assert.Nil(t, err)
	assert.Nil(t, Teardown())
	assert.Nil(t, Get())
	assert.Nil(t, Teardown())
}

func TestReporting(t *testing.T) {
	h := newTestHeap(t, Config{MaxHeapSize: 64 * mem.KB})
	defer h.Close()
	var ch CollectedHeap = h
	assert.Equal(t, "BridgedCHeap", ch.Kind())
	assert.Equal(t, "Bridged C-Heap", ch.Name())
	assert.Equal(t, uint64(64*mem.KB), ch.Capacity())
	assert.Equal(t, uint64(64*mem.KB), ch.MaxCapacity())
	assert.False(t, ch.IsMaximalNoGC())
	assert.True(t, ch.IsIn(0))
	assert.True(t, ch.SupportsTLABAllocation())
	assert.Equal(t, uint64(0), ch.TLABCapacity())
	assert.Equal(t, uint64(0), ch.TLABUsed())
	assert.Equal(t, uint64(testSegment), ch.UnsafeMaxTLABAlloc())
	assert.False(t, ch.CanElideTLABStoreBarriers())
	assert.False(t, ch.CanElideInitializingStoreBarrier(0))
	assert.False(t, ch.CardMarkMustFollowStore())
	assert.Empty(t, ch.MemoryManagers())
	assert.Empty(t, ch.MemoryPools())
	assert.Equal(t, uintptr(0), ch.BlockStart(0x1000))
	assert.Equal(t, uint64(0), ch.BlockSize(0x1000))
	assert.False(t, ch.BlockIsObj(0x1000))
	assert.False(t, ch.IsScavengable(0x1000))
	assert.True(t, ch.IsOop(0x1000))

	called := false
	ch.ObjectIterate(func(addr uintptr) { called = true })
	assert.False(t, called)
	ch.RegisterCode(0)
	ch.UnregisterCode(0)
	ch.FlushCode()
	ch.VerifyCode(0)
	ch.PrepareForVerify()
	ch.InitializeServiceability()
	ch.Verify("")
	assert.GreaterOrEqual(t, ch.MillisSinceLastGC(), int64(0))
}
