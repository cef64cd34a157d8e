package chunk

import (
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flswld/bridged/mem"
)

func newTestArena(t *testing.T) *Arena {
	d, err := mem.NewDelegate(mem.DefaultKind, mem.HeapOption{})
	require.NoError(t, err)
	return NewArena(d)
}

func TestChunkBump(t *testing.T) {
	arena := newTestArena(t)
	c, err := arena.New(64, false)
	require.NoError(t, err)
	assert.Equal(t, uintptr(64), c.Size())
	assert.Equal(t, uintptr(0), c.Used())

	a, ok := c.Bump(32)
	require.True(t, ok)
	assert.Equal(t, c.Base(), a)
	b, ok := c.Bump(24)
	require.True(t, ok)
	assert.Equal(t, c.Base()+32, b)
	_, ok = c.Bump(16)
	assert.False(t, ok)
	assert.Equal(t, uintptr(56), c.Used())
	assert.Equal(t, uintptr(8), c.Free())
	assert.Equal(t, c.Base()+56, c.Top())

	p, n, ok := c.BumpAtMost(8, 32)
	require.True(t, ok)
	assert.Equal(t, c.Base()+56, p)
	assert.Equal(t, uintptr(8), n)
	_, _, ok = c.BumpAtMost(8, 32)
	assert.False(t, ok)
	assert.True(t, c.Contains(c.Base()+63))
	assert.False(t, c.Contains(c.End()))
}

func TestChunkBumpConcurrent(t *testing.T) {
	arena := newTestArena(t)
	c, err := arena.New(64*1024, false)
	require.NoError(t, err)

	const workers, each = 8, 1000
	results := make([][]uintptr, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				p, ok := c.Bump(8)
				if !ok {
					return
				}
				results[w] = append(results[w], p)
			}
		}(w)
	}
	wg.Wait()

	var all []uintptr
	for _, r := range results {
		all = append(all, r...)
	}
	assert.Equal(t, workers*each, len(all))
	assert.Equal(t, uintptr(workers*each*8), c.Used())
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	assert.Equal(t, c.Base(), all[0])
	for i := 1; i < len(all); i++ {
		assert.Equal(t, all[i-1]+8, all[i])
	}
}

func TestRegistry(t *testing.T) {
	arena := newTestArena(t)
	r := NewRegistry("active", arena)
	c1, _ := arena.New(128, false)
	c2, _ := arena.New(128, false)
	c3, _ := arena.New(256, true)
	r.Push(c1)
	r.Push(c2)
	r.Append(c3)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uintptr(512), r.Bytes())
	assert.Equal(t, []*Chunk{c2, c1, c3}, r.Chunks())
	assert.Equal(t, c2, r.Head())
	assert.Equal(t, c3, r.Tail())
	assert.Equal(t, r, c1.Owner())

	c1.Bump(16)
	c3.Bump(100)
	assert.Equal(t, uintptr(116), r.Used())

	assert.Panics(t, func() { r.Push(c1) })

	assert.True(t, r.Unlink(c3))
	assert.False(t, r.Unlink(c3))
	assert.Equal(t, c1, r.Tail())
	assert.Equal(t, []*Chunk{c2, c1}, r.Chunks())
	require.NoError(t, arena.Release(c3))

	err := arena.Release(c1)
	assert.True(t, errors.Is(err, ErrStillLinked))

	n, bytes, err := r.ReleaseAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uintptr(256), bytes)
	assert.Equal(t, 0, r.Len())
	live, liveBytes := arena.Live()
	assert.Equal(t, 0, live)
	assert.Equal(t, uintptr(0), liveBytes)
	assert.Equal(t, uint64(3), arena.Delegate().Stats().Released)
}

func TestArenaReusesSlots(t *testing.T) {
	arena := newTestArena(t)
	c1, _ := arena.New(64, false)
	c2, _ := arena.New(64, false)
	require.NoError(t, arena.Release(c1))
	c3, _ := arena.New(64, false)
	assert.Equal(t, c1.ID(), c3.ID())
	assert.Equal(t, c3, arena.Get(c3.ID()))
	assert.Equal(t, c2, arena.Get(c2.ID()))
	assert.Nil(t, arena.Get(None))
	assert.Error(t, arena.Release(c1))
}

func TestIndex(t *testing.T) {
	mk := func(base, size uintptr) *Chunk {
		return &Chunk{base: base, size: size, next: None}
	}
	idx := NewIndex()
	a, b, c := mk(0x3000, 0x1000), mk(0x1000, 0x1000), mk(0x8000, 0x4000)
	require.NoError(t, idx.Insert(a))
	require.NoError(t, idx.Insert(b))
	require.NoError(t, idx.Insert(c))
	assert.Equal(t, 3, idx.Len())

	assert.Equal(t, b, idx.Lookup(0x1000))
	assert.Equal(t, b, idx.Lookup(0x1fff))
	assert.Nil(t, idx.Lookup(0x2000))
	assert.Equal(t, a, idx.Lookup(0x3008))
	assert.Equal(t, c, idx.Lookup(0xbfff))
	assert.Nil(t, idx.Lookup(0xc000))
	assert.Nil(t, idx.Lookup(0))

	err := idx.Insert(mk(0x3800, 0x100))
	assert.True(t, errors.Is(err, ErrOverlap))
	err = idx.Insert(mk(0x7000, 0x1001))
	assert.True(t, errors.Is(err, ErrOverlap))
	assert.NoError(t, idx.Insert(mk(0x7000, 0x1000)))
}
