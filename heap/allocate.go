package heap

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/flswld/bridged/chunk"
	"github.com/flswld/bridged/logger"
	"github.com/flswld/bridged/object"
)

const maxAllocWords = ^uintptr(0) / object.WordSize

func wordBytes(words uintptr) (uintptr, error) {
	if words == 0 || words > maxAllocWords {
		return 0, errors.Wrapf(ErrInvalidSize, "%d words", words)
	}
	return words * object.WordSize, nil
}

// Allocate hands out words zeroed words. Many goroutines may allocate at the
// same time; they never receive overlapping ranges.
func (h *Heap) Allocate(words uintptr) (uintptr, error) {
	size, err := wordBytes(words)
	if err != nil {
		return 0, err
	}
	if err := h.failed(); err != nil {
		return 0, err
	}
	c := h.current.Load()
	if c != nil {
		if addr, ok := c.Bump(size); ok {
			h.used.Add(int64(size))
			return addr, nil
		}
	}
	return h.allocateSlow(size, c)
}

// allocateSlow replaces the exhausted chunk seen by the caller. The rest of
// the old chunk is abandoned until the next collection. A request sized
// chunk is full after its one allocation and never becomes current.
func (h *Heap) allocateSlow(size uintptr, seen *chunk.Chunk) (uintptr, error) {
	h.growLock.Lock()
	defer h.growLock.Unlock()
	if err := h.usable(); err != nil {
		return 0, err
	}
	// another goroutine may have linked a fresh chunk in the meantime
	if cur := h.current.Load(); cur != nil && cur != seen {
		if addr, ok := cur.Bump(size); ok {
			h.used.Add(int64(size))
			return addr, nil
		}
	}
	c, err := h.newMutatorChunk(size)
	if err != nil {
		return 0, err
	}
	addr, _ := c.Bump(size)
	if !c.Dedicated() {
		h.current.Store(c)
	}
	h.used.Add(int64(size))
	return addr, nil
}

func (h *Heap) newMutatorChunk(request uintptr) (*chunk.Chunk, error) {
	size, dedicated := h.segment, false
	if request > h.segment {
		size, dedicated = request, true
	}
	if committed := h.active.Bytes(); committed+size > h.maxHeap || committed+size < committed {
		return nil, errors.Wrapf(ErrOverheadLimit, "committed %s + chunk %s exceeds max heap %s",
			humanize.IBytes(uint64(committed)), humanize.IBytes(uint64(size)), humanize.IBytes(uint64(h.maxHeap)))
	}
	c, err := h.arena.New(size, dedicated)
	if err != nil {
		return nil, withKind(ErrOutOfMemory, err)
	}
	h.active.Push(c)
	if h.config.DebugLog {
		logger.Debug("new chunk %v dedicated:%v, active chunks:%d", c, dedicated, h.active.Len())
	}
	return c, nil
}

// AllocateObject allocates and formats an object with refs reference slots
// followed by payloadWords words.
func (h *Heap) AllocateObject(refs, payloadWords uintptr) (uintptr, error) {
	if refs > object.MaxRefs || payloadWords > object.MaxWords {
		return 0, errors.Wrapf(ErrInvalidSize, "object with %d refs and %d payload words", refs, payloadWords)
	}
	words := object.Words(refs, payloadWords)
	if words > object.MaxWords {
		return 0, errors.Wrapf(ErrInvalidSize, "object of %d words", words)
	}
	addr, err := h.Allocate(words)
	if err != nil {
		return 0, err
	}
	object.Init(addr, words, refs)
	return addr, nil
}

// AllocateTLAB hands out a thread local buffer of requestedWords, or of
// whatever is left in the current chunk if that is at least minWords.
func (h *Heap) AllocateTLAB(minWords, requestedWords uintptr) (uintptr, uintptr, error) {
	if minWords > requestedWords {
		return 0, 0, errors.Wrapf(ErrInvalidSize, "tlab min %d > requested %d", minWords, requestedWords)
	}
	minSize, err := wordBytes(minWords)
	if err != nil {
		return 0, 0, err
	}
	size, err := wordBytes(requestedWords)
	if err != nil {
		return 0, 0, err
	}
	if err := h.failed(); err != nil {
		return 0, 0, err
	}
	c := h.current.Load()
	if c != nil {
		if addr, n, ok := c.BumpAtMost(minSize, size); ok {
			h.used.Add(int64(n))
			return addr, n / object.WordSize, nil
		}
	}
	addr, err := h.allocateSlow(size, c)
	if err != nil {
		return 0, 0, err
	}
	return addr, requestedWords, nil
}

// AllocateScratch obtains a block that is never scanned nor moved. It must
// be given back with Deallocate and must never be referenced by a root.
func (h *Heap) AllocateScratch(words uintptr) (uintptr, error) {
	size, err := wordBytes(words)
	if err != nil {
		return 0, err
	}
	h.growLock.Lock()
	defer h.growLock.Unlock()
	if err := h.usable(); err != nil {
		return 0, err
	}
	c, err := h.arena.New(size, true)
	if err != nil {
		return 0, withKind(ErrOutOfMemory, err)
	}
	c.Bump(size)
	h.scratch.Push(c)
	return c.Base(), nil
}

// Deallocate gives a block straight back to the delegated allocator. It
// succeeds for scratch blocks and for request sized chunks, which hold a
// single oversized allocation. Anything else stays in place until the next
// collection and false is returned.
func (h *Heap) Deallocate(addr uintptr) bool {
	h.growLock.Lock()
	defer h.growLock.Unlock()
	if h.failed() != nil {
		return false
	}
	if c := findBase(h.scratch, addr); c != nil {
		h.scratch.Unlink(c)
		h.releaseChunk(c)
		return true
	}
	c := findBase(h.active, addr)
	if c == nil || !c.Dedicated() {
		return false
	}
	h.current.CompareAndSwap(c, nil)
	h.active.Unlink(c)
	h.used.Add(-int64(c.Used()))
	h.releaseChunk(c)
	return true
}

func findBase(r *chunk.Registry, addr uintptr) *chunk.Chunk {
	var found *chunk.Chunk
	r.Each(func(c *chunk.Chunk) bool {
		if c.Base() == addr {
			found = c
			return false
		}
		return true
	})
	return found
}

func (h *Heap) releaseChunk(c *chunk.Chunk) {
	if err := h.arena.Release(c); err != nil {
		h.die(withKind(ErrRegistryCorrupted, err))
	}
}
