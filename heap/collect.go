package heap

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/flswld/bridged/chunk"
	"github.com/flswld/bridged/logger"
	"github.com/flswld/bridged/mem"
	"github.com/flswld/bridged/object"
)

type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePauseRequested
	PhaseRootScanning
	PhaseCopying
	PhaseRetiring
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePauseRequested:
		return "pause requested"
	case PhaseRootScanning:
		return "root scanning"
	case PhaseCopying:
		return "copying"
	case PhaseRetiring:
		return "retiring"
	default:
		return "unknown"
	}
}

func (h *Heap) Phase() Phase {
	return Phase(h.phase.Load())
}

func (h *Heap) setPhase(p Phase) {
	h.phase.Store(int32(p))
}

// pause holds the state of one collection. Only the collecting goroutine
// touches it.
type pause struct {
	heap      *Heap
	from      *chunk.Registry
	fromIndex *chunk.Index
	to        *chunk.Registry
	toIndex   *chunk.Index
	// toChunks is the scan order of to-space, the order chunks were linked.
	toChunks []*chunk.Chunk
	// toCurrent receives copies that fit in a segment.
	toCurrent *chunk.Chunk
	copied    int
}

// Collect stops the world and evacuates every object reachable from the
// roots into fresh chunks. Every chunk held before the pause is given back
// to the delegate. Collect is a no-op on a closed or failed heap.
func (h *Heap) Collect(cause Cause) {
	h.pauseLock.Lock()
	defer h.pauseLock.Unlock()
	if h.usable() != nil {
		return
	}
	start := time.Now()
	h.setPhase(PhasePauseRequested)
	h.safepoint.Synchronize()
	before, fromChunks, fromBytes, copied := h.evacuateAll()
	live := uintptr(h.used.Load())
	elapsed := time.Since(start)

	h.statsLock.Lock()
	h.gcStats.Collections++
	h.gcStats.LastCause = cause
	h.gcStats.LastPause = elapsed
	h.gcStats.TotalPause += elapsed
	h.gcStats.LastLive = uint64(live)
	h.gcStats.LastReclaimed = uint64(before - live)
	h.gcStats.LastCopiedObjects = copied
	h.gcStats.LastReleasedChunks = fromChunks
	h.lastGC = time.Now()
	collections := h.gcStats.Collections
	h.statsLock.Unlock()

	h.setPhase(PhaseIdle)
	h.safepoint.Resume()

	logger.Info("gc(%d) %s: %s->%s, released %d chunks (%s), copied %d objects, pause %v",
		collections, cause, humanize.IBytes(uint64(before)), humanize.IBytes(uint64(live)),
		fromChunks, humanize.IBytes(uint64(fromBytes)), copied, elapsed)
}

// evacuateAll runs the copying phases with allocation locked out. A fatal
// error leaves the phase where it stopped and the mutators held.
func (h *Heap) evacuateAll() (before uintptr, fromChunks int, fromBytes uintptr, copied int) {
	h.growLock.Lock()
	defer h.growLock.Unlock()
	before = uintptr(h.used.Load())
	fromChunks, fromBytes = h.active.Len(), h.active.Bytes()

	h.setPhase(PhaseRootScanning)
	h.current.Store(nil)
	p := h.beginPause()
	h.roots.ForEachRoot(p.evacuate)

	h.setPhase(PhaseCopying)
	p.drain()

	h.setPhase(PhaseRetiring)
	p.retire()
	return before, fromChunks, fromBytes, p.copied
}

// CollectFull is not supported, the heap has a single copying mode.
func (h *Heap) CollectFull(clearSoftRefs bool) {
	h.die(errors.Wrapf(ErrFullCollection, "clear soft refs:%v", clearSoftRefs))
}

func (h *Heap) beginPause() *pause {
	fromIndex, err := h.active.Index()
	if err != nil {
		h.die(withKind(ErrRegistryCorrupted, err))
	}
	h.statsLock.Lock()
	generation := h.gcStats.Collections + 1
	h.statsLock.Unlock()
	return &pause{
		heap:      h,
		from:      h.active,
		fromIndex: fromIndex,
		to:        chunk.NewRegistry(fmt.Sprintf("space#%d", generation), h.arena),
		toIndex:   chunk.NewIndex(),
	}
}

// evacuate copies the object referenced from slot, unless that was already
// done, and points the slot at the copy.
func (p *pause) evacuate(slot *uintptr) {
	ref := *slot
	if ref == 0 {
		return
	}
	c := p.fromIndex.Lookup(ref)
	if c == nil {
		return
	}
	h := p.heap
	if ref >= c.Top() || ref%object.WordSize != 0 {
		h.die(errors.Wrapf(ErrCorrupted, "reference %#x beyond top of %v", ref, c))
	}
	header := object.Load(ref)
	if header.Forwarded() {
		to := header.Forwardee()
		if p.toIndex.Lookup(to) == nil {
			h.die(errors.Wrapf(ErrCorrupted, "object %#x forwarded outside to-space to %#x", ref, to))
		}
		*slot = to
		return
	}
	if !header.Valid() {
		h.die(errors.Wrapf(ErrCorrupted, "object %#x has invalid header %#x", ref, uintptr(header)))
	}
	size := header.SizeBytes()
	if size > c.Top()-ref {
		h.die(errors.Wrapf(ErrCorrupted, "object %#x of %d bytes crosses top of %v", ref, size, c))
	}
	to := p.allocate(size)
	mem.MemCpy(to, ref, uint64(size))
	object.Forward(ref, to)
	p.copied++
	*slot = to
}

// allocate takes size bytes of to-space. Objects larger than a segment get
// a chunk of their own.
func (p *pause) allocate(size uintptr) uintptr {
	if size <= p.heap.segment && p.toCurrent != nil {
		if addr, ok := p.toCurrent.Bump(size); ok {
			return addr
		}
	}
	h := p.heap
	chunkSize, dedicated := h.segment, false
	if size > h.segment {
		chunkSize, dedicated = size, true
	}
	c, err := h.arena.New(chunkSize, dedicated)
	if err != nil {
		h.die(withKind(ErrToSpaceExhausted, err))
	}
	p.to.Append(c)
	if err := p.toIndex.Insert(c); err != nil {
		h.die(withKind(ErrRegistryCorrupted, err))
	}
	p.toChunks = append(p.toChunks, c)
	if !dedicated {
		p.toCurrent = c
	}
	if h.config.DebugLog {
		logger.Debug("to-space chunk %v dedicated:%v", c, dedicated)
	}
	addr, _ := c.Bump(size)
	return addr
}

// drain scans to-space chunk by chunk, object by object, evacuating every
// reference slot. Copies land behind the scan pointer, so the loop ends when
// every chunk has been scanned up to its top.
func (p *pause) drain() {
	for i := 0; i < len(p.toChunks); i++ {
		c := p.toChunks[i]
		for scan := c.Base(); scan < c.Top(); {
			header := object.Load(scan)
			if !header.Valid() {
				p.heap.die(errors.Wrapf(ErrCorrupted, "to-space object %#x has invalid header %#x", scan, uintptr(header)))
			}
			for j := uintptr(0); j < header.Refs(); j++ {
				p.evacuate(object.Slot(object.RefSlot(scan, j)))
			}
			scan += header.SizeBytes()
		}
	}
}

// retire gives from-space back and installs to-space as the active space.
func (p *pause) retire() {
	h := p.heap
	if _, _, err := p.from.ReleaseAll(); err != nil {
		h.die(withKind(ErrRegistryCorrupted, err))
	}
	h.active = p.to
	if p.toCurrent != nil {
		h.current.Store(p.toCurrent)
	}
	h.used.Store(int64(p.to.Used()))
}

// MillisSinceLastGC is the time since the last collection ended, or since
// the heap was created.
func (h *Heap) MillisSinceLastGC() int64 {
	h.statsLock.Lock()
	defer h.statsLock.Unlock()
	return time.Since(h.lastGC).Milliseconds()
}
