package heap

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/flswld/bridged/mem"
)

type Stats struct {
	Collections        uint64
	LastCause          Cause
	LastPause          time.Duration
	TotalPause         time.Duration
	LastLive           uint64
	LastReclaimed      uint64
	LastCopiedObjects  int
	LastReleasedChunks int

	Chunks        int
	ChunkBytes    uint64
	ScratchChunks int
	Used          uint64
	Delegate      mem.DelegateStats
}

func (s Stats) String() string {
	return fmt.Sprintf("gc:%d pause:%v/%v live:%s reclaimed:%s chunks:%d(%s) scratch:%d used:%s obtained:%d(%s) released:%d(%s)",
		s.Collections, s.LastPause, s.TotalPause,
		humanize.IBytes(s.LastLive), humanize.IBytes(s.LastReclaimed),
		s.Chunks, humanize.IBytes(s.ChunkBytes), s.ScratchChunks, humanize.IBytes(s.Used),
		s.Delegate.Obtained, humanize.IBytes(s.Delegate.ObtainedBytes),
		s.Delegate.Released, humanize.IBytes(s.Delegate.ReleasedBytes))
}

// Stats is a snapshot of the collector counters and the current footprint.
func (h *Heap) Stats() Stats {
	h.growLock.Lock()
	chunks, bytes, scratch := h.active.Len(), h.active.Bytes(), h.scratch.Len()
	h.growLock.Unlock()
	h.statsLock.Lock()
	s := h.gcStats
	h.statsLock.Unlock()
	s.Chunks = chunks
	s.ChunkBytes = uint64(bytes)
	s.ScratchChunks = scratch
	s.Used = h.Used()
	s.Delegate = h.delegate.Stats()
	return s
}

// Used is the number of bytes handed out since the last collection plus the
// bytes that survived it.
func (h *Heap) Used() uint64 {
	return uint64(h.used.Load())
}
