// Package heap is a garbage collected heap that delegates raw memory to an
// external allocator. Memory is bump allocated out of chunks obtained from the
// delegate, and a stop-the-world copying collector evacuates live objects into
// fresh chunks, giving every old chunk back to the delegate.
package heap

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/flswld/bridged/chunk"
	"github.com/flswld/bridged/logger"
	"github.com/flswld/bridged/mem"
	"github.com/flswld/bridged/roots"
	"github.com/flswld/bridged/safepoint"
)

type Heap struct {
	config   Config
	segment  uintptr
	maxHeap  uintptr
	delegate *mem.Delegate
	owned    bool
	arena    *chunk.Arena

	// growLock serialises registry mutation on the slow path and is held
	// by the collector for the whole pause.
	growLock sync.Mutex
	active   *chunk.Registry
	scratch  *chunk.Registry
	current  atomic.Pointer[chunk.Chunk]
	used     atomic.Int64

	pauseLock sync.Mutex
	phase     atomic.Int32
	roots     RootScanner
	safepoint Safepoint
	fatal     func(err error)
	closed    atomic.Bool
	failure   atomic.Pointer[error]

	statsLock sync.Mutex
	gcStats   Stats
	lastGC    time.Time
}

// New builds a heap and selects its delegated allocator. No memory is
// obtained until the first allocation.
func New(cfg Config) (*Heap, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	delegate, err := mem.NewDelegate(cfg.Allocator, mem.HeapOption{
		UseLargePages:  cfg.UseLargePages,
		StaticCapacity: cfg.StaticCapacity,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s allocator", cfg.Allocator)
	}
	h := newHeap(cfg, delegate)
	h.owned = true
	return h, nil
}

// NewWithDelegate builds a heap over an existing delegate.
func NewWithDelegate(cfg Config, delegate *mem.Delegate) (*Heap, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return newHeap(cfg, delegate), nil
}

func newHeap(cfg Config, delegate *mem.Delegate) *Heap {
	h := &Heap{
		config:    cfg,
		segment:   uintptr(cfg.SegmentSize),
		maxHeap:   uintptr(cfg.MaxHeapSize),
		delegate:  delegate,
		arena:     chunk.NewArena(delegate),
		roots:     cfg.RootScanner,
		safepoint: cfg.Safepoint,
		fatal:     cfg.Fatal,
		lastGC:    time.Now(),
	}
	if h.roots == nil {
		h.roots = noRoots{}
	}
	if h.safepoint == nil {
		h.safepoint = safepoint.None{}
	}
	if h.fatal == nil {
		h.fatal = defaultFatal
	}
	if cfg.DebugLog {
		delegate.SetDebugLog(true)
	}
	h.active = chunk.NewRegistry("space#0", h.arena)
	h.scratch = chunk.NewRegistry("scratch", h.arena)
	logger.Info("heap initialized, allocator:%s segment:%s max:%s", delegate.Kind(),
		humanize.IBytes(cfg.SegmentSize), humanize.IBytes(cfg.MaxHeapSize))
	return h
}

// SetRootScanner replaces the root scanner used by later collections.
func (h *Heap) SetRootScanner(s RootScanner) {
	h.pauseLock.Lock()
	defer h.pauseLock.Unlock()
	if s == nil {
		s = noRoots{}
	}
	h.roots = s
}

func (h *Heap) Config() Config {
	return h.config
}

func (h *Heap) SegmentSize() uintptr {
	return h.segment
}

// Close gives every chunk back to the delegate.
func (h *Heap) Close() error {
	h.pauseLock.Lock()
	defer h.pauseLock.Unlock()
	if err := h.failed(); err != nil {
		return err
	}
	if !h.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	h.growLock.Lock()
	defer h.growLock.Unlock()
	h.current.Store(nil)
	n, bytes, err := h.active.ReleaseAll()
	if err != nil {
		return errors.Wrap(err, "release active chunks")
	}
	sn, sbytes, err := h.scratch.ReleaseAll()
	if err != nil {
		return errors.Wrap(err, "release scratch chunks")
	}
	h.used.Store(0)
	if static, ok := h.delegate.Heap().(*mem.StaticHeap); ok && h.owned {
		static.Destroy()
	}
	logger.Info("heap closed, released %d chunks (%s)", n+sn, humanize.IBytes(uint64(bytes+sbytes)))
	return nil
}

type noRoots struct{}

func (noRoots) ForEachRoot(visit roots.Visitor) {}

var instance atomic.Pointer[Heap]

// Initialize creates the process wide heap.
func Initialize(cfg Config) error {
	h, err := New(cfg)
	if err != nil {
		return err
	}
	if !instance.CompareAndSwap(nil, h) {
		_ = h.Close()
		return ErrAlreadyInitialized
	}
	return nil
}

// Get returns the process wide heap, nil before Initialize.
func Get() *Heap {
	return instance.Load()
}

func Teardown() error {
	h := instance.Swap(nil)
	if h == nil {
		return nil
	}
	return h.Close()
}
