package chunk

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/flswld/bridged/mem"
)

var (
	ErrStillLinked = errors.New("chunk still linked into a registry")
	ErrOverlap     = errors.New("chunk address ranges overlap")
)

// Arena owns every chunk that currently backs the heap. Slots keep their ID
// for the lifetime of the chunk and are reused once the chunk is released.
type Arena struct {
	lock     sync.Mutex
	delegate *mem.Delegate
	slots    []*Chunk
	free     []ID
	live     int
	bytes    uintptr
}

func NewArena(delegate *mem.Delegate) *Arena {
	return &Arena{delegate: delegate}
}

func (a *Arena) Delegate() *mem.Delegate {
	return a.delegate
}

// New obtains a block of size bytes and wraps it in a chunk with an empty
// cursor. The chunk is not linked into any registry yet.
func (a *Arena) New(size uintptr, dedicated bool) (*Chunk, error) {
	base, err := a.delegate.Obtain(size)
	if err != nil {
		return nil, err
	}
	c := &Chunk{
		base:      base,
		size:      size,
		dedicated: dedicated,
		next:      None,
	}
	a.lock.Lock()
	if n := len(a.free); n > 0 {
		c.id = a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[c.id] = c
	} else {
		c.id = ID(len(a.slots))
		a.slots = append(a.slots, c)
	}
	a.live++
	a.bytes += size
	a.lock.Unlock()
	return c, nil
}

func (a *Arena) Get(id ID) *Chunk {
	if id == None {
		return nil
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if int(id) >= len(a.slots) {
		return nil
	}
	return a.slots[id]
}

// Release gives the chunk's block back to the delegate. A chunk still owned
// by a registry is never released.
func (a *Arena) Release(c *Chunk) error {
	if c.owner != nil {
		return errors.Wrapf(ErrStillLinked, "release %v", c)
	}
	a.lock.Lock()
	if int(c.id) >= len(a.slots) || a.slots[c.id] != c {
		a.lock.Unlock()
		return errors.Errorf("release of unknown %v", c)
	}
	a.slots[c.id] = nil
	a.free = append(a.free, c.id)
	a.live--
	a.bytes -= c.size
	a.lock.Unlock()
	a.delegate.Release(c.base, c.size)
	return nil
}

// Live is the number of chunks and their total size currently obtained.
func (a *Arena) Live() (int, uintptr) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.live, a.bytes
}
