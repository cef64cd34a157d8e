// Package chunk turns delegated memory blocks into bump allocated chunks and
// keeps track of which registry owns each of them.
package chunk

import (
	"fmt"
	"sync/atomic"
)

// ID is a stable handle of a chunk inside its Arena.
type ID int32

const None ID = -1

type Chunk struct {
	id        ID
	base      uintptr
	size      uintptr
	cursor    atomic.Uintptr
	dedicated bool
	next      ID
	owner     *Registry
}

func (c *Chunk) ID() ID {
	return c.id
}

func (c *Chunk) Base() uintptr {
	return c.base
}

func (c *Chunk) Size() uintptr {
	return c.size
}

func (c *Chunk) End() uintptr {
	return c.base + c.size
}

// Used is the cursor offset, the number of bytes handed out so far.
func (c *Chunk) Used() uintptr {
	return c.cursor.Load()
}

func (c *Chunk) Free() uintptr {
	return c.size - c.cursor.Load()
}

// Top is the address of the next free byte.
func (c *Chunk) Top() uintptr {
	return c.base + c.cursor.Load()
}

// Dedicated reports whether the chunk was sized for one oversized request.
func (c *Chunk) Dedicated() bool {
	return c.dedicated
}

func (c *Chunk) Owner() *Registry {
	return c.owner
}

func (c *Chunk) Contains(addr uintptr) bool {
	return addr >= c.base && addr < c.base+c.size
}

// Bump hands out n bytes. Concurrent callers never receive overlapping
// ranges; false means the chunk cannot fit n more bytes.
func (c *Chunk) Bump(n uintptr) (uintptr, bool) {
	for {
		cur := c.cursor.Load()
		if n > c.size-cur {
			return 0, false
		}
		if c.cursor.CompareAndSwap(cur, cur+n) {
			return c.base + cur, true
		}
	}
}

// BumpAtMost hands out between min and n bytes, as much as is left.
func (c *Chunk) BumpAtMost(min, n uintptr) (uintptr, uintptr, bool) {
	for {
		cur := c.cursor.Load()
		free := c.size - cur
		if free < min {
			return 0, 0, false
		}
		take := n
		if take > free {
			take = free
		}
		if c.cursor.CompareAndSwap(cur, cur+take) {
			return c.base + cur, take, true
		}
	}
}

func (c *Chunk) String() string {
	return fmt.Sprintf("chunk#%d[%#x,%#x) used:%d", c.id, c.base, c.End(), c.Used())
}
