package chunk

import (
	"github.com/pkg/errors"
)

// Registry is a linked set of chunks over an Arena. A chunk is owned by at
// most one registry at a time. Registries are not safe for concurrent
// mutation, the heap serialises access to them.
type Registry struct {
	name  string
	arena *Arena
	head  ID
	tail  ID
	count int
	bytes uintptr
}

func NewRegistry(name string, arena *Arena) *Registry {
	return &Registry{
		name:  name,
		arena: arena,
		head:  None,
		tail:  None,
	}
}

func (r *Registry) Name() string {
	return r.name
}

func (r *Registry) Len() int {
	return r.count
}

// Bytes is the total size of the chunks in the registry.
func (r *Registry) Bytes() uintptr {
	return r.bytes
}

func (r *Registry) Head() *Chunk {
	return r.arena.Get(r.head)
}

func (r *Registry) Tail() *Chunk {
	return r.arena.Get(r.tail)
}

func (r *Registry) adopt(c *Chunk) {
	if c.owner != nil {
		panic(errors.Errorf("%v already owned by registry %s", c, c.owner.name))
	}
	c.owner = r
	r.count++
	r.bytes += c.size
}

// Push links c at the head.
func (r *Registry) Push(c *Chunk) {
	r.adopt(c)
	c.next = r.head
	r.head = c.id
	if r.tail == None {
		r.tail = c.id
	}
}

// Append links c at the tail, keeping creation order.
func (r *Registry) Append(c *Chunk) {
	r.adopt(c)
	c.next = None
	if r.tail == None {
		r.head = c.id
	} else {
		r.arena.Get(r.tail).next = c.id
	}
	r.tail = c.id
}

// Unlink removes c from the registry.
func (r *Registry) Unlink(c *Chunk) bool {
	if c.owner != r {
		return false
	}
	prev := None
	for id := r.head; id != None; {
		cur := r.arena.Get(id)
		if cur == c {
			if prev == None {
				r.head = c.next
			} else {
				r.arena.Get(prev).next = c.next
			}
			if r.tail == c.id {
				r.tail = prev
			}
			c.next, c.owner = None, nil
			r.count--
			r.bytes -= c.size
			return true
		}
		prev, id = id, cur.next
	}
	return false
}

// Each visits the chunks in link order until fn returns false.
func (r *Registry) Each(fn func(c *Chunk) bool) {
	for id := r.head; id != None; {
		c := r.arena.Get(id)
		next := c.next
		if !fn(c) {
			return
		}
		id = next
	}
}

// Chunks returns the chunks in link order.
func (r *Registry) Chunks() []*Chunk {
	chunks := make([]*Chunk, 0, r.count)
	r.Each(func(c *Chunk) bool {
		chunks = append(chunks, c)
		return true
	})
	return chunks
}

// Used is the sum of the cursor offsets of every chunk.
func (r *Registry) Used() uintptr {
	used := uintptr(0)
	r.Each(func(c *Chunk) bool {
		used += c.Used()
		return true
	})
	return used
}

// ReleaseAll unlinks every chunk and hands it back to the arena.
func (r *Registry) ReleaseAll() (int, uintptr, error) {
	n, bytes := 0, uintptr(0)
	for id := r.head; id != None; {
		c := r.arena.Get(id)
		id = c.next
		c.next, c.owner = None, nil
		n++
		bytes += c.size
		if err := r.arena.Release(c); err != nil {
			return n, bytes, err
		}
	}
	r.head, r.tail, r.count, r.bytes = None, None, 0, 0
	return n, bytes, nil
}

// Index builds the address index of the registry.
func (r *Registry) Index() (*Index, error) {
	idx := NewIndex()
	var err error
	r.Each(func(c *Chunk) bool {
		err = idx.Insert(c)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}
