package chunk

import (
	"sort"

	"github.com/pkg/errors"
)

// Index finds the chunk containing an address. Chunks are kept sorted by
// base address; ranges never overlap.
type Index struct {
	chunks []*Chunk
}

func NewIndex() *Index {
	return &Index{}
}

func (x *Index) Len() int {
	return len(x.chunks)
}

func (x *Index) Insert(c *Chunk) error {
	i := sort.Search(len(x.chunks), func(i int) bool {
		return x.chunks[i].base >= c.base
	})
	if i > 0 && x.chunks[i-1].End() > c.base {
		return errors.Wrapf(ErrOverlap, "%v and %v", x.chunks[i-1], c)
	}
	if i < len(x.chunks) && c.End() > x.chunks[i].base {
		return errors.Wrapf(ErrOverlap, "%v and %v", c, x.chunks[i])
	}
	x.chunks = append(x.chunks, nil)
	copy(x.chunks[i+1:], x.chunks[i:])
	x.chunks[i] = c
	return nil
}

// Lookup returns the chunk whose range holds addr, or nil.
func (x *Index) Lookup(addr uintptr) *Chunk {
	i := sort.Search(len(x.chunks), func(i int) bool {
		return x.chunks[i].End() > addr
	})
	if i < len(x.chunks) && x.chunks[i].Contains(addr) {
		return x.chunks[i]
	}
	return nil
}
