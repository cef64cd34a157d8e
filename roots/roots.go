// Package roots holds references into the heap on behalf of the host: handle
// tables for references created at run time and statics for fixed slots.
package roots

import (
	"sync"
)

type Visitor func(slot *uintptr)

// Scanner enumerates root slots. The collector may rewrite each slot.
type Scanner interface {
	ForEachRoot(visit Visitor)
}

type Handle int32

const NilHandle Handle = -1

type HandleTable struct {
	lock  sync.Mutex
	slots []uintptr
	used  []bool
	free  []Handle
	live  int
}

func NewHandleTable() *HandleTable {
	return new(HandleTable)
}

// New stores addr in a fresh handle.
func (t *HandleTable) New(addr uintptr) Handle {
	t.lock.Lock()
	defer t.lock.Unlock()
	var h Handle
	if n := len(t.free); n > 0 {
		h = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		h = Handle(len(t.slots))
		t.slots = append(t.slots, 0)
		t.used = append(t.used, false)
	}
	t.slots[h] = addr
	t.used[h] = true
	t.live++
	return h
}

func (t *HandleTable) valid(h Handle) bool {
	return h >= 0 && int(h) < len(t.slots) && t.used[h]
}

func (t *HandleTable) Get(h Handle) uintptr {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.valid(h) {
		return 0
	}
	return t.slots[h]
}

func (t *HandleTable) Set(h Handle, addr uintptr) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.valid(h) {
		return false
	}
	t.slots[h] = addr
	return true
}

func (t *HandleTable) Delete(h Handle) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.valid(h) {
		return false
	}
	t.slots[h] = 0
	t.used[h] = false
	t.free = append(t.free, h)
	t.live--
	return true
}

func (t *HandleTable) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.live
}

func (t *HandleTable) ForEachRoot(visit Visitor) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for i := range t.slots {
		if t.used[i] {
			visit(&t.slots[i])
		}
	}
}

// Statics are slots owned by the host, registered once.
type Statics struct {
	lock  sync.Mutex
	slots []*uintptr
}

func (s *Statics) Register(slot *uintptr) {
	s.lock.Lock()
	s.slots = append(s.slots, slot)
	s.lock.Unlock()
}

func (s *Statics) ForEachRoot(visit Visitor) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, slot := range s.slots {
		visit(slot)
	}
}

// Set scans each member in order.
type Set []Scanner

func (s Set) ForEachRoot(visit Visitor) {
	for _, scanner := range s {
		scanner.ForEachRoot(visit)
	}
}
