// Package safepoint brings mutator goroutines to a halt so the heap can be
// mutated by the collector alone.
package safepoint

import (
	"sync"
	"sync/atomic"
)

// Gate is a cooperative safepoint. Mutators bracket every stretch of code
// that touches heap references with Enter and Leave; Synchronize blocks new
// entries and waits until every running mutator has left.
type Gate struct {
	lock    sync.RWMutex
	stopped atomic.Bool
	pauses  atomic.Uint64
}

func NewGate() *Gate {
	return new(Gate)
}

func (g *Gate) Enter() {
	g.lock.RLock()
}

func (g *Gate) Leave() {
	g.lock.RUnlock()
}

// Synchronize returns once all mutators are outside the gate.
func (g *Gate) Synchronize() {
	g.lock.Lock()
	g.stopped.Store(true)
	g.pauses.Add(1)
}

func (g *Gate) Resume() {
	g.stopped.Store(false)
	g.lock.Unlock()
}

func (g *Gate) Stopped() bool {
	return g.stopped.Load()
}

func (g *Gate) Pauses() uint64 {
	return g.pauses.Load()
}

// None is used by single threaded hosts where the caller of Collect is the
// only mutator.
type None struct{}

func (None) Synchronize() {}

func (None) Resume() {}
