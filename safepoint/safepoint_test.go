package safepoint

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGateWaitsForMutators(t *testing.T) {
	g := NewGate()
	g.Enter()

	var synced atomic.Bool
	done := make(chan struct{})
	go func() {
		g.Synchronize()
		synced.Store(true)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, synced.Load())
	g.Leave()
	<-done
	assert.True(t, g.Stopped())
	assert.Equal(t, uint64(1), g.Pauses())

	var entered atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Enter()
		entered.Store(true)
		g.Leave()
	}()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, entered.Load())
	g.Resume()
	wg.Wait()
	assert.True(t, entered.Load())
	assert.False(t, g.Stopped())
}

func TestNone(t *testing.T) {
	var n None
	n.Synchronize()
	n.Resume()
}
