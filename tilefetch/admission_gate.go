package tilefetch

import (
	"container/list"
	"context"
	"sync"

	"github.com/jamesrr39/camsync-app/camsync"
)

type waiter struct {
	key     camsync.TileKey
	ready   chan struct{}
	granted bool
}

// AdmissionGate bounds the number of tile requests in flight.
// Requests over the limit wait in FIFO order; a released slot is handed straight to the oldest waiter.
type AdmissionGate struct {
	mu       sync.Mutex
	capacity int
	inFlight int
	waiters  *list.List
}

func NewAdmissionGate(capacity uint) *AdmissionGate {
	if capacity == 0 {
		capacity = 1
	}

	return &AdmissionGate{
		capacity: int(capacity),
		waiters:  list.New(),
	}
}

// Acquire blocks until a slot is free, the waiter is dropped, or ctx is done.
// On success the returned release func must be called exactly once; further calls are no-ops.
func (g *AdmissionGate) Acquire(ctx context.Context, key camsync.TileKey) (func(), error) {
	g.mu.Lock()
	if g.inFlight < g.capacity && g.waiters.Len() == 0 {
		g.inFlight++
		g.mu.Unlock()
		return g.releaseFunc(), nil
	}

	w := &waiter{key: key, ready: make(chan struct{})}
	elem := g.waiters.PushBack(w)
	g.mu.Unlock()

	select {
	case <-w.ready:
		if !w.granted {
			return nil, ErrCancelled
		}
		return g.releaseFunc(), nil
	case <-ctx.Done():
		g.mu.Lock()
		defer g.mu.Unlock()

		select {
		case <-w.ready:
			// lost the race: a slot was handed over (or the waiter dropped) as ctx finished
			if w.granted {
				g.releaseLocked()
			}
		default:
			g.waiters.Remove(elem)
		}
		return nil, ErrCancelled
	}
}

func (g *AdmissionGate) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.releaseLocked()
		})
	}
}

func (g *AdmissionGate) releaseLocked() {
	front := g.waiters.Front()
	if front == nil {
		g.inFlight--
		return
	}

	w := g.waiters.Remove(front).(*waiter)
	w.granted = true
	close(w.ready)
}

// DropWaiters removes every waiting (not yet admitted) request whose key matches shouldDrop.
// Dropped requests return ErrCancelled from Acquire.
func (g *AdmissionGate) DropWaiters(shouldDrop func(key camsync.TileKey) bool) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	dropped := 0
	for elem := g.waiters.Front(); elem != nil; {
		next := elem.Next()
		w := elem.Value.(*waiter)
		if shouldDrop(w.key) {
			g.waiters.Remove(elem)
			close(w.ready)
			dropped++
		}
		elem = next
	}

	return dropped
}

// Stats returns the number of admitted and waiting requests
func (g *AdmissionGate) Stats() (inFlight, waiting int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.inFlight, g.waiters.Len()
}
