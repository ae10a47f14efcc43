package scheduler

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// OwnerGuard hands out one tick token per owner. A tick that cannot get the
// token is skipped rather than queued.
type OwnerGuard struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewOwnerGuard() *OwnerGuard {
	return &OwnerGuard{sems: make(map[string]*semaphore.Weighted)}
}

// TryAcquire takes the owner's token without blocking.
func (g *OwnerGuard) TryAcquire(ownerID string) bool {
	return g.sem(ownerID).TryAcquire(1)
}

// Release returns the owner's token.
func (g *OwnerGuard) Release(ownerID string) {
	g.sem(ownerID).Release(1)
}

func (g *OwnerGuard) sem(ownerID string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sems[ownerID]
	if !ok {
		s = semaphore.NewWeighted(1)
		g.sems[ownerID] = s
	}
	return s
}
