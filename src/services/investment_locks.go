package services

import "sync"

// investmentLocks serializes reconciliation per investment. A per-investment
// mutex instead of a global one: concurrent requests against different
// investments never wait on each other.
//
// Entries are never removed, so the map grows with every investment that
// has ever seen a transaction. A mutex is a few dozen bytes, so this only
// matters at millions of investments; a cleanup would need a refcount to
// avoid freeing a mutex another goroutine is about to lock.
type investmentLocks struct {
	locks    map[int64]*sync.Mutex
	mapMutex sync.RWMutex // protects the map itself
}

func newInvestmentLocks() *investmentLocks {
	return &investmentLocks{
		locks: make(map[int64]*sync.Mutex),
	}
}

func (il *investmentLocks) Lock(investmentID int64) {
	il.mapMutex.Lock()
	if il.locks[investmentID] == nil {
		il.locks[investmentID] = &sync.Mutex{}
	}
	mu := il.locks[investmentID]
	il.mapMutex.Unlock()

	mu.Lock()
}

func (il *investmentLocks) Unlock(investmentID int64) {
	il.mapMutex.RLock()
	mu := il.locks[investmentID]
	il.mapMutex.RUnlock()

	if mu != nil {
		mu.Unlock()
	}
}
