// lockmap is a sharded map of per-inode reader/writer locks.
//
// The API is as if LockMap consisted of a lock for every possible uint64 (an
// inode number, in practice); LockMap.Acquire(a, excl) acquires the lock
// associated with a, shared or exclusive, and LockMap.Release(a, excl) releases
// it. Readers share a lock; a writer excludes readers and other writers.
//
// The implementation doesn't actually maintain all of these locks; it
// instead maintains a fixed collection of shards so that shard i is
// responsible for maintaining the lock state of all a such that a % NSHARDS = i.
// Acquiring a lock requires synchronizing with any threads accessing the same
// shard. Waiters park on a per-address condition variable and re-check on
// every release.
package lockmap

import (
	"fmt"
	"sync"
)

type lockState struct {
	readers uint64
	writer  bool
	cond    *sync.Cond
	waiters uint64
}

func (state *lockState) compatible(excl bool) bool {
	if excl {
		return !state.writer && state.readers == 0
	}
	return !state.writer
}

func (state *lockState) take(excl bool) {
	if excl {
		state.writer = true
	} else {
		state.readers += 1
	}
}

func (state *lockState) idle() bool {
	return !state.writer && state.readers == 0 && state.waiters == 0
}

type lockShard struct {
	mu    *sync.Mutex
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	state := make(map[uint64]*lockState)
	mu := new(sync.Mutex)
	a := &lockShard{
		mu:    mu,
		state: state,
	}
	return a
}

func (lmap *lockShard) getState(addr uint64) *lockState {
	state, ok := lmap.state[addr]
	if !ok {
		state = &lockState{cond: sync.NewCond(lmap.mu)}
		lmap.state[addr] = state
	}
	return state
}

func (lmap *lockShard) acquire(addr uint64, excl bool) {
	lmap.mu.Lock()
	state := lmap.getState(addr)
	for !state.compatible(excl) {
		state.waiters += 1
		state.cond.Wait()
		state.waiters -= 1
	}
	state.take(excl)
	lmap.mu.Unlock()
}

func (lmap *lockShard) tryAcquire(addr uint64, excl bool) bool {
	lmap.mu.Lock()
	defer lmap.mu.Unlock()
	state := lmap.getState(addr)
	if !state.compatible(excl) {
		if state.idle() {
			delete(lmap.state, addr)
		}
		return false
	}
	state.take(excl)
	return true
}

func (lmap *lockShard) release(addr uint64, excl bool) {
	lmap.mu.Lock()
	state, ok := lmap.state[addr]
	if !ok {
		lmap.mu.Unlock()
		panic(fmt.Sprintf("lockmap: release of unheld lock %d", addr))
	}
	if excl {
		if !state.writer {
			lmap.mu.Unlock()
			panic(fmt.Sprintf("lockmap: release of unheld write lock %d", addr))
		}
		state.writer = false
	} else {
		if state.readers == 0 {
			lmap.mu.Unlock()
			panic(fmt.Sprintf("lockmap: release of unheld read lock %d", addr))
		}
		state.readers -= 1
	}
	if state.waiters > 0 {
		// a departing writer may admit several readers
		state.cond.Broadcast()
	} else if state.idle() {
		delete(lmap.state, addr)
	}
	lmap.mu.Unlock()
}

func (lmap *lockShard) holders(addr uint64) (uint64, bool) {
	lmap.mu.Lock()
	defer lmap.mu.Unlock()
	state, ok := lmap.state[addr]
	if !ok {
		return 0, false
	}
	return state.readers, state.writer
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	var shards []*lockShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	a := &LockMap{
		shards: shards,
	}
	return a
}

func (lmap *LockMap) shard(addr uint64) *lockShard {
	return lmap.shards[addr%NSHARD]
}

// Acquire blocks until addr can be held in the requested mode.
func (lmap *LockMap) Acquire(addr uint64, excl bool) {
	lmap.shard(addr).acquire(addr, excl)
}

// TryAcquire is Acquire without waiting; it reports whether the lock was
// taken.
func (lmap *LockMap) TryAcquire(addr uint64, excl bool) bool {
	return lmap.shard(addr).tryAcquire(addr, excl)
}

func (lmap *LockMap) Release(addr uint64, excl bool) {
	lmap.shard(addr).release(addr, excl)
}

// Holders reports the current number of readers of addr and whether a writer
// holds it.
func (lmap *LockMap) Holders(addr uint64) (readers uint64, writer bool) {
	return lmap.shard(addr).holders(addr)
}
