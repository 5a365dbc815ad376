package lockmap

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestSharedReaders(t *testing.T) {
	assert := assert.New(t)
	lm := MkLockMap()

	lm.Acquire(3, false)
	assert.True(lm.TryAcquire(3, false), "readers share")
	assert.False(lm.TryAcquire(3, true), "writer excluded by readers")

	r, w := lm.Holders(3)
	assert.Equal(uint64(2), r)
	assert.False(w)

	lm.Release(3, false)
	lm.Release(3, false)
	assert.True(lm.TryAcquire(3, true))
	assert.False(lm.TryAcquire(3, false), "reader excluded by writer")
	assert.False(lm.TryAcquire(3, true), "writer excluded by writer")
	lm.Release(3, true)

	r, w = lm.Holders(3)
	assert.Equal(uint64(0), r)
	assert.False(w)
}

func TestIndependentAddrs(t *testing.T) {
	lm := MkLockMap()
	lm.Acquire(1, true)
	// same shard, different address
	assert.True(t, lm.TryAcquire(1+NSHARD, true))
	lm.Release(1, true)
	lm.Release(1+NSHARD, true)
}

func TestReaderWaitsForWriter(t *testing.T) {
	lm := MkLockMap()
	lm.Acquire(7, true)

	var got int32
	done := make(chan struct{})
	go func() {
		lm.Acquire(7, false)
		atomic.StoreInt32(&got, 1)
		lm.Release(7, false)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&got), "reader got in under a writer")
	lm.Release(7, true)
	<-done
	assert.Equal(t, int32(1), atomic.LoadInt32(&got))
}

func TestWritersExclude(t *testing.T) {
	lm := MkLockMap()
	var inside, peak int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				lm.Acquire(5, true)
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&peak)
					if n <= m || atomic.CompareAndSwapInt32(&peak, m, n) {
						break
					}
				}
				atomic.AddInt32(&inside, -1)
				lm.Release(5, true)
			}
			return nil
		})
	}
	assert.NoError(t, g.Wait())
	assert.Equal(t, int32(1), peak)
}

func TestReleaseUnheldPanics(t *testing.T) {
	lm := MkLockMap()
	assert.Panics(t, func() { lm.Release(9, false) })
	lm.Acquire(9, false)
	assert.Panics(t, func() { lm.Release(9, true) })
}
