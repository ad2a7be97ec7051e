// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBQPutGetFIFO(t *testing.T) {
	q := NewCBQ[int](4)
	for i := range 4 {
		require.NoError(t, q.Put(i))
	}
	for i := range 4 {
		item, ok := q.Get()
		require.True(t, ok)
		assert.Equal(t, i, item)
	}
}

func TestCBQTryPutWouldBlockWhenFull(t *testing.T) {
	q := NewCBQ[int](1)
	require.NoError(t, q.TryPut(1))
	err := q.TryPut(2)
	assert.True(t, IsWouldBlock(err))
}

func TestCBQTryGetWouldBlockWhenEmpty(t *testing.T) {
	q := NewCBQ[int](1)
	_, ok, err := q.TryGet()
	assert.False(t, ok)
	assert.True(t, IsWouldBlock(err))
}

func TestCBQCloseDrainsBufferedItemsBeforeEOS(t *testing.T) {
	q := NewCBQ[int](4)
	require.NoError(t, q.Put(1))
	require.NoError(t, q.Put(2))
	require.NoError(t, q.Close())

	item, ok := q.Get()
	require.True(t, ok)
	assert.Equal(t, 1, item)

	item, ok = q.Get()
	require.True(t, ok)
	assert.Equal(t, 2, item)

	_, ok = q.Get()
	assert.False(t, ok)
}

func TestCBQPutAfterCloseFails(t *testing.T) {
	q := NewCBQ[int](2)
	require.NoError(t, q.Close())
	err := q.Put(1)
	assert.ErrorIs(t, err, ErrClosedForPut)
}

func TestCBQCloseTwiceErrors(t *testing.T) {
	q := NewCBQ[int](2)
	require.NoError(t, q.Close())
	err := q.Close()
	assert.ErrorIs(t, err, ErrCloseTwice)
}

func TestCBQCloseIdempotentTwiceIsNoop(t *testing.T) {
	q := NewCBQ[int](2)
	q.CloseIdempotent()
	assert.NotPanics(t, func() { q.CloseIdempotent() })
	assert.True(t, q.Closed())
}

func TestCBQCloseUnblocksPendingGet(t *testing.T) {
	q := NewCBQ[int](1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Get()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Close())
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Close")
	}
}

func TestCBQCloseUnblocksPendingPut(t *testing.T) {
	q := NewCBQ[int](1)
	require.NoError(t, q.Put(1)) // fill it

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Put(2)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosedForPut)
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Close")
	}
}

func TestCBQRendezvousRequiresWaitingReader(t *testing.T) {
	q := NewCBQ[int](0)
	err := q.TryPut(1)
	assert.True(t, IsWouldBlock(err))

	done := make(chan int, 1)
	go func() {
		item, ok := q.Get()
		if ok {
			done <- item
		}
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Put(42))
	select {
	case item := <-done:
		assert.Equal(t, 42, item)
	case <-time.After(time.Second):
		t.Fatal("rendezvous Put/Get did not hand off")
	}
}

func TestCBQConcurrentProducersConsumersPreserveCount(t *testing.T) {
	const nProducers, nConsumers, perProducer = 8, 4, 500
	q := NewCBQ[int](16)

	var pwg sync.WaitGroup
	for range nProducers {
		pwg.Add(1)
		go func() {
			defer pwg.Done()
			for i := range perProducer {
				assert.NoError(t, q.Put(i))
			}
		}()
	}
	go func() {
		pwg.Wait()
		q.Close()
	}()

	var total int
	var mu sync.Mutex
	var cwg sync.WaitGroup
	for range nConsumers {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			count := 0
			for {
				_, ok := q.Get()
				if !ok {
					break
				}
				count++
			}
			mu.Lock()
			total += count
			mu.Unlock()
		}()
	}
	cwg.Wait()
	assert.Equal(t, nProducers*perProducer, total)
}

func TestCBQWithFuzzNeverChangesOutcome(t *testing.T) {
	q := NewCBQ[int](2, WithFuzz(time.Millisecond, 3*time.Millisecond))
	require.NoError(t, q.Put(1))
	require.NoError(t, q.Close())
	item, ok := q.Get()
	require.True(t, ok)
	assert.Equal(t, 1, item)
	_, ok = q.Get()
	assert.False(t, ok)
}

func TestCBQCap(t *testing.T) {
	assert.Equal(t, 4, NewCBQ[int](4).Cap())
	assert.Equal(t, 0, NewCBQ[int](0).Cap())
}
