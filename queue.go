// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import (
	"math/rand/v2"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// CBQ is a Closable Bounded Queue: a multi-producer/multi-consumer bounded
// FIFO with a one-way close transition.
//
// Capacity 0 means rendezvous: Put only admits an item while a Get is
// actively parked waiting for one, so no item is ever buffered unattended.
//
// Once closed, no item is ever enqueued again (Put/TryPut fail with
// [ErrClosedForPut]), and every pending and future Get eventually observes
// end-of-stream — reported the same way a native Go channel reports a
// closed, drained channel: as the boolean "ok" result of Get, false.
//
// Items Put before a successful Close are always delivered to Get callers,
// in FIFO order, before any caller observes end-of-stream; this holds even
// under concurrent Put/Get/Close, per CBQ's ordering contract (see [CBQ.Close]).
type CBQ[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf   []T
	head  int
	count int

	capacity       int // logical capacity; 0 means rendezvous
	waitingReaders int

	closed atomix.Bool

	fuzzMin, fuzzMax time.Duration
}

// queueConfig collects Option values independent of the queue's item type.
type queueConfig struct {
	fuzzMin, fuzzMax time.Duration
}

// Option configures a CBQ at construction time.
type Option func(*queueConfig)

// WithFuzz installs a small randomized delay, uniformly distributed in
// [min, max), at the start of every blocking Put and Get call. It is purely
// a testing aid for exercising the close race documented in CBQ's ordering
// contract, and must never change which contract a call satisfies — only
// when it does so.
func WithFuzz(min, max time.Duration) Option {
	return func(c *queueConfig) {
		c.fuzzMin, c.fuzzMax = min, max
	}
}

// NewCBQ creates a queue with the given capacity. Capacity must be >= 0;
// 0 selects rendezvous semantics (see CBQ's doc comment).
func NewCBQ[T any](capacity int, opts ...Option) *CBQ[T] {
	if capacity < 0 {
		panic("flowq: capacity must be >= 0")
	}
	var cfg queueConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &CBQ[T]{
		capacity: capacity,
		fuzzMin:  cfg.fuzzMin,
		fuzzMax:  cfg.fuzzMax,
	}
	bufSize := capacity
	if bufSize == 0 {
		bufSize = 1 // rendezvous staging slot; admission gated by waitingReaders
	}
	q.buf = make([]T, bufSize)
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Cap returns the queue's logical capacity (0 for a rendezvous queue).
func (q *CBQ[T]) Cap() int {
	return q.capacity
}

// Closed reports whether Close or CloseIdempotent has completed. It is a
// lock-free peek backed by an atomic flag, safe to call from any goroutine,
// including concurrently with Put/Get/Close.
func (q *CBQ[T]) Closed() bool {
	return q.closed.LoadAcquire()
}

// Put enqueues item, blocking while the queue is full (or, for a
// rendezvous queue, while no reader is waiting). Returns [ErrClosedForPut]
// if the queue is closed at entry or becomes closed while Put is blocked.
func (q *CBQ[T]) Put(item T) error {
	_, err := q.put(item, true)
	return err
}

// TryPut enqueues item without blocking. Returns [ErrWouldBlock] if the
// queue cannot admit the item immediately, or [ErrClosedForPut] if closed.
func (q *CBQ[T]) TryPut(item T) error {
	_, err := q.put(item, false)
	return err
}

func (q *CBQ[T]) put(item T, blocking bool) (bool, error) {
	if blocking {
		q.fuzz()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var sw spin.Wait
	for {
		if q.closed.LoadAcquire() {
			return false, ErrClosedForPut
		}
		if q.canAdmitLocked() {
			break
		}
		if !blocking {
			return false, ErrWouldBlock
		}
		sw.Once()
		q.notFull.Wait()
	}

	tail := (q.head + q.count) % len(q.buf)
	q.buf[tail] = item
	q.count++
	q.notEmpty.Broadcast()
	return true, nil
}

// canAdmitLocked reports whether a Put may proceed. Callers hold q.mu.
func (q *CBQ[T]) canAdmitLocked() bool {
	if q.capacity == 0 {
		return q.count == 0 && q.waitingReaders > 0
	}
	return q.count < q.capacity
}

// Get dequeues the next item, blocking while the queue is empty and open.
// ok is false iff the queue is closed and fully drained (end-of-stream),
// mirroring the "v, ok := <-ch" idiom for a closed, drained channel.
func (q *CBQ[T]) Get() (item T, ok bool) {
	item, ok, _ = q.get(true)
	return item, ok
}

// TryGet dequeues without blocking. If the queue is empty and still open,
// it returns (zero, false, [ErrWouldBlock]). If the queue is closed and
// drained, it returns (zero, false, nil) — end-of-stream.
func (q *CBQ[T]) TryGet() (item T, ok bool, err error) {
	return q.get(false)
}

func (q *CBQ[T]) get(blocking bool) (T, bool, error) {
	if blocking {
		q.fuzz()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var sw spin.Wait
	var zero T
	for {
		if q.count > 0 {
			item := q.buf[q.head]
			q.buf[q.head] = zero
			q.head = (q.head + 1) % len(q.buf)
			q.count--
			q.notFull.Broadcast()
			return item, true, nil
		}
		if q.closed.LoadAcquire() {
			return zero, false, nil
		}
		if !blocking {
			return zero, false, ErrWouldBlock
		}
		q.waitingReaders++
		q.notFull.Broadcast() // wake a rendezvous putter waiting for a reader
		sw.Once()
		q.notEmpty.Wait()
		q.waitingReaders--
	}
}

// fuzz sleeps for a small randomized duration if WithFuzz was configured.
// A no-op test hook; never called from TryPut/TryGet/Close.
func (q *CBQ[T]) fuzz() {
	if q.fuzzMax <= 0 {
		return
	}
	d := q.fuzzMin
	if span := q.fuzzMax - q.fuzzMin; span > 0 {
		d += time.Duration(rand.Int64N(int64(span)))
	}
	if d > 0 {
		time.Sleep(d)
	}
}

// Close transitions the queue from open to closed. Returns [ErrCloseTwice]
// if the queue is already closed (once=true semantics, the default).
//
// After Close returns, every goroutine currently blocked in Get is woken
// and observes either a buffered item (if any remained) or end-of-stream;
// every goroutine blocked in Put is woken and observes [ErrClosedForPut].
// This is the "broadcast strategy" described in CBQ's ordering contract:
// close first flips the atomic flag, then wakes every waiter, so a reader
// that checks "not closed" and enrolls as a waiter an instant before Close
// completes is still covered by the broadcast that follows.
func (q *CBQ[T]) Close() error {
	return q.closeQueue(true)
}

// CloseIdempotent closes the queue if it is not already closed; a no-op,
// returning no error, if it is (once=false semantics). Used internally by
// the Stage Terminator, Tee, Batch and CancelOnContext, where the queue may
// already have been closed elsewhere (for example by CancelOnContext, or by
// the owner of a queue supplied via WithOutput).
func (q *CBQ[T]) CloseIdempotent() {
	_ = q.closeQueue(false)
}

func (q *CBQ[T]) closeQueue(once bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed.LoadAcquire() {
		if once {
			return ErrCloseTwice
		}
		return nil
	}
	q.closed.StoreRelease(true)
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return nil
}
