// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package flowq provides an in-process concurrent dataflow pipeline:
// a Closable Bounded Queue connecting pools of worker goroutines into
// ordered stages, and a fluent builder assembling stages into a pipeline.
//
// # Quick Start
//
// The building block is [CBQ], a bounded FIFO queue with blocking Put/Get
// and a one-way Close that wakes every blocked caller:
//
//	q := flowq.NewCBQ[int](16)
//	go func() {
//	    defer q.Close()
//	    for i := range 100 {
//	        q.Put(i)
//	    }
//	}()
//	for {
//	    item, ok := q.Get()
//	    if !ok {
//	        break // producer closed, queue drained
//	    }
//	    process(item)
//	}
//
// [Pipeline] composes queues and worker pools for you:
//
//	results := flowq.NewPipeline[int]().
//	    FromSlice(input, 1).
//	    Map(func(x int) (int, error) { return x * x, nil }, 4).
//	    Filter(func(x int) (bool, error) { return x%2 == 0, nil }, 2)
//
//	for x := range results.All() {
//	    fmt.Println(x)
//	}
//	if errs := results.Join(); len(errs) > 0 {
//	    // inspect per-task errors
//	}
//
// # Common Patterns
//
// Pipeline Stage (single worker per side):
//
//	q := flowq.NewCBQ[Data](1024)
//
//	go func() { // Stage 1 (producer)
//	    defer q.Close()
//	    for data := range input {
//	        if err := q.Put(data); err != nil {
//	            return
//	        }
//	    }
//	}()
//
//	go func() { // Stage 2 (consumer)
//	    for {
//	        data, ok := q.Get()
//	        if !ok {
//	            return
//	        }
//	        process(data)
//	    }
//	}()
//
// Event Aggregation (many producers, one consumer):
//
//	q := flowq.NewCBQ[Event](4096)
//	term := sync.WaitGroup{}
//	for _, sensor := range sensors {
//	    term.Add(1)
//	    go func(s Sensor) {
//	        defer term.Done()
//	        for ev := range s.Events() {
//	            q.Put(ev)
//	        }
//	    }(sensor)
//	}
//	go func() { term.Wait(); q.Close() }()
//
//	for {
//	    ev, ok := q.Get()
//	    if !ok {
//	        break
//	    }
//	    aggregate(ev)
//	}
//
// Work Distribution and Worker Pools are exactly what [Pipeline.ChainWorkers]
// and [Pipeline.Map] build: Nk workers pulling from a shared input queue and
// pushing to a shared output queue, with the [stageTerminator] closing the
// output the instant the last worker exits.
//
// # Queue Variants
//
// CBQ has one implementation, parameterized by capacity:
//
//	flowq.NewCBQ[T](n)  // n > 0: bounded buffer of n items
//	flowq.NewCBQ[T](0)  // rendezvous: Put blocks until a Get is waiting
//
// There is no separate SPSC/MPSC/SPMC/MPMC family: CBQ's mutex-and-condvar
// design is safe for any number of concurrent producers and consumers, and
// the pipeline orchestrator is the layer that knows how many of each a
// given stage has.
//
// # Error Handling
//
// CBQ surfaces backpressure and closure as ordinary errors and booleans,
// not panics:
//
//	err := q.TryPut(item)
//	if flowq.IsWouldBlock(err) {
//	    // queue full (or, for rendezvous, no reader waiting) — retry later
//	}
//
//	item, ok, err := q.TryGet()
//	if flowq.IsWouldBlock(err) {
//	    // queue empty and still open — retry later
//	}
//	if !ok && err == nil {
//	    // end-of-stream
//	}
//
// [ErrWouldBlock] is sourced from [code.hybscloud.com/iox] for ecosystem
// consistency, the same way the queue family this package descends from
// reported backpressure. [IsSemantic] and [IsNonFailure] likewise delegate
// to iox, extended to also recognize [ErrDrop] as a non-failure control
// signal specific to worker stages (see [MapFunc]).
//
// # Capacity
//
// Capacity is taken as given; there is no power-of-2 rounding; a rendezvous
// queue (capacity 0) is a first-class, documented variant rather than an
// error. [Pipeline]'s stage-adding methods default an unspecified output
// queue's capacity to 2*workers, matching this package's original sizing
// convention of scaling buffering with worker count.
//
// # Thread Safety
//
// Every CBQ method is safe for any number of concurrent callers, in any
// combination of Put/Get/Close. [Pipeline] itself is not: its builder
// methods, [Pipeline.All], and [Pipeline.Join] are meant to be called from
// a single owning goroutine, exactly as the stages it spawns are the
// concurrent part.
//
// # Graceful Shutdown
//
// Closing a CBQ wakes every blocked Put (with [ErrClosedForPut]) and every
// blocked Get (delivering any remaining buffered items first, then
// end-of-stream) — see [CBQ.Close]'s doc comment for the exact ordering
// contract. [Pipeline] relies on this to propagate shutdown stage by stage:
// a [stageTerminator] closes a stage's output queue the instant its last
// worker exits, which in turn unblocks the next stage's workers.
// [CancelOnContext] bridges a [context.Context] into this same mechanism.
//
// # Race Detection
//
// CBQ's synchronization is entirely mutex-and-condition-variable based, so
// Go's race detector observes it directly; no class of false positive is
// expected here, unlike the acquire-release-only synchronization the
// lock-free queue family this package is derived from required stress
// testing to verify without the detector's help.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors,
// [code.hybscloud.com/atomix] for the lock-free peek fields ([CBQ.Closed],
// [stageTerminator.Pending]), and [code.hybscloud.com/spin] for a bounded
// optimistic spin before a blocking Put or Get parks on its condition
// variable. Pipeline lifecycle logging is built on
// [github.com/joeycumines/logiface] and
// [github.com/joeycumines/logiface-slog]; see [Logger].
package flowq
