// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import "context"

// Batch groups items from in into slices of length n, emitting a final
// short slice (length < n) on end-of-stream if any items remain
// unflushed. It is a standalone helper, not a Pipeline stage: the type
// change T -> []T does not fit Pipeline[T]'s single-type-parameter
// builder, so Batch is meant to sit between two pipelines (or a pipeline
// and a plain consumer), the way the queue family this package descends
// from composes queues directly rather than only through a builder.
//
// Batch owns a single background goroutine reading in until
// end-of-stream, then closes the returned queue. It is not tracked by
// any Pipeline's Join.
func Batch[T any](in *CBQ[T], n int, opts ...Option) *CBQ[[]T] {
	if n <= 0 {
		panic("flowq: Batch: n must be > 0")
	}
	out := NewCBQ[[]T](2, opts...)
	go func() {
		defer out.CloseIdempotent()
		batch := make([]T, 0, n)
		for {
			item, ok := in.Get()
			if !ok {
				if len(batch) > 0 {
					_ = out.Put(batch)
				}
				return
			}
			batch = append(batch, item)
			if len(batch) == n {
				if err := out.Put(batch); err != nil {
					return
				}
				batch = make([]T, 0, n)
			}
		}
	}()
	return out
}

// CancelOnContext closes q, idempotently, the instant ctx is done. It is
// the idiomatic Go bridge between context-based cancellation and CBQ's
// own close-to-unblock shutdown path: a pipeline stage reading q observes
// end-of-stream exactly as it would from a normal Close, whichever source
// wins the race.
func CancelOnContext[T any](ctx context.Context, q *CBQ[T]) {
	go func() {
		<-ctx.Done()
		q.CloseIdempotent()
	}()
}
