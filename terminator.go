// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// stageTerminator closes a stage's output queue exactly once, the instant
// every one of its Nk workers has exited — normally or via an escalated
// error. A nil output queue (a stage that closes its own outputs, such as
// Tee) is permitted: the terminator still fires, it just closes nothing.
//
// remaining duplicates workgroup state in an atomic counter purely so
// Pending can be read without blocking on the goroutine that owns wg.Wait;
// it does not itself gate closing the output queue.
type stageTerminator[T any] struct {
	wg        sync.WaitGroup
	remaining atomix.Int64
	out       *CBQ[T]
}

// newStageTerminator provisions a terminator for a stage of n workers.
// If n is 0 (the degenerate stage), the caller should still spawn run as
// a task: wg.Wait returns immediately and the output queue closes at once.
func newStageTerminator[T any](n int, out *CBQ[T]) *stageTerminator[T] {
	t := &stageTerminator[T]{out: out}
	t.wg.Add(n)
	t.remaining.StoreRelaxed(int64(n))
	return t
}

// workerDone signals that one worker of the stage has exited. Safe to call
// concurrently from every worker of the stage, exactly once per worker.
func (t *stageTerminator[T]) workerDone() {
	t.remaining.AddAcqRel(-1)
	t.wg.Done()
}

// Pending reports how many workers have not yet signaled done. It is a
// lock-free diagnostic, not a synchronization point: always read wg.Wait's
// completion (via run) to know the output queue has actually been closed.
func (t *stageTerminator[T]) Pending() int64 {
	return t.remaining.LoadRelaxed()
}

// run blocks until every worker has called workerDone, then closes the
// stage's output queue (if any) exactly once. Intended to be spawned as
// its own task, joined alongside the stage's workers.
func (t *stageTerminator[T]) run() {
	t.wg.Wait()
	if t.out != nil {
		t.out.CloseIdempotent()
	}
}
