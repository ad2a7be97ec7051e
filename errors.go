// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates a non-blocking operation cannot proceed immediately.
//
// For TryPut: the queue is full (backpressure) or, for a capacity-0
// rendezvous queue, no reader is currently waiting to take the item.
// For TryGet: the queue is empty and not yet closed.
//
// ErrWouldBlock is a control flow signal, not a failure. The caller should
// retry later (with backoff) rather than propagating the error.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency with
// the rest of the queue lineage this package descends from.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrClosedForPut is returned by Put/TryPut once the queue has been closed.
// No item is ever enqueued past a completed close, even under a race
// between a concurrent Put and Close (see CBQ's ordering contract).
var ErrClosedForPut = errors.New("flowq: put on closed queue")

// ErrCloseTwice is returned by Close when the queue is already closed.
// Use CloseIdempotent when a second close should be a silent no-op.
var ErrCloseTwice = errors.New("flowq: queue already closed")

// ErrDrop is returned by a Map or Filter function to signal "no output for
// this item" — the Go rendering of the framework's "no value" marker. It is
// a control flow signal, not a UserFunctionError: the worker wrapper drops
// the item silently and does not invoke the configured exception handler.
var ErrDrop = errors.New("flowq: drop item")

// ErrMisuse is wrapped in the value a Pipeline builder method panics with
// for programmer errors the framework can detect at a call site: maxsize
// combined with an explicit output
// queue, FromSlice/FromFunc on a pipeline that already has a source, or
// iterating (or extending) a pipeline whose tail has already been consumed.
var ErrMisuse = errors.New("flowq: misuse")

// ErrInvariantViolation marks a framework-internal bug surfaced rather than
// swallowed, such as Fold's intermediate queue yielding no items even
// though it was pre-seeded with x0. It should never occur in a correct
// build of this package.
var ErrInvariantViolation = errors.New("flowq: invariant violation")

// IsWouldBlock reports whether err indicates an operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsDrop reports whether err is a Map/Filter "no output for this item"
// signal, i.e. wraps [ErrDrop].
func IsDrop(err error) bool {
	return errors.Is(err, ErrDrop)
}

// IsSemantic reports whether err is a control flow signal rather than a
// failure: ErrWouldBlock or ErrDrop. Mirrors [iox.IsSemantic]'s shape for
// this package's own sentinel set.
func IsSemantic(err error) bool {
	return iox.IsSemantic(err) || IsDrop(err)
}

// IsNonFailure reports whether err represents a non-failure condition:
// nil, ErrWouldBlock, or ErrDrop. Mirrors [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return err == nil || IsSemantic(err)
}
