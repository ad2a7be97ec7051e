// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

// MapFunc transforms one item into its replacement for the output queue.
//
// Returning an error satisfying [IsDrop] (most simply, returning [ErrDrop]
// itself) means "no output for this item" — it is a control flow signal,
// not routed through the stage's exception handler. Any other non-nil
// error is a UserFunctionError, routed through the configured
// ExceptionHandler.
type MapFunc[T any] func(item T) (T, error)

// PredicateFunc reports whether an item should be forwarded unchanged.
// An error return is treated exactly like a MapFunc error: [ErrDrop] (or
// anything satisfying [IsDrop]) silently excludes the item, anything else
// is a UserFunctionError routed through the exception handler.
type PredicateFunc[T any] func(item T) (bool, error)

// ExceptionHandler reacts to a UserFunctionError raised by a stage's
// MapFunc or PredicateFunc. input is the item that produced the error,
// qOut is the stage's output queue (nil for a terminal sink).
//
// A non-nil return escalates: the worker goroutine exits carrying that
// error, visible at [Pipeline.Join]. Returning nil lets the worker
// continue to its next input.
type ExceptionHandler[T any] func(input T, err error, qOut *CBQ[T]) error

// Raise escalates every UserFunctionError: the worker exits abnormally and
// the error is visible at Join. The pipeline does not auto-cancel other
// stages — escalation is local to the worker that raised it.
func Raise[T any]() ExceptionHandler[T] {
	return func(_ T, err error, _ *CBQ[T]) error {
		return err
	}
}

// Ignore discards the input and the error, and continues.
func Ignore[T any]() ExceptionHandler[T] {
	return func(_ T, _ error, _ *CBQ[T]) error {
		return nil
	}
}

// ForwardInput enqueues the original input into qOut unchanged, as if it
// had passed through the stage untransformed, then continues. If qOut is
// nil (terminal sink) this is equivalent to Ignore. A failure to enqueue
// (the output queue having since been closed) escalates, since that is no
// longer a user-function error this handler can paper over.
func ForwardInput[T any]() ExceptionHandler[T] {
	return func(input T, _ error, qOut *CBQ[T]) error {
		if qOut == nil {
			return nil
		}
		return qOut.Put(input)
	}
}

// runWorker adapts f into a stage body honoring the CBQ protocol: read
// qIn until end-of-stream, invoke f per item, forward non-dropped results
// to qOut, route user errors through handler, and signal the stage
// terminator on exit.
func runWorker[T any](qIn, qOut *CBQ[T], f MapFunc[T], handler ExceptionHandler[T], term *stageTerminator[T]) (err error) {
	defer term.workerDone()
	for {
		item, ok := qIn.Get()
		if !ok {
			return nil
		}

		result, ferr := f(item)
		if ferr != nil {
			if IsDrop(ferr) {
				continue
			}
			if herr := handler(item, ferr, qOut); herr != nil {
				return herr
			}
			continue
		}

		if qOut == nil {
			continue
		}
		if perr := qOut.Put(result); perr != nil {
			return perr
		}
	}
}
