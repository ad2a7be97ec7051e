// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import "code.hybscloud.com/iox"

// PutBackoff retries TryPut against q until it succeeds, the queue
// closes, or ctx-equivalent cancellation is unnecessary because the
// caller controls the loop directly. It is offered for callers who want
// TryPut's non-blocking admission check (e.g. to interleave with other
// work) without hand-rolling a retry loop around [ErrWouldBlock].
//
// Retries wait between attempts using [code.hybscloud.com/iox]'s Backoff.
func PutBackoff[T any](q *CBQ[T], item T) error {
	var b iox.Backoff
	for {
		err := q.TryPut(item)
		if err == nil {
			return nil
		}
		if !IsWouldBlock(err) {
			return err
		}
		b.Wait()
	}
}

// GetBackoff is PutBackoff's counterpart for TryGet: it retries until an
// item arrives, the queue closes (ok == false, err == nil), or TryGet
// reports a non-backpressure error.
func GetBackoff[T any](q *CBQ[T]) (item T, ok bool, err error) {
	var b iox.Backoff
	for {
		item, ok, err = q.TryGet()
		if err == nil {
			return item, ok, nil
		}
		if !IsWouldBlock(err) {
			return item, false, err
		}
		b.Wait()
	}
}
