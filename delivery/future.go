/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrFutureTimeout is returned when a bounded wait on a pending future
// expires. It is recoverable: the caller may retry the wait or treat the
// record as not yet available.
var ErrFutureTimeout = errors.New("timed out waiting for log id")

// Future is a one-shot, write-once container binding a later-arriving log
// id to operations issued before the create completed.
type Future struct {
	once sync.Once
	done chan struct{}
	id   int64
	err  error
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already carrying the given id.
func Resolved(id int64) *Future {
	f := NewFuture()
	f.Resolve(id)
	return f
}

// Resolve binds the id. Only the first Resolve or Reject takes effect.
func (f *Future) Resolve(id int64) {
	f.once.Do(func() {
		f.id = id
		close(f.done)
	})
}

// Reject binds an error. Only the first Resolve or Reject takes effect.
func (f *Future) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done reports whether the future has been resolved or rejected.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or the context ends. Already
// settled futures return without blocking.
func (f *Future) Wait(ctx context.Context) (int64, error) {
	select {
	case <-f.done:
		return f.id, f.err
	default:
	}
	select {
	case <-f.done:
		return f.id, f.err
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %w", ErrFutureTimeout, ctx.Err())
	}
}

// WaitTimeout blocks for at most d.
func (f *Future) WaitTimeout(d time.Duration) (int64, error) {
	select {
	case <-f.done:
		return f.id, f.err
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.id, f.err
	case <-timer.C:
		return 0, fmt.Errorf("%w after %v", ErrFutureTimeout, d)
	}
}
