/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"sync"

	"chainguard.dev/tracelog/transport"
)

type eventKind string

const (
	eventCreate eventKind = "create"
	eventUpdate eventKind = "update"
)

// event is one unit of queued work.
type event struct {
	kind   eventKind
	create *transport.CreateLogsRequest
	update *transport.UpdateLogsRequest
	// fut reports this event's own outcome. parent, set on updates,
	// is the create future whose id the update references.
	fut    *Future
	parent *Future
}

// queue is an unbounded FIFO. Unbounded is deliberate: submission must
// never block business logic, and the process producing events is the
// same one draining them, so growth is bounded by the caller's own rate.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*event
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends an event, reporting false if the queue is closed.
func (q *queue) push(ev *event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
	return true
}

// pop blocks until an event is available or the queue is closed and
// empty, in which case it reports false.
func (q *queue) pop() (*event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// close stops accepting work. With discard, everything still queued is
// returned to the caller instead of being processed.
func (q *queue) close(discard bool) []*event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	var dropped []*event
	if discard {
		dropped = q.items
		q.items = nil
	}
	q.cond.Broadcast()
	return dropped
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
