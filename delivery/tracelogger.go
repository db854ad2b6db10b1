/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"context"
	"sync"

	"chainguard.dev/tracelog/transport"
)

// TraceUpdate is one snapshot of a trace destined for a log's trace
// entry. Completed marks the final snapshot.
type TraceUpdate struct {
	Project   string
	Context   string
	Trace     map[string]any
	Completed bool
}

// TraceLogger coalesces trace snapshots per log. At most one update per
// log is in flight at a time; snapshots arriving while one is in flight
// replace each other, so only the newest is sent next. Intermediate
// snapshots are disposable because each one carries the whole trace.
type TraceLogger struct {
	mgr *Manager

	mu     sync.Mutex
	states map[*Future]*traceState
}

type traceState struct {
	inflight bool
	pending  *TraceUpdate
}

// NewTraceLogger returns a TraceLogger shipping through mgr.
func NewTraceLogger(mgr *Manager) *TraceLogger {
	return &TraceLogger{
		mgr:    mgr,
		states: make(map[*Future]*traceState),
	}
}

// Submit queues a trace snapshot for the log identified by fut. Older
// unsent snapshots for the same log are dropped.
func (tl *TraceLogger) Submit(fut *Future, up *TraceUpdate) {
	tl.mu.Lock()
	st, ok := tl.states[fut]
	if !ok {
		st = &traceState{}
		tl.states[fut] = st
	}
	if st.inflight {
		st.pending = up
		tl.mu.Unlock()
		return
	}
	st.inflight = true
	tl.mu.Unlock()
	tl.send(fut, up)
}

func (tl *TraceLogger) send(fut *Future, up *TraceUpdate) {
	done := tl.mgr.SubmitUpdate(fut, &transport.UpdateLogsRequest{
		Project:   up.Project,
		Context:   up.Context,
		Entries:   map[string]any{"trace": up.Trace},
		Overwrite: true,
	})
	go func() {
		// The outcome does not matter for sequencing; a failed send
		// still frees the slot for the next snapshot.
		done.Wait(context.Background()) //nolint:errcheck
		tl.next(fut, up.Completed)
	}()
}

// next runs after a send settles, either dispatching the newest pending
// snapshot or retiring the log's state once its final snapshot is out.
func (tl *TraceLogger) next(fut *Future, completed bool) {
	tl.mu.Lock()
	st := tl.states[fut]
	if st == nil {
		tl.mu.Unlock()
		return
	}
	if st.pending != nil {
		up := st.pending
		st.pending = nil
		tl.mu.Unlock()
		tl.send(fut, up)
		return
	}
	st.inflight = false
	if completed {
		delete(tl.states, fut)
	}
	tl.mu.Unlock()
}
