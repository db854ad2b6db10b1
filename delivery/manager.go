/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/tracelog/transport"
)

// ErrShutdown is returned by futures whose events were discarded by an
// immediate shutdown, or rejected because the manager had already
// stopped accepting work.
var ErrShutdown = errors.New("delivery manager shut down")

// awaitIDTimeout bounds how long an update worker waits for the create
// of the same log to resolve before giving up on the update.
const awaitIDTimeout = 30 * time.Second

// Store is the remote side of delivery. *transport.Client implements it.
type Store interface {
	CreateLogs(ctx context.Context, req *transport.CreateLogsRequest) ([]int64, error)
	UpdateLogs(ctx context.Context, req *transport.UpdateLogsRequest) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers sets the size of the worker pool. Values below one are
// treated as one.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithRegisterer enables delivery metrics on the given registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.reg = reg
	}
}

// Manager ships log events to a Store from a fixed pool of workers fed
// by an unbounded queue. Submission never blocks; completion is
// observed through the returned Future.
type Manager struct {
	store   Store
	workers int
	reg     prometheus.Registerer

	q       *queue
	metrics *metrics
	eg      *errgroup.Group

	mu          sync.Mutex
	outstanding int
	idle        chan struct{}
	stopped     bool
}

// NewManager starts a Manager delivering to store. The returned Manager
// must be stopped with Shutdown.
func NewManager(ctx context.Context, store Store, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		workers: 4,
		q:       newQueue(),
		idle:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = newMetrics(m.reg)
	close(m.idle) // nothing outstanding yet
	m.eg = &errgroup.Group{}
	wctx := context.WithoutCancel(ctx)
	for i := 0; i < m.workers; i++ {
		m.eg.Go(func() error {
			m.work(wctx)
			return nil
		})
	}
	return m
}

// SubmitCreate queues a create request. The returned Future resolves to
// the first id the store assigns, or rejects with the delivery error.
func (m *Manager) SubmitCreate(req *transport.CreateLogsRequest) *Future {
	fut := NewFuture()
	m.submit(&event{kind: eventCreate, create: req, fut: fut})
	return fut
}

// SubmitUpdate queues an update against a previously submitted create.
// The worker fills in the log id from fut before sending, so updates
// always land after the create they reference.
func (m *Manager) SubmitUpdate(fut *Future, req *transport.UpdateLogsRequest) *Future {
	done := NewFuture()
	m.submit(&event{kind: eventUpdate, update: req, fut: done, parent: fut})
	return done
}

func (m *Manager) submit(ev *event) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		ev.fut.Reject(ErrShutdown)
		return
	}
	if m.outstanding == 0 {
		m.idle = make(chan struct{})
	}
	m.outstanding++
	m.mu.Unlock()

	if !m.q.push(ev) {
		m.finish()
		ev.fut.Reject(ErrShutdown)
		return
	}
	m.metrics.recordSubmitted(ev.kind)
}

// finish decrements the outstanding count, releasing Drain waiters at
// zero.
func (m *Manager) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outstanding--
	if m.outstanding == 0 {
		close(m.idle)
	}
}

func (m *Manager) work(ctx context.Context) {
	log := clog.FromContext(ctx)
	for {
		ev, ok := m.q.pop()
		if !ok {
			return
		}
		if err := m.deliver(ctx, ev); err != nil {
			log.Warnf("delivery failed: %v", err)
			m.metrics.recordFailed(ev.kind)
			ev.fut.Reject(err)
		} else {
			m.metrics.recordDelivered(ev.kind)
		}
		m.finish()
	}
}

func (m *Manager) deliver(ctx context.Context, ev *event) error {
	switch ev.kind {
	case eventCreate:
		ids, err := m.store.CreateLogs(ctx, ev.create)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return errors.New("store returned no log ids")
		}
		ev.fut.Resolve(ids[0])
		return nil
	case eventUpdate:
		req := ev.update
		if ev.parent != nil {
			id, err := ev.parent.WaitTimeout(awaitIDTimeout)
			if err != nil {
				return err
			}
			req.Logs = []int64{id}
		}
		if err := m.store.UpdateLogs(ctx, req); err != nil {
			return err
		}
		ev.fut.Resolve(firstOrZero(req.Logs))
		return nil
	}
	return nil
}

func firstOrZero(ids []int64) int64 {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// Drain blocks until every event submitted so far has been delivered or
// failed. New submissions remain possible during and after a Drain.
func (m *Manager) Drain(ctx context.Context) error {
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the manager. Without immediate, queued work is drained
// first; with immediate, queued events are discarded and their futures
// rejected with ErrShutdown. Shutdown is idempotent.
func (m *Manager) Shutdown(ctx context.Context, immediate bool) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	var err error
	if !immediate {
		err = m.Drain(ctx)
	}
	dropped := m.q.close(immediate)
	for _, ev := range dropped {
		ev.fut.Reject(ErrShutdown)
		m.finish()
	}
	m.metrics.recordDropped(len(dropped))
	m.eg.Wait() //nolint:errcheck
	return err
}

// QueueLen reports the number of events waiting for a worker.
func (m *Manager) QueueLen() int {
	return m.q.len()
}
