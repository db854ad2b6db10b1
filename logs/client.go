/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logs

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"

	"chainguard.dev/tracelog/cache"
	"chainguard.dev/tracelog/config"
	"chainguard.dev/tracelog/delivery"
	"chainguard.dev/tracelog/genai"
	"chainguard.dev/tracelog/scope"
	"chainguard.dev/tracelog/trace"
	"chainguard.dev/tracelog/transport"
)

// Store is the remote surface the client needs. *transport.Client
// implements it; tests substitute their own.
type Store interface {
	CreateLogs(ctx context.Context, req *transport.CreateLogsRequest) ([]int64, error)
	UpdateLogs(ctx context.Context, req *transport.UpdateLogsRequest) error
	DeleteLogs(ctx context.Context, req *transport.DeleteLogsRequest) error
	GetLogs(ctx context.Context, req *transport.GetLogsRequest) (*transport.GetLogsResponse, error)
	EnsureProject(ctx context.Context, name string) error
	EnsureContext(ctx context.Context, project, name string) error
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	store      Store
	registerer prometheus.Registerer
	httpClient *http.Client
}

// WithStore substitutes the remote store implementation.
func WithStore(s Store) Option {
	return func(o *clientOptions) { o.store = s }
}

// WithRegisterer enables delivery metrics on the given registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *clientOptions) { o.registerer = reg }
}

// WithHTTPClient overrides the transport's underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// Client is a handle on the remote log store plus the local machinery
// that feeds it. Clients are safe for concurrent use and must be
// stopped with Shutdown.
type Client struct {
	cfg     config.Config
	store   Store
	mgr     *delivery.Manager
	traces  *delivery.TraceLogger
	cache   *cache.Cache
	tracer  *trace.Tracer
	metrics *genai.Metrics

	mu        sync.Mutex
	traceFuts map[string]*delivery.Future

	closeOnce sync.Once
	closeErr  error
}

// NewClient constructs a Client from the given configuration. The
// default project is ensured to exist, best effort; failures there are
// logged and do not prevent construction.
func NewClient(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		topts := []transport.Option{transport.WithTimeout(cfg.RequestTimeout)}
		if o.httpClient != nil {
			topts = append(topts, transport.WithHTTPClient(o.httpClient))
		}
		store = transport.New(cfg.BaseURL, cfg.APIKey, topts...)
	}

	c := &Client{
		cfg:       cfg,
		store:     store,
		metrics:   genai.NewMetrics("chainguard.ai.tracelog"),
		traceFuts: make(map[string]*delivery.Future),
	}

	mgropts := []delivery.Option{delivery.WithWorkers(cfg.Workers)}
	if o.registerer != nil {
		mgropts = append(mgropts, delivery.WithRegisterer(o.registerer))
	}
	c.mgr = delivery.NewManager(ctx, store, mgropts...)
	c.traces = delivery.NewTraceLogger(c.mgr)
	c.tracer = trace.New(c, c.metrics)

	if cfg.CacheDir != "" {
		ch, err := cache.Open(ctx, filepath.Join(cfg.CacheDir, "tracelog.cache"))
		if err != nil {
			c.mgr.Shutdown(ctx, true) //nolint:errcheck
			return nil, err
		}
		c.cache = ch
	}

	if err := store.EnsureProject(ctx, cfg.Project); err != nil {
		clog.FromContext(ctx).Warnf("ensuring project %q: %v", cfg.Project, err)
	}
	return c, nil
}

// Tracer returns the client's span tracer for use with trace.Traced.
func (c *Client) Tracer() *trace.Tracer { return c.tracer }

// Project returns the client's default project.
func (c *Client) Project() string { return c.cfg.Project }

// Drain blocks until every queued write has been delivered or failed.
func (c *Client) Drain(ctx context.Context) error {
	return c.mgr.Drain(ctx)
}

// Shutdown stops the client. Without immediate, queued writes are
// drained first. Shutdown is idempotent and safe to call from exit
// paths.
func (c *Client) Shutdown(ctx context.Context, immediate bool) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.mgr.Shutdown(ctx, immediate)
		if c.cache != nil {
			if err := c.cache.Close(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

// FlushTrace implements trace.Flusher. The first snapshot of a tree
// either attaches to the log active in scope or creates a fresh record;
// every snapshot then overwrites the record's trace entry.
func (c *Client) FlushTrace(ctx context.Context, root *trace.Span, completed bool) {
	log := clog.FromContext(ctx)
	payload, err := root.Map()
	if err != nil {
		log.Warnf("dropping trace snapshot: %v", err)
		return
	}

	c.mu.Lock()
	fut, ok := c.traceFuts[root.ID]
	if !ok {
		if active, found := ActiveLog(ctx); found {
			fut = active.fut
		} else {
			rec, err := c.Log(ctx, nil)
			if err != nil {
				c.mu.Unlock()
				log.Warnf("creating trace log: %v", err)
				return
			}
			fut = rec.fut
		}
		c.traceFuts[root.ID] = fut
	}
	if completed {
		delete(c.traceFuts, root.ID)
	}
	c.mu.Unlock()

	c.traces.Submit(fut, &delivery.TraceUpdate{
		Project:   c.cfg.Project,
		Context:   scope.WritePath(ctx),
		Trace:     payload,
		Completed: completed,
	})
}
