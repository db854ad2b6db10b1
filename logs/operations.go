/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logs

import (
	"context"
	"maps"
	"strconv"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/tracelog/cache"
	"chainguard.dev/tracelog/delivery"
	"chainguard.dev/tracelog/scope"
	"chainguard.dev/tracelog/transport"
)

// EntryOption configures one write primitive call.
type EntryOption func(*entrySettings)

type entrySettings struct {
	overwrite bool
	mutable   map[string]bool
}

// WithOverwrite makes the write replace existing field values instead
// of appending.
func WithOverwrite() EntryOption {
	return func(s *entrySettings) { s.overwrite = true }
}

// WithMutable attaches per-field mutability metadata to the payload.
func WithMutable(fields map[string]bool) EntryOption {
	return func(s *entrySettings) { s.mutable = fields }
}

// explicitTypes renders mutability metadata in the store's field-typing
// side table format.
func (s *entrySettings) explicitTypes() map[string]any {
	if len(s.mutable) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.mutable))
	for field, mutable := range s.mutable {
		out[field] = map[string]any{"mutable": mutable}
	}
	return out
}

// Log creates a new record. Ambient write-scope entries and params are
// merged in underneath the explicit fields, and the create is queued
// asynchronously; the returned handle's id resolves once it delivers.
// With the idempotency cache enabled, a create whose logical arguments
// match a previously delivered one is served locally without another
// dispatch.
func (c *Client) Log(ctx context.Context, fields map[string]any, opts ...EntryOption) (*Log, error) {
	var set entrySettings
	for _, opt := range opts {
		opt(&set)
	}

	ambient := scope.Write(ctx, scope.KindEntries)
	entries := merged(ambient, fields)
	params := scope.Write(ctx, scope.KindParams)
	if et := set.explicitTypes(); et != nil {
		entries["explicit_types"] = et
	}

	l := &Log{
		client:  c,
		seq:     logSeq.Add(1),
		project: c.cfg.Project,
		context: scope.WritePath(ctx),
	}
	l.apply(entries, params)

	var key string
	if c.cache != nil {
		k, err := cacheKey("create_log", map[string]any{
			"project": l.project,
			"context": l.context,
			"params":  params,
			"entries": entries,
		})
		if err != nil {
			clog.FromContext(ctx).Warnf("deriving cache key: %v", err)
		} else if val, _, ok := c.cache.Lookup(k); ok {
			id, perr := strconv.ParseInt(val, 10, 64)
			if perr == nil {
				l.fut = delivery.Resolved(id)
				c.markLogged(ctx, l, ambient, scope.KindEntries)
				c.markLogged(ctx, l, params, scope.KindParams)
				return l, nil
			}
			clog.FromContext(ctx).Warnf("corrupt cached log id %q: %v", val, perr)
		} else {
			key = k
		}
	}

	l.fut = c.mgr.SubmitCreate(&transport.CreateLogsRequest{
		Project: l.project,
		Context: l.context,
		Params:  []map[string]any{params},
		Entries: []map[string]any{entries},
	})
	if key != "" {
		go c.storeCachedID(ctx, key, l.fut)
	}

	c.markLogged(ctx, l, ambient, scope.KindEntries)
	c.markLogged(ctx, l, params, scope.KindParams)
	return l, nil
}

// storeCachedID records the resolved id under the create's cache key so
// an identical later create is served locally.
func (c *Client) storeCachedID(ctx context.Context, key string, fut *delivery.Future) {
	id, err := fut.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return
	}
	if err := c.cache.Store(key, strconv.FormatInt(id, 10), nil); err != nil {
		clog.FromContext(ctx).Warnf("caching log id: %v", err)
	}
}

// AddLogEntries appends fields to an existing record asynchronously.
// Ambient write-scope entries not yet flushed to this record ride
// along; ambient keys the record has already received are skipped.
func (c *Client) AddLogEntries(ctx context.Context, l *Log, fields map[string]any, opts ...EntryOption) error {
	return c.addLog(ctx, l, fields, scope.KindEntries, opts...)
}

// AddLogParams appends parameters to an existing record asynchronously.
func (c *Client) AddLogParams(ctx context.Context, l *Log, fields map[string]any, opts ...EntryOption) error {
	return c.addLog(ctx, l, fields, scope.KindParams, opts...)
}

func (c *Client) addLog(ctx context.Context, l *Log, fields map[string]any, kind scope.Kind, opts ...EntryOption) error {
	var set entrySettings
	for _, opt := range opts {
		opt(&set)
	}

	ambient := scope.Write(ctx, kind)
	if table := scope.LoggedTable(ctx, kind); table != nil {
		ambient = table.Unseen(l.seq, ambient)
	}
	payload := merged(ambient, fields)
	if et := set.explicitTypes(); et != nil {
		payload["explicit_types"] = et
	}
	if len(payload) == 0 {
		return nil
	}

	// A surrounding scope entered with overwrite makes every write
	// under it replace rather than extend.
	req := &transport.UpdateLogsRequest{
		Project:   l.project,
		Context:   l.context,
		Overwrite: set.overwrite || scope.Overwrite(ctx, kind) || scope.PathOverwrite(ctx),
	}
	if kind == scope.KindParams {
		req.Params = payload
		l.apply(nil, payload)
	} else {
		req.Entries = payload
		l.apply(payload, nil)
	}
	c.mgr.SubmitUpdate(l.fut, req)
	c.markLogged(ctx, l, ambient, kind)
	return nil
}

// markLogged records which ambient keys have been flushed to the
// record, keyed by its process-local identity so pending ids never
// block.
func (c *Client) markLogged(ctx context.Context, l *Log, values map[string]any, kind scope.Kind) {
	table := scope.LoggedTable(ctx, kind)
	if table == nil || len(values) == 0 {
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	table.Mark(l.seq, keys...)
}

// UpdateLogs applies one entries mutation to several records by id.
func (c *Client) UpdateLogs(ctx context.Context, ids []int64, entries map[string]any, overwrite bool) error {
	return c.store.UpdateLogs(ctx, &transport.UpdateLogsRequest{
		Logs:      ids,
		Project:   c.cfg.Project,
		Entries:   entries,
		Overwrite: overwrite,
	})
}

// DeleteLogs removes whole records by id.
func (c *Client) DeleteLogs(ctx context.Context, ids ...int64) error {
	return c.store.DeleteLogs(ctx, &transport.DeleteLogsRequest{
		Project:      c.cfg.Project,
		IDsAndFields: []transport.IDsAndFields{{IDs: ids}},
	})
}

// GetOptions filter a GetLogs query beyond the ambient read scope.
type GetOptions struct {
	Filter string
	Limit  int
	Offset int
}

// GetLogs queries records. The surrounding read scope supplies the
// namespace path; returned records carry their params joined with the
// response's versioned table into (version, value) pairs.
func (c *Client) GetLogs(ctx context.Context, opts *GetOptions) ([]*Log, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	resp, err := c.store.GetLogs(ctx, &transport.GetLogsRequest{
		Project: c.cfg.Project,
		Context: scope.ReadPath(ctx),
		Filter:  opts.Filter,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*Log, 0, len(resp.Logs))
	for _, rec := range resp.Logs {
		out = append(out, &Log{
			client:  c,
			seq:     logSeq.Add(1),
			fut:     delivery.Resolved(rec.ID),
			project: c.cfg.Project,
			context: scope.ReadPath(ctx),
			entries: rec.Entries,
			params:  joinParams(rec.Params, resp.Params),
		})
	}
	return out, nil
}

// Capture logs a named value: onto the log active in scope when one is
// open, otherwise as a fresh record.
func (c *Client) Capture(ctx context.Context, name string, value any) (*Log, error) {
	if l, ok := ActiveLog(ctx); ok {
		return l, c.AddLogEntries(ctx, l, map[string]any{name: value})
	}
	return c.Log(ctx, map[string]any{name: value})
}

// merged overlays explicit fields onto ambient values.
func merged(ambient, fields map[string]any) map[string]any {
	out := make(map[string]any, len(ambient)+len(fields))
	maps.Copy(out, ambient)
	maps.Copy(out, fields)
	return out
}

// cacheKey derives the idempotency key for a mutation, with volatile
// span fields stripped from any nested trace payloads first.
func cacheKey(op string, args map[string]any) (string, error) {
	stable := make(map[string]any, len(args))
	for k, v := range args {
		if m, ok := v.(map[string]any); ok {
			stable[k] = stripNested(m)
			continue
		}
		stable[k] = v
	}
	return cache.Key(op, stable)
}

func stripNested(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cache.StripVolatile(nested)
			continue
		}
		out[k] = v
	}
	return out
}
