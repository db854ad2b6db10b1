/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logs

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sync"
	"sync/atomic"

	"chainguard.dev/tracelog/delivery"
	"chainguard.dev/tracelog/transport"
)

// logSeq hands out process-local identities for records whose remote id
// is still pending.
var logSeq atomic.Int64

// ParamVersion is one versioned parameter value. Locally written
// parameters carry an empty version until the store assigns one.
type ParamVersion struct {
	Version string `json:"version"`
	Value   any    `json:"value"`
}

// Log is a handle on one record in the store. The remote id is assigned
// asynchronously; ID blocks until it is known. The local view of
// entries and params tracks the mutations made through this handle and
// is refreshed wholesale by Download.
type Log struct {
	client  *Client
	seq     int64
	fut     *delivery.Future
	project string
	context string

	mu      sync.Mutex
	entries map[string]any
	params  map[string]ParamVersion
}

// ID returns the record's remote id, waiting for the create to deliver
// if necessary.
func (l *Log) ID(ctx context.Context) (int64, error) {
	return l.fut.Wait(ctx)
}

// Context returns the namespace path the record was written under.
func (l *Log) Context() string { return l.context }

// Entries returns a copy of the locally known entries.
func (l *Log) Entries() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.entries)
}

// Params returns a copy of the locally known versioned parameters.
func (l *Log) Params() map[string]ParamVersion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.params)
}

// AddEntries appends fields to the record asynchronously.
func (l *Log) AddEntries(ctx context.Context, fields map[string]any, opts ...EntryOption) error {
	return l.client.AddLogEntries(ctx, l, fields, opts...)
}

// UpdateEntries overwrites fields on the record asynchronously.
func (l *Log) UpdateEntries(ctx context.Context, fields map[string]any) error {
	return l.client.AddLogEntries(ctx, l, fields, WithOverwrite())
}

// DeleteEntries removes the named fields from the record. Unlike the
// write primitives this is synchronous: it needs the remote id.
func (l *Log) DeleteEntries(ctx context.Context, fields ...string) error {
	id, err := l.ID(ctx)
	if err != nil {
		return err
	}
	req := &transport.DeleteLogsRequest{
		Project: l.project,
		Context: l.context,
	}
	for _, f := range fields {
		field := f
		req.IDsAndFields = append(req.IDsAndFields, transport.IDsAndFields{
			IDs:   []int64{id},
			Field: &field,
		})
	}
	if err := l.client.store.DeleteLogs(ctx, req); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range fields {
		delete(l.entries, f)
	}
	return nil
}

// Delete removes the whole record from the store.
func (l *Log) Delete(ctx context.Context) error {
	id, err := l.ID(ctx)
	if err != nil {
		return err
	}
	return l.client.store.DeleteLogs(ctx, &transport.DeleteLogsRequest{
		Project:      l.project,
		Context:      l.context,
		IDsAndFields: []transport.IDsAndFields{{IDs: []int64{id}}},
	})
}

// Download refreshes the local view from the store, replacing entries
// and params with whatever the record currently holds remotely.
func (l *Log) Download(ctx context.Context) error {
	id, err := l.ID(ctx)
	if err != nil {
		return err
	}
	resp, err := l.client.store.GetLogs(ctx, &transport.GetLogsRequest{
		Project: l.project,
		Context: l.context,
		Filter:  fmt.Sprintf("id == %d", id),
		Limit:   1,
	})
	if err != nil {
		return err
	}
	if len(resp.Logs) == 0 {
		return fmt.Errorf("log %d not found in project %q", id, l.project)
	}
	rec := resp.Logs[0]

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = rec.Entries
	l.params = joinParams(rec.Params, resp.Params)
	return nil
}

// Equal reports whether both handles name the same record: by remote id
// when both ids are known, by content otherwise.
func (l *Log) Equal(other *Log) bool {
	if other == nil {
		return false
	}
	if l.fut.Done() && other.fut.Done() {
		lid, lerr := l.fut.WaitTimeout(0)
		oid, oerr := other.fut.WaitTimeout(0)
		if lerr == nil && oerr == nil {
			return lid == oid
		}
	}
	l.mu.Lock()
	entries, params := maps.Clone(l.entries), maps.Clone(l.params)
	l.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()
	return reflect.DeepEqual(entries, other.entries) &&
		reflect.DeepEqual(params, other.params)
}

// joinParams resolves each record-level {name: version} reference
// against the response-level versioned table into (version, value)
// pairs.
func joinParams(refs map[string]string, table map[string]map[string]any) map[string]ParamVersion {
	out := make(map[string]ParamVersion, len(refs))
	for name, version := range refs {
		out[name] = ParamVersion{
			Version: version,
			Value:   table[name][version],
		}
	}
	return out
}

// apply records a local mutation so Entries and Params stay coherent
// with the queued writes.
func (l *Log) apply(entries, params map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = make(map[string]any, len(entries))
	}
	maps.Copy(l.entries, entries)
	if len(params) > 0 && l.params == nil {
		l.params = make(map[string]ParamVersion, len(params))
	}
	for k, v := range params {
		l.params[k] = ParamVersion{Value: v}
	}
}
