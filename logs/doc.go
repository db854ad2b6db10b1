/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package logs is the user-facing surface of the SDK. A Client owns the
// transport, the async delivery manager, the optional local idempotency
// cache, and a span tracer, and exposes the logging primitives: Log
// creates a record, AddLogEntries and AddLogParams extend one, and
// GetLogs queries the store with the surrounding read scope applied as
// an implicit filter.
//
// Scoped constructs (WithEntries, WithParams, WithContext,
// WithExperiment, WithLog) derive contexts that carry ambient state;
// every write primitive merges that state into its payload, explicit
// arguments winning over ambient values, and already-flushed ambient
// keys are not re-sent to the same record while the scope stays open.
//
// All writes are asynchronous: primitives return as soon as the event
// is queued, and the record's eventual id is observable through
// Log.ID. Drain or Shutdown the client to wait for delivery.
package logs
