/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package cache implements the local idempotency cache.
//
// The cache memoizes log-mutation calls by a deterministic serialization of
// their arguments, so replaying the same script does not duplicate remote
// writes. The backing store is an append-only newline-delimited JSON file:
// one record per stored entry, with an in-memory index rebuilt from the
// file on open. Appends are cheap and crash-safe; a corrupt or truncated
// trailing record is skipped with a warning rather than failing the open.
package cache
