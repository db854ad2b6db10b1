/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package delivery performs log writes off the caller's critical path.
//
// Callers submit create and update events and immediately get back a
// Future for the eventual server-assigned log id. An unbounded FIFO feeds
// a fixed pool of workers that each pull one event at a time, perform the
// network call, and resolve or reject the event's future. Updates may be
// queued before their create has completed; the worker handling an update
// waits on the create's future, so an update never races ahead of its
// create, while unrelated records proceed fully in parallel.
//
// A failed call rejects only its own future. Delivery is best-effort
// observability, not a system of record: there are no retries, and a
// rejected future never propagates to unrelated operations.
package delivery
