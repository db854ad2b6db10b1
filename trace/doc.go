/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package trace captures call trees of traced function invocations as
// span trees and ships them as log updates.
//
// A traced call whose context carries no active span becomes the root
// of a new tree and starts the tree's offset clock. Nested traced calls
// attach to the innermost active span automatically, including across
// goroutines that inherit the caller's context. Spans record timing,
// best-effort serialized inputs and outputs, errors, and, for llm
// spans, token usage aggregated bottom-up into every ancestor.
//
// Trees are flushed incrementally: each span open and close pushes a
// snapshot of the whole tree through the configured Flusher, so partial
// traces are visible while the root call is still running.
package trace
