/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package scope implements nested, context-carried logging state.
//
// Application code layers ambient logging state (active entries, active
// params, a namespace path, and a stack of active log records) onto a
// context.Context. Each layer merges over its parent with last-writer-wins
// precedence, and unwinding is simply a matter of returning to the parent
// context: nothing is mutated in place, so sibling goroutines holding the
// same parent context are fully isolated from each other.
//
// Every layer declares an access mode (read, write, or both). The write
// view is what gets attached to log writes; the read view acts as an
// implicit filter when querying. A child layer's mode must be compatible
// with its parent's: nesting a read layer under a write-only parent (or
// vice versa) returns ErrScopeMismatch.
package scope
