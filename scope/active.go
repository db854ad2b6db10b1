/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package scope

import "context"

// activeKey is the context key for an active stack of values of type T.
type activeKey[T any] struct{}

// node is one immutable link of an active stack.
type node[T any] struct {
	value T
	prev  *node[T]
}

// WithActive pushes a value onto the active stack for type T. The stack is
// per-context: deriving a context copies the stack reference, so sibling
// goroutines can push independently without seeing each other's values.
func WithActive[T any](ctx context.Context, value T) context.Context {
	prev, _ := ctx.Value(activeKey[T]{}).(*node[T])
	return context.WithValue(ctx, activeKey[T]{}, &node[T]{value: value, prev: prev})
}

// Active returns the innermost active value of type T.
func Active[T any](ctx context.Context) (T, bool) {
	if n, ok := ctx.Value(activeKey[T]{}).(*node[T]); ok {
		return n.value, true
	}
	var zero T
	return zero, false
}

// ActiveStack returns the full active stack of type T, outermost first.
func ActiveStack[T any](ctx context.Context) []T {
	n, _ := ctx.Value(activeKey[T]{}).(*node[T])
	var out []T
	for ; n != nil; n = n.prev {
		out = append(out, n.value)
	}
	// Reverse into push order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
