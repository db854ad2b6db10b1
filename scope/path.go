/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package scope

import (
	"context"
	"path"
)

// pathKey keys the namespace-path concern in a context.
type pathKey struct{}

// pathLayer is one level of the namespace path stack. Read and write paths
// accumulate independently so a read-only layer narrows queries without
// redirecting writes.
type pathLayer struct {
	write     string
	read      string
	mode      Mode
	overwrite bool
}

var rootPath = &pathLayer{mode: ModeBoth}

func pathFrom(ctx context.Context) *pathLayer {
	if l, ok := ctx.Value(pathKey{}).(*pathLayer); ok {
		return l
	}
	return rootPath
}

// WithPath appends a segment to the namespace path and returns the derived
// context. Segments join with forward slashes regardless of platform.
func WithPath(ctx context.Context, mode Mode, segment string, opts ...Option) (context.Context, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	set, err := applyOptions(mode, opts)
	if err != nil {
		return nil, err
	}
	parent := pathFrom(ctx)
	if err := checkNesting(parent.mode, mode); err != nil {
		return nil, err
	}
	next := &pathLayer{
		write:     parent.write,
		read:      parent.read,
		mode:      mode,
		overwrite: parent.overwrite || set.overwrite,
	}
	if mode.writes() {
		next.write = joinPath(parent.write, segment)
	}
	if mode.reads() {
		next.read = joinPath(parent.read, segment)
	}
	return context.WithValue(ctx, pathKey{}, next), nil
}

// WritePath returns the namespace path that log writes attach to.
func WritePath(ctx context.Context) string { return pathFrom(ctx).write }

// ReadPath returns the namespace path used as an implicit query filter.
func ReadPath(ctx context.Context) string { return pathFrom(ctx).read }

// PathMode returns the innermost path layer's mode, or ModeBoth when no
// layer is open.
func PathMode(ctx context.Context) Mode { return pathFrom(ctx).mode }

// PathOverwrite reports whether any open path layer was entered with
// WithOverwrite.
func PathOverwrite(ctx context.Context) bool { return pathFrom(ctx).overwrite }

func joinPath(base, segment string) string {
	if base == "" {
		return path.Clean(segment)
	}
	return path.Join(base, segment)
}
