/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package scope

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// Mode declares how a scope layer participates in logging.
type Mode string

const (
	// ModeRead layers only contribute to the read (query filter) view.
	ModeRead Mode = "read"
	// ModeWrite layers only contribute to the write (log attachment) view.
	ModeWrite Mode = "write"
	// ModeBoth layers contribute to both views.
	ModeBoth Mode = "both"
)

// Validate checks that the mode is one of read, write, or both.
func (m Mode) Validate() error {
	switch m {
	case ModeRead, ModeWrite, ModeBoth:
		return nil
	}
	return fmt.Errorf("mode must be one of %q, %q, or %q, but found %q", ModeRead, ModeWrite, ModeBoth, m)
}

// writes reports whether the mode contributes to the write view.
func (m Mode) writes() bool { return m == ModeWrite || m == ModeBoth }

// reads reports whether the mode contributes to the read view.
func (m Mode) reads() bool { return m == ModeRead || m == ModeBoth }

// ErrScopeMismatch is returned when a child layer declares an access mode
// incompatible with its still-open parent. It is surfaced immediately and
// never recovered.
var ErrScopeMismatch = errors.New("incompatible scope nesting")

// checkNesting enforces the mode compatibility rule: a child may only
// narrow a "both" parent or repeat the parent's own mode.
func checkNesting(parent, child Mode) error {
	if parent == ModeBoth || parent == child {
		return nil
	}
	return fmt.Errorf("%w: cannot nest mode %q under parent with mode %q", ErrScopeMismatch, child, parent)
}

// Option configures one scope layer.
type Option func(*layerSettings)

type layerSettings struct {
	overwrite bool
}

// WithOverwrite marks values logged under this layer as replacing any
// fields already present on the target records rather than extending
// them. Overwrite requires a mode that writes; combining it with a
// read-only layer is a scope error.
func WithOverwrite() Option {
	return func(s *layerSettings) { s.overwrite = true }
}

func applyOptions(mode Mode, opts []Option) (*layerSettings, error) {
	set := &layerSettings{}
	for _, opt := range opts {
		opt(set)
	}
	if set.overwrite && !mode.writes() {
		return nil, fmt.Errorf("%w: overwrite requires a writing mode, but found %q", ErrScopeMismatch, mode)
	}
	return set, nil
}

// Kind names one of the independent keyed-value concerns held in scope.
type Kind string

const (
	// KindEntries is the active-entries concern.
	KindEntries Kind = "entries"
	// KindParams is the active-params concern.
	KindParams Kind = "params"
)

// layerKey keys one concern's innermost layer in a context.
type layerKey struct{ kind Kind }

// layer is one merged level of a concern's stack. Layers are immutable
// after construction; nesting derives a new layer from the parent.
type layer struct {
	write     map[string]any
	read      map[string]any
	mode      Mode
	depth     int // write-side nesting depth
	overwrite bool
	logged    *Logged
}

// rootLayer is the implicit state before any layer has been entered.
var rootLayer = &layer{mode: ModeBoth}

func layerFrom(ctx context.Context, kind Kind) *layer {
	if l, ok := ctx.Value(layerKey{kind}).(*layer); ok {
		return l
	}
	return rootLayer
}

// merged returns parent overlaid with values. The parent map is never
// mutated.
func merged(parent, values map[string]any) map[string]any {
	out := make(map[string]any, len(parent)+len(values))
	maps.Copy(out, parent)
	maps.Copy(out, values)
	return out
}

// WithValues pushes one layer of values for the given concern and returns
// the derived context. The previous state is restored by going back to the
// parent context; there is no explicit pop. When the outermost write layer
// is entered a fresh already-logged table is attached, so the table is
// naturally discarded once the stack fully unwinds.
func WithValues(ctx context.Context, kind Kind, mode Mode, values map[string]any, opts ...Option) (context.Context, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	set, err := applyOptions(mode, opts)
	if err != nil {
		return nil, err
	}
	parent := layerFrom(ctx, kind)
	if err := checkNesting(parent.mode, mode); err != nil {
		return nil, err
	}

	next := &layer{
		write:     parent.write,
		read:      parent.read,
		mode:      mode,
		depth:     parent.depth,
		overwrite: parent.overwrite || set.overwrite,
		logged:    parent.logged,
	}
	if mode.writes() {
		next.write = merged(parent.write, values)
		next.depth = parent.depth + 1
		if next.logged == nil {
			next.logged = newLogged()
		}
	}
	if mode.reads() {
		next.read = merged(parent.read, values)
	}
	return context.WithValue(ctx, layerKey{kind}, next), nil
}

// Write returns the fully merged write view for the concern. The returned
// map is a copy and safe to mutate.
func Write(ctx context.Context, kind Kind) map[string]any {
	return maps.Clone(orEmpty(layerFrom(ctx, kind).write))
}

// Read returns the fully merged read view for the concern. The returned
// map is a copy and safe to mutate.
func Read(ctx context.Context, kind Kind) map[string]any {
	return maps.Clone(orEmpty(layerFrom(ctx, kind).read))
}

// Depth returns the write-side nesting depth for the concern. Zero means
// no write layer is open.
func Depth(ctx context.Context, kind Kind) int {
	return layerFrom(ctx, kind).depth
}

// ModeOf returns the innermost layer's mode for the concern, or ModeBoth
// when no layer is open.
func ModeOf(ctx context.Context, kind Kind) Mode {
	return layerFrom(ctx, kind).mode
}

// Overwrite reports whether any open layer of the concern was entered
// with WithOverwrite. The flag is sticky: once set it applies to every
// nested layer until the stack unwinds past it.
func Overwrite(ctx context.Context, kind Kind) bool {
	return layerFrom(ctx, kind).overwrite
}

// LoggedTable returns the already-logged tracking table shared by the
// currently open write layers of the concern, or nil when depth is zero.
func LoggedTable(ctx context.Context, kind Kind) *Logged {
	l := layerFrom(ctx, kind)
	if l.depth == 0 {
		return nil
	}
	return l.logged
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
