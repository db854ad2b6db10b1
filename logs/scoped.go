/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logs

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/tracelog/scope"
)

// WithEntries derives a context whose write primitives attach the given
// entries ambiently. Read-mode layers instead narrow queries.
func WithEntries(ctx context.Context, mode scope.Mode, values map[string]any, opts ...scope.Option) (context.Context, error) {
	return scope.WithValues(ctx, scope.KindEntries, mode, values, opts...)
}

// WithParams derives a context whose write primitives attach the given
// parameters ambiently.
func WithParams(ctx context.Context, mode scope.Mode, values map[string]any, opts ...scope.Option) (context.Context, error) {
	return scope.WithValues(ctx, scope.KindParams, mode, values, opts...)
}

// WithContext derives a context scoped under the named sub-context of
// the store. Write-mode layers ensure the context exists remotely, best
// effort.
func (c *Client) WithContext(ctx context.Context, mode scope.Mode, name string, opts ...scope.Option) (context.Context, error) {
	derived, err := scope.WithPath(ctx, mode, name, opts...)
	if err != nil {
		return nil, err
	}
	if mode != scope.ModeRead {
		if err := c.store.EnsureContext(ctx, c.cfg.Project, scope.WritePath(derived)); err != nil {
			clog.FromContext(ctx).Warnf("ensuring context %q: %v", scope.WritePath(derived), err)
		}
	}
	return derived, nil
}

// WithLog derives a context in which the given record is the active
// log: Capture and trace flushes attach to it instead of creating new
// records.
func WithLog(ctx context.Context, l *Log) context.Context {
	return scope.WithActive(ctx, l)
}

// ActiveLog returns the innermost active log, if any.
func ActiveLog(ctx context.Context) (*Log, bool) {
	return scope.Active[*Log](ctx)
}

var expName = regexp.MustCompile(`^exp(\d+)$`)

// WithExperiment derives a context carrying an "experiment" parameter.
// An empty name auto-increments over the experiments already present in
// the project: exp0, exp1, and so on.
func (c *Client) WithExperiment(ctx context.Context, mode scope.Mode, name string, opts ...scope.Option) (context.Context, error) {
	if name == "" {
		name = c.nextExperiment(ctx)
	}
	return scope.WithValues(ctx, scope.KindParams, mode, map[string]any{"experiment": name}, opts...)
}

// nextExperiment picks the first unused auto-generated experiment name.
// Query failures fall back to exp0 with a warning rather than blocking
// the scope.
func (c *Client) nextExperiment(ctx context.Context) string {
	next := 0
	resp, err := c.GetLogs(ctx, nil)
	if err != nil {
		clog.FromContext(ctx).Warnf("listing experiments: %v", err)
		return "exp0"
	}
	for _, l := range resp {
		pv, ok := l.Params()["experiment"]
		if !ok {
			continue
		}
		s, ok := pv.Value.(string)
		if !ok {
			continue
		}
		m := expName.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n >= next {
			next = n + 1
		}
	}
	return fmt.Sprintf("exp%d", next)
}
