/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logs

import (
	"context"
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
	"github.com/chainguard-dev/clog"

	"chainguard.dev/tracelog/cache"
	"chainguard.dev/tracelog/trace"
)

// Cached wraps fn so identical invocations are served from the client's
// local idempotency cache instead of calling fn again. Each invocation
// is also traced as an llm-cached span, so a lookup that produces
// nothing leaves no phantom span behind. With no cache configured the
// wrapper only traces.
func Cached[I, O any](c *Client, name string, fn func(context.Context, I) (O, error)) func(context.Context, I) (O, error) {
	inner := func(ctx context.Context, in I) (O, error) {
		var zero O
		if c.cache == nil {
			return fn(ctx, in)
		}
		log := clog.FromContext(ctx)

		key, err := cacheKey(name, argsOf(in))
		if err != nil {
			log.Warnf("deriving cache key for %q: %v", name, err)
			return fn(ctx, in)
		}

		if raw, hints, ok := c.cache.Lookup(key); ok {
			var out O
			if err := sonic.ConfigStd.Unmarshal([]byte(raw), &out); err != nil {
				log.Warnf("corrupt cached value for %q (stored as %s): %v", name, hints[""], err)
			} else {
				return out, nil
			}
		}

		out, err := fn(ctx, in)
		if err != nil {
			return zero, err
		}
		raw, err := sonic.ConfigStd.Marshal(out)
		if err != nil {
			log.Warnf("caching result of %q: %v", name, err)
			return out, nil
		}
		if err := c.cache.Store(key, string(raw), typeHints(out)); err != nil {
			log.Warnf("caching result of %q: %v", name, err)
		}
		return out, nil
	}
	return trace.Traced(c.tracer, inner,
		trace.WithName(name), trace.WithType(trace.TypeLLMCached))
}

// argsOf renders the input as a keyword-argument map for key
// derivation.
func argsOf(in any) map[string]any {
	raw, err := sonic.ConfigStd.Marshal(in)
	if err != nil {
		return map[string]any{"input": fmt.Sprintf("%v", in)}
	}
	var m map[string]any
	if err := sonic.ConfigStd.Unmarshal(raw, &m); err == nil {
		return m
	}
	var v any
	if err := sonic.ConfigStd.Unmarshal(raw, &v); err == nil {
		return map[string]any{"input": v}
	}
	return map[string]any{"input": string(raw)}
}

// typeHints records the concrete return type so readers of the cache
// file know what the serialized value was.
func typeHints(out any) cache.Hints {
	t := reflect.TypeOf(out)
	if t == nil {
		return nil
	}
	return cache.Hints{"": t.String()}
}
