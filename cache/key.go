/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// volatileSpanFields are stripped from span payloads before hashing so that
// two executions of the same traced function with identical logical inputs
// collapse to one cache key even though their ids and timing differ.
var volatileSpanFields = map[string]struct{}{
	"id":             {},
	"exec_time":      {},
	"parent_span_id": {},
	"offset":         {},
	"timestamp":      {},
}

// Key derives the cache key for a call: the function name plus a canonical
// JSON serialization of its arguments. Nil-valued arguments are dropped and
// map keys are emitted in sorted order, so equal calls always produce equal
// keys.
func Key(fn string, args map[string]any) (string, error) {
	kept := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		kept[k] = v
	}
	// ConfigStd sorts map keys, matching encoding/json.
	raw, err := sonic.ConfigStd.Marshal(kept)
	if err != nil {
		return "", fmt.Errorf("serializing cache key args: %w", err)
	}
	return fn + "_" + string(raw), nil
}

// StripVolatile returns a copy of a span payload with per-execution fields
// (id, timing, parent linkage) removed, recursing through child spans.
func StripVolatile(span map[string]any) map[string]any {
	out := make(map[string]any, len(span))
	for k, v := range span {
		if _, ok := volatileSpanFields[k]; ok {
			continue
		}
		if k == "child_spans" {
			if children, ok := v.([]any); ok {
				stripped := make([]any, 0, len(children))
				for _, child := range children {
					if m, ok := child.(map[string]any); ok {
						stripped = append(stripped, StripVolatile(m))
					} else {
						stripped = append(stripped, child)
					}
				}
				out[k] = stripped
				continue
			}
		}
		out[k] = v
	}
	return out
}
