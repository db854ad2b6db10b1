/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package trace

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// SpanType classifies a span.
type SpanType string

const (
	// TypeFunction is an ordinary traced function call.
	TypeFunction SpanType = "function"
	// TypeLLM is a call whose output carries model token usage.
	TypeLLM SpanType = "llm"
	// TypeLLMCached is an llm call served through a local cache. One
	// that produces no output is discarded rather than emitted.
	TypeLLMCached SpanType = "llm-cached"
)

// Span is one node in a captured call tree.
type Span struct {
	ID            string         `json:"id"`
	Type          SpanType       `json:"type"`
	ParentSpanID  string         `json:"parent_span_id,omitempty"`
	SpanName      string         `json:"span_name"`
	ExecTime      float64        `json:"exec_time"`
	Timestamp     string         `json:"timestamp"`
	Offset        float64        `json:"offset"`
	Usage         map[string]any `json:"llm_usage,omitempty"`
	UsageIncCache map[string]any `json:"llm_usage_inc_cache,omitempty"`
	Inputs        map[string]any `json:"inputs"`
	Outputs       any            `json:"outputs"`
	Errors        *string        `json:"errors"`
	ChildSpans    []*Span        `json:"child_spans"`
	Completed     bool           `json:"completed"`
}

// clone deep-copies the span tree. Callers must hold the tree lock.
func (s *Span) clone() *Span {
	cp := *s
	cp.Usage = cloneMap(s.Usage)
	cp.UsageIncCache = cloneMap(s.UsageIncCache)
	cp.Inputs = cloneMap(s.Inputs)
	if len(s.ChildSpans) > 0 {
		cp.ChildSpans = make([]*Span, 0, len(s.ChildSpans))
		for _, c := range s.ChildSpans {
			cp.ChildSpans = append(cp.ChildSpans, c.clone())
		}
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// Map renders the span tree as decoded JSON for delivery payloads.
func (s *Span) Map() (map[string]any, error) {
	raw, err := sonic.ConfigStd.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serializing span %q: %w", s.SpanName, err)
	}
	var out map[string]any
	if err := sonic.ConfigStd.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding span %q: %w", s.SpanName, err)
	}
	return out, nil
}

// nestedAdd merges src into dst additively: numbers are summed, nested
// maps merged recursively, everything else last-writer-wins. dst may be
// nil.
func nestedAdd(dst, src map[string]any) map[string]any {
	if src == nil {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		dv, ok := dst[k]
		if !ok {
			if nested, isMap := sv.(map[string]any); isMap {
				dst[k] = nestedAdd(nil, nested)
			} else {
				dst[k] = sv
			}
			continue
		}
		switch d := dv.(type) {
		case map[string]any:
			if nested, isMap := sv.(map[string]any); isMap {
				dst[k] = nestedAdd(d, nested)
				continue
			}
		case float64:
			if n, isNum := toFloat(sv); isNum {
				dst[k] = d + n
				continue
			}
		case int64:
			if n, isNum := toFloat(sv); isNum {
				dst[k] = float64(d) + n
				continue
			}
		case int:
			if n, isNum := toFloat(sv); isNum {
				dst[k] = float64(d) + n
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// pruneEmpty drops subtrees with no inputs, outputs, or surviving
// descendants. It reports whether s itself should be kept.
func pruneEmpty(s *Span) bool {
	kept := s.ChildSpans[:0]
	for _, c := range s.ChildSpans {
		if pruneEmpty(c) {
			kept = append(kept, c)
		}
	}
	s.ChildSpans = kept
	return len(s.Inputs) > 0 || !emptyOutput(s.Outputs) || len(s.ChildSpans) > 0
}

func emptyOutput(v any) bool {
	switch o := v.(type) {
	case nil:
		return true
	case string:
		return o == ""
	case map[string]any:
		return len(o) == 0
	case []any:
		return len(o) == 0
	}
	return false
}

// serialize renders v as decoded JSON, falling back to its string
// representation when it cannot be marshaled.
func serialize(v any) any {
	if v == nil {
		return nil
	}
	raw, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := sonic.ConfigStd.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

// serializeInputs renders bound arguments as a field map. Struct and
// map arguments keep their own fields; anything else lands under a
// single "input" key.
func serializeInputs(v any) map[string]any {
	out := serialize(v)
	if m, ok := out.(map[string]any); ok {
		return m
	}
	if out == nil {
		return map[string]any{}
	}
	return map[string]any{"input": out}
}
