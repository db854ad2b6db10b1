/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package genai

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go"
)

func TestExtractOpenAI(t *testing.T) {
	resp := &openai.ChatCompletion{
		Usage: openai.CompletionUsage{
			PromptTokens:     100,
			CompletionTokens: 40,
			TotalTokens:      140,
			PromptTokensDetails: openai.CompletionUsagePromptTokensDetails{
				CachedTokens: 30,
			},
		},
	}
	u, ok := Extract(resp)
	if !ok {
		t.Fatal("Extract() = false, wanted = true")
	}
	want := Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140, CacheReadTokens: 30}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractAnthropic(t *testing.T) {
	resp := anthropic.Message{
		Usage: anthropic.Usage{
			InputTokens:              50,
			OutputTokens:             20,
			CacheReadInputTokens:     10,
			CacheCreationInputTokens: 5,
		},
	}
	u, ok := Extract(resp)
	if !ok {
		t.Fatal("Extract() = false, wanted = true")
	}
	want := Usage{
		PromptTokens:     65,
		CompletionTokens: 20,
		TotalTokens:      85,
		CacheReadTokens:  10,
		CacheWriteTokens: 5,
	}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractMap(t *testing.T) {
	out := map[string]any{
		"choices": []any{},
		"usage": map[string]any{
			"prompt_tokens":     float64(12),
			"completion_tokens": float64(3),
			"total_tokens":      float64(15),
		},
	}
	u, ok := Extract(out)
	if !ok {
		t.Fatal("Extract() = false, wanted = true")
	}
	if u.PromptTokens != 12 || u.CompletionTokens != 3 || u.TotalTokens != 15 {
		t.Errorf("Extract() = %+v", u)
	}
}

func TestExtractMapKeepsProviderFields(t *testing.T) {
	out := map[string]any{
		"usage": map[string]any{
			"prompt_tokens":     float64(10),
			"completion_tokens": float64(5),
			"total_tokens":      float64(15),
			"cost":              0.0042,
			"reasoning_tokens":  float64(7),
			"model":             "gpt", // non-numeric, not additive
		},
	}
	u, ok := Extract(out)
	if !ok {
		t.Fatal("Extract() = false, wanted = true")
	}
	want := map[string]float64{"cost": 0.0042, "reasoning_tokens": 7}
	if diff := cmp.Diff(want, u.Extra); diff != "" {
		t.Errorf("Extra mismatch (-want +got):\n%s", diff)
	}
	if got := u.Map()["cost"]; got != 0.0042 {
		t.Errorf("Map() cost = %v, wanted = 0.0042", got)
	}
	if got := u.MapIncCache()["cost"]; got != 0.0042 {
		t.Errorf("MapIncCache() cost = %v, wanted = 0.0042", got)
	}
}

func TestExtractUnrecognized(t *testing.T) {
	for _, out := range []any{nil, "text", 42, map[string]any{"no": "usage"}, (*openai.ChatCompletion)(nil)} {
		if _, ok := Extract(out); ok {
			t.Errorf("Extract(%v) = true, wanted = false", out)
		}
	}
}

func TestUsageMapExcludesCachedTokens(t *testing.T) {
	u := Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110, CacheReadTokens: 40}

	got := u.Map()
	if got["prompt_tokens"] != float64(60) {
		t.Errorf("prompt_tokens = %v, wanted = 60", got["prompt_tokens"])
	}
	if got["total_tokens"] != float64(70) {
		t.Errorf("total_tokens = %v, wanted = 70", got["total_tokens"])
	}

	inc := u.MapIncCache()
	if inc["prompt_tokens"] != float64(100) {
		t.Errorf("inc prompt_tokens = %v, wanted = 100", inc["prompt_tokens"])
	}
}

func TestNewMetricsNeverNilCounters(t *testing.T) {
	m := NewMetrics("chainguard.ai.tracelog")
	if m.promptTokens == nil || m.completionTokens == nil || m.cacheReadTokens == nil || m.cacheWriteTokens == nil {
		t.Error("NewMetrics() returned nil counters")
	}
	// Recording through the default (noop) meter must not panic.
	m.RecordUsage(t.Context(), "test", Usage{PromptTokens: 1})
}
