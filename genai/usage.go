/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package genai

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Usage is token consumption for one model invocation. Cache counts
// are kept separate so callers can report usage both with and without
// cached tokens. Extra carries provider usage fields beyond the token
// counts (cost, reasoning tokens, and so on) verbatim, so they survive
// additive aggregation.
type Usage struct {
	PromptTokens     int64              `json:"prompt_tokens"`
	CompletionTokens int64              `json:"completion_tokens"`
	TotalTokens      int64              `json:"total_tokens"`
	CacheReadTokens  int64              `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64              `json:"cache_write_tokens,omitempty"`
	Extra            map[string]float64 `json:"extra,omitempty"`
}

// Map renders the usage as numbers suitable for additive merging, with
// cached tokens excluded from the prompt count.
func (u Usage) Map() map[string]any {
	out := map[string]any{
		"prompt_tokens":     float64(u.PromptTokens - u.CacheReadTokens),
		"completion_tokens": float64(u.CompletionTokens),
		"total_tokens":      float64(u.TotalTokens - u.CacheReadTokens),
	}
	for k, v := range u.Extra {
		out[k] = v
	}
	return out
}

// MapIncCache is like Map but counts cached tokens too.
func (u Usage) MapIncCache() map[string]any {
	out := map[string]any{
		"prompt_tokens":      float64(u.PromptTokens),
		"completion_tokens":  float64(u.CompletionTokens),
		"total_tokens":       float64(u.TotalTokens),
		"cache_read_tokens":  float64(u.CacheReadTokens),
		"cache_write_tokens": float64(u.CacheWriteTokens),
	}
	for k, v := range u.Extra {
		out[k] = v
	}
	return out
}

// Extract pulls token usage out of a provider response. It recognizes
// OpenAI chat completions, Anthropic messages, and decoded JSON maps
// carrying a "usage" object.
func Extract(output any) (Usage, bool) {
	switch v := output.(type) {
	case *openai.ChatCompletion:
		if v == nil {
			return Usage{}, false
		}
		return fromOpenAI(v.Usage), true
	case openai.ChatCompletion:
		return fromOpenAI(v.Usage), true
	case *anthropic.Message:
		if v == nil {
			return Usage{}, false
		}
		return fromAnthropic(v.Usage), true
	case anthropic.Message:
		return fromAnthropic(v.Usage), true
	case map[string]any:
		raw, ok := v["usage"].(map[string]any)
		if !ok {
			return Usage{}, false
		}
		return fromMap(raw), true
	}
	return Usage{}, false
}

func fromOpenAI(u openai.CompletionUsage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		CacheReadTokens:  u.PromptTokensDetails.CachedTokens,
	}
}

func fromAnthropic(u anthropic.Usage) Usage {
	prompt := u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      prompt + u.OutputTokens,
		CacheReadTokens:  u.CacheReadInputTokens,
		CacheWriteTokens: u.CacheCreationInputTokens,
	}
}

// tokenFields are the usage keys lifted into typed Usage fields; every
// other numeric field passes through Extra untouched.
var tokenFields = map[string]struct{}{
	"prompt_tokens":      {},
	"completion_tokens":  {},
	"total_tokens":       {},
	"cache_read_tokens":  {},
	"cache_write_tokens": {},
}

func fromMap(raw map[string]any) Usage {
	u := Usage{
		PromptTokens:     asInt64(raw["prompt_tokens"]),
		CompletionTokens: asInt64(raw["completion_tokens"]),
		TotalTokens:      asInt64(raw["total_tokens"]),
		CacheReadTokens:  asInt64(raw["cache_read_tokens"]),
		CacheWriteTokens: asInt64(raw["cache_write_tokens"]),
	}
	for k, v := range raw {
		if _, ok := tokenFields[k]; ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			if u.Extra == nil {
				u.Extra = make(map[string]float64)
			}
			u.Extra[k] = n
		case int64:
			if u.Extra == nil {
				u.Extra = make(map[string]float64)
			}
			u.Extra[k] = float64(n)
		case int:
			if u.Extra == nil {
				u.Extra = make(map[string]float64)
			}
			u.Extra[k] = float64(n)
		}
	}
	return u
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}
