/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package genai extracts token usage from generative AI provider
// responses and records it as OpenTelemetry metrics. It understands the
// response types of the OpenAI and Anthropic SDKs as well as generic
// decoded JSON, so traced functions can return provider objects
// directly and still have their usage aggregated.
package genai
