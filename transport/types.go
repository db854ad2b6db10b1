/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package transport

// CreateLogsRequest is the body of POST /logs.
type CreateLogsRequest struct {
	Project string           `json:"project"`
	Context string           `json:"context,omitempty"`
	Params  []map[string]any `json:"params"`
	Entries []map[string]any `json:"entries"`
}

// createLogsResponse is the body returned by POST /logs.
type createLogsResponse struct {
	LogEventIDs []int64 `json:"log_event_ids"`
}

// UpdateLogsRequest is the body of PUT /logs. Exactly one of Params or
// Entries is typically set; both may be.
type UpdateLogsRequest struct {
	Logs      []int64        `json:"logs"`
	Project   string         `json:"project,omitempty"`
	Context   string         `json:"context,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Entries   map[string]any `json:"entries,omitempty"`
	Overwrite bool           `json:"overwrite"`
}

// IDsAndFields pairs a set of log ids with an optional field name. A nil
// Field means the whole records.
type IDsAndFields struct {
	IDs   []int64 `json:"ids"`
	Field *string `json:"field"`
}

// DeleteLogsRequest is the body of DELETE /logs.
type DeleteLogsRequest struct {
	Project      string         `json:"project"`
	Context      string         `json:"context,omitempty"`
	IDsAndFields []IDsAndFields `json:"ids_and_fields"`
}

// GetLogsRequest carries the query parameters of GET /logs.
type GetLogsRequest struct {
	Project string
	Context string
	Filter  string
	Limit   int
	Offset  int
}

// LogRecord is one stored record as returned by GET /logs. Params
// reference versions in the response-level params table.
type LogRecord struct {
	ID      int64             `json:"id"`
	TS      string            `json:"ts"`
	Entries map[string]any    `json:"entries"`
	Params  map[string]string `json:"params"`
}

// GetLogsResponse is the body returned by GET /logs. Params is the
// versioned parameter table: name → version → value.
type GetLogsResponse struct {
	Params map[string]map[string]any `json:"params"`
	Logs   []LogRecord               `json:"logs"`
	Count  int                       `json:"count"`
}
