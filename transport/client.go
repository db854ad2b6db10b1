/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRemote is the sentinel wrapped by every non-2xx response.
var ErrRemote = errors.New("remote store error")

// Error carries the status and body of a failed remote call.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote store returned %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error { return ErrRemote }

// Client performs single-shot REST calls against the remote store.
type Client struct {
	rc *resty.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout time.Duration
	hc      *http.Client
}

// WithTimeout sets the per-request timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHTTPClient substitutes the underlying http.Client, mainly for tests.
// Options compose in any order; a timeout set alongside it still applies.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.hc = hc }
}

// New creates a Client for the given base URL, authenticating every
// request with the API key as a bearer token.
func New(baseURL, apiKey string, opts ...Option) *Client {
	o := &options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(o)
	}

	rc := resty.New()
	if o.hc != nil {
		rc = resty.NewWithClient(o.hc)
	}
	rc.SetBaseURL(baseURL).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetAuthToken(apiKey)
	return &Client{rc: rc}
}

// CreateLogs creates one log per params/entries pair and returns the
// server-assigned ids in order.
func (c *Client) CreateLogs(ctx context.Context, req *CreateLogsRequest) ([]int64, error) {
	var out createLogsResponse
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/logs")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.LogEventIDs, nil
}

// UpdateLogs adds or overwrites params/entries on existing logs.
func (c *Client) UpdateLogs(ctx context.Context, req *UpdateLogsRequest) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(req).
		Put("/logs")
	return check(resp, err)
}

// DeleteLogs deletes whole logs or single fields from them.
func (c *Client) DeleteLogs(ctx context.Context, req *DeleteLogsRequest) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(req).
		Delete("/logs")
	return check(resp, err)
}

// GetLogs fetches records matching the query, along with the versioned
// params table they reference.
func (c *Client) GetLogs(ctx context.Context, req *GetLogsRequest) (*GetLogsResponse, error) {
	r := c.rc.R().
		SetContext(ctx).
		SetQueryParam("project", req.Project)
	if req.Context != "" {
		r.SetQueryParam("context", req.Context)
	}
	if req.Filter != "" {
		r.SetQueryParam("filter", req.Filter)
	}
	if req.Limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		r.SetQueryParam("offset", strconv.Itoa(req.Offset))
	}

	var out GetLogsResponse
	resp, err := r.SetResult(&out).Get("/logs")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnsureProject creates the project if it does not already exist. An
// already-exists conflict is not an error.
func (c *Client) EnsureProject(ctx context.Context, name string) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{"name": name}).
		Post("/projects")
	if resp != nil && resp.StatusCode() == http.StatusConflict {
		return nil
	}
	return check(resp, err)
}

// EnsureContext creates the named context under the project if it does not
// already exist. An already-exists conflict is not an error.
func (c *Client) EnsureContext(ctx context.Context, project, name string) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{"project": project, "name": name}).
		Post("/contexts")
	if resp != nil && resp.StatusCode() == http.StatusConflict {
		return nil
	}
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	if resp.IsError() {
		return &Error{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}
