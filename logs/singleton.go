/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logs

import (
	"context"
	"errors"
	"sync"

	"chainguard.dev/tracelog/config"
)

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Initialize builds the process-default client from the environment.
// It is a convenience for scripts; services should construct a Client
// and pass it where it is needed. Calling Initialize twice without an
// intervening ShutdownDefault is an error.
func Initialize(ctx context.Context, opts ...Option) (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		return nil, errors.New("default client already initialized")
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	defaultClient = c
	return c, nil
}

// Default returns the process-default client, if Initialize has run.
func Default() (*Client, bool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultClient, defaultClient != nil
}

// ShutdownDefault stops and clears the process-default client. Safe to
// call from exit paths whether or not Initialize ever ran.
func ShutdownDefault(ctx context.Context, immediate bool) error {
	defaultMu.Lock()
	c := defaultClient
	defaultClient = nil
	defaultMu.Unlock()
	if c == nil {
		return nil
	}
	return c.Shutdown(ctx, immediate)
}
