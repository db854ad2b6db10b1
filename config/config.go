/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads client configuration from the environment.
package config

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the environment-driven configuration of a logging client.
type Config struct {
	// APIKey authenticates against the remote store.
	APIKey string `env:"TRACELOG_API_KEY"`

	// BaseURL is the remote store endpoint.
	BaseURL string `env:"TRACELOG_BASE_URL,default=https://api.unify.ai/v0"`

	// Project is the default project for logs that do not name one.
	Project string `env:"TRACELOG_PROJECT,default=_"`

	// CacheDir, when set, enables the local idempotency cache and
	// places its files under this directory.
	CacheDir string `env:"TRACELOG_CACHE_DIR"`

	// Workers is the size of the delivery worker pool.
	Workers int `env:"TRACELOG_WORKERS,default=4"`

	// RequestTimeout bounds a single request against the remote store.
	RequestTimeout time.Duration `env:"TRACELOG_REQUEST_TIMEOUT,default=30s"`
}

// Load processes the environment into a Config and validates it.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration has valid values.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL cannot be empty")
	}
	if c.Project == "" {
		return errors.New("project cannot be empty")
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least one")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}
