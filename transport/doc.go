/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package transport wraps the remote store's REST surface.
//
// The store is treated as a black box: this package owns request/response
// shapes and single-shot dispatch, nothing more. There is no retry
// configuration here. A failed call surfaces immediately so the delivery
// layer can reject the matching future; retries would hide duplicate-write
// hazards the idempotency cache exists to prevent.
package transport
