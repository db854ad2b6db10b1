/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package scope

import "sync"

// Logged tracks which keys have already been flushed for each log record
// while a write layer is open, so nested logging calls do not re-send
// unchanged ambient values. One table is shared by every layer of an open
// stack, including layers inherited by spawned goroutines, so access is
// mutex guarded.
type Logged struct {
	mu   sync.Mutex
	keys map[int64]map[string]struct{}
}

func newLogged() *Logged {
	return &Logged{keys: make(map[int64]map[string]struct{})}
}

// Mark records that the given keys have been flushed for the log id.
func (l *Logged) Mark(id int64, keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.keys[id]
	if !ok {
		set = make(map[string]struct{}, len(keys))
		l.keys[id] = set
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
}

// Seen reports whether the key has already been flushed for the log id.
func (l *Logged) Seen(id int64, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[id][key]
	return ok
}

// Unseen filters values down to the keys not yet flushed for the log id.
func (l *Logged) Unseen(id int64, values map[string]any) map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]any, len(values))
	seen := l.keys[id]
	for k, v := range values {
		if _, ok := seen[k]; !ok {
			out[k] = v
		}
	}
	return out
}
