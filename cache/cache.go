/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/chainguard-dev/clog"
)

// Hints is a side table of reconstruction hints for a cached value:
// a path within the value (JSON-pointer-ish, "" for the root) mapped to the
// original type name, so rich return types can be rebuilt on read.
type Hints map[string]string

// record is the on-disk shape of one cache line.
type record struct {
	Key      string `json:"key"`
	Value    string `json:"value,omitempty"`
	ResTypes Hints  `json:"res_types,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

type entry struct {
	value string
	hints Hints
}

// Cache is a file-backed key/value store safe for concurrent use. A single
// mutex serializes every read-modify-write of the backing file; throughput
// comes from the append-only format, not from lock granularity.
type Cache struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	index map[string]entry
}

// Open loads (or creates) the cache file at path and rebuilds the
// in-memory index from it. Unparseable lines are skipped with a warning:
// the cache degrades to a miss for those entries instead of aborting.
func Open(ctx context.Context, path string) (*Cache, error) {
	log := clog.FromContext(ctx)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening cache file %q: %w", path, err)
	}

	index := make(map[string]entry)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := sonic.Unmarshal(raw, &rec); err != nil || rec.Key == "" {
			log.With("path", path, "line", line).
				Warnf("Skipping corrupt cache record: %v", err)
			continue
		}
		if rec.Deleted {
			delete(index, rec.Key)
			continue
		}
		index[rec.Key] = entry{value: rec.Value, hints: rec.ResTypes}
	}
	if err := scanner.Err(); err != nil {
		// A truncated tail is not fatal; everything scanned so far stands.
		log.With("path", path).Warnf("Stopped reading cache early: %v", err)
	}

	return &Cache{path: path, f: f, index: index}, nil
}

// Lookup returns the cached value and its reconstruction hints for key.
func (c *Cache) Lookup(key string) (string, Hints, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index[key]
	if !ok {
		return "", nil, false
	}
	return e.value, e.hints, true
}

// Has reports whether key is present.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[key]
	return ok
}

// Store appends a key/value/hints record and updates the index. Entries
// are written once per unique key and never mutated in place.
func (c *Cache) Store(key, value string, hints Hints) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.append(record{Key: key, Value: value, ResTypes: hints}); err != nil {
		return err
	}
	c.index[key] = entry{value: value, hints: hints}
	return nil
}

// Remove appends a tombstone for key and drops it from the index.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[key]; !ok {
		return nil
	}
	if err := c.append(record{Key: key, Deleted: true}); err != nil {
		return err
	}
	delete(c.index, key)
	return nil
}

// Keys returns every indexed key in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of indexed entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Close syncs and closes the backing file.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

func (c *Cache) append(rec record) error {
	if c.f == nil {
		return fmt.Errorf("cache %q is closed", c.path)
	}
	raw, err := sonic.ConfigStd.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding cache record: %w", err)
	}
	if _, err := c.f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("appending cache record: %w", err)
	}
	return nil
}
