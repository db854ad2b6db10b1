/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"chainguard.dev/tracelog/config"
	"chainguard.dev/tracelog/scope"
	"chainguard.dev/tracelog/trace"
	"chainguard.dev/tracelog/transport"
)

// fakeStore is an in-memory Store handing out sequential ids.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	creates  []*transport.CreateLogsRequest
	updates  []*transport.UpdateLogsRequest
	deletes  []*transport.DeleteLogsRequest
	getResp  *transport.GetLogsResponse
	projects []string
	contexts []string
}

func (s *fakeStore) CreateLogs(ctx context.Context, req *transport.CreateLogsRequest) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.creates = append(s.creates, req)
	return []int64{s.nextID}, nil
}

func (s *fakeStore) UpdateLogs(ctx context.Context, req *transport.UpdateLogsRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, req)
	return nil
}

func (s *fakeStore) DeleteLogs(ctx context.Context, req *transport.DeleteLogsRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, req)
	return nil
}

func (s *fakeStore) GetLogs(ctx context.Context, req *transport.GetLogsRequest) (*transport.GetLogsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getResp == nil {
		return &transport.GetLogsResponse{}, nil
	}
	return s.getResp, nil
}

func (s *fakeStore) EnsureProject(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, name)
	return nil
}

func (s *fakeStore) EnsureContext(ctx context.Context, project, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts = append(s.contexts, name)
	return nil
}

func (s *fakeStore) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creates)
}

func testConfig() config.Config {
	return config.Config{
		BaseURL:        "http://unused.invalid",
		Project:        "proj",
		Workers:        2,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestClient(t *testing.T, cfg config.Config) (*Client, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	c, err := NewClient(t.Context(), cfg, WithStore(store))
	if err != nil {
		t.Fatalf("NewClient() = %v", err)
	}
	t.Cleanup(func() {
		c.Shutdown(context.Background(), false) //nolint:errcheck
	})
	return c, store
}

func TestLogMergesAmbientState(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	ctx, err := WithEntries(ctx, scope.ModeWrite, map[string]any{"env": "prod", "region": "us"})
	if err != nil {
		t.Fatalf("WithEntries() = %v", err)
	}
	ctx, err = WithParams(ctx, scope.ModeWrite, map[string]any{"model": "gpt"})
	if err != nil {
		t.Fatalf("WithParams() = %v", err)
	}

	l, err := c.Log(ctx, map[string]any{"msg": "hi", "env": "override"})
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	id, err := l.ID(ctx)
	if err != nil {
		t.Fatalf("ID() = %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, wanted = 1", id)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.creates) != 1 {
		t.Fatalf("len(creates) = %d, wanted = 1", len(store.creates))
	}
	wantEntries := map[string]any{"env": "override", "region": "us", "msg": "hi"}
	if diff := cmp.Diff(wantEntries, store.creates[0].Entries[0]); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	wantParams := map[string]any{"model": "gpt"}
	if diff := cmp.Diff(wantParams, store.creates[0].Params[0]); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestAmbientKeysNotResentToSameLog(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	ctx, err := WithEntries(ctx, scope.ModeWrite, map[string]any{"env": "prod"})
	if err != nil {
		t.Fatalf("WithEntries() = %v", err)
	}

	l, err := c.Log(ctx, nil)
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if err := c.AddLogEntries(ctx, l, map[string]any{"extra": float64(1)}); err != nil {
		t.Fatalf("AddLogEntries() = %v", err)
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updates) != 1 {
		t.Fatalf("len(updates) = %d, wanted = 1", len(store.updates))
	}
	want := map[string]any{"extra": float64(1)}
	if diff := cmp.Diff(want, store.updates[0].Entries); diff != "" {
		t.Errorf("update entries mismatch (-want +got):\n%s", diff)
	}
}

func TestAmbientAttachesToEachNewLog(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	ctx, err := WithEntries(ctx, scope.ModeWrite, map[string]any{"env": "prod"})
	if err != nil {
		t.Fatalf("WithEntries() = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Log(ctx, nil); err != nil {
			t.Fatalf("Log() = %v", err)
		}
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for i, req := range store.creates {
		if req.Entries[0]["env"] != "prod" {
			t.Errorf("create[%d] missing ambient env: %v", i, req.Entries[0])
		}
	}
}

func TestReadModeDoesNotAttach(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	ctx, err := WithEntries(ctx, scope.ModeRead, map[string]any{"filter": "v"})
	if err != nil {
		t.Fatalf("WithEntries() = %v", err)
	}
	if _, err := c.Log(ctx, map[string]any{"msg": "hi"}); err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.creates[0].Entries[0]["filter"]; ok {
		t.Errorf("read-mode value attached to write: %v", store.creates[0].Entries[0])
	}
}

func TestScopeMismatchSurfaces(t *testing.T) {
	ctx, err := WithEntries(t.Context(), scope.ModeWrite, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("WithEntries() = %v", err)
	}
	if _, err := WithEntries(ctx, scope.ModeRead, map[string]any{"b": 2}); !errors.Is(err, scope.ErrScopeMismatch) {
		t.Errorf("nested read under write = %v, wanted = ErrScopeMismatch", err)
	}
}

func TestScopeIsolationAcrossGoroutines(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	base := t.Context()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, err := WithEntries(base, scope.ModeWrite, map[string]any{"worker": i})
			if err != nil {
				t.Errorf("WithEntries() = %v", err)
				return
			}
			if _, err := c.Log(ctx, map[string]any{"n": i}); err != nil {
				t.Errorf("Log() = %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := c.Drain(base); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.creates) != n {
		t.Fatalf("len(creates) = %d, wanted = %d", len(store.creates), n)
	}
	for _, req := range store.creates {
		entries := req.Entries[0]
		if entries["worker"] != entries["n"] {
			t.Errorf("cross-goroutine leak: %v", entries)
		}
	}
}

func TestCacheIdempotence(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDir = t.TempDir()
	c, store := newTestClient(t, cfg)
	ctx := t.Context()

	fields := map[string]any{"msg": "hello"}
	l1, err := c.Log(ctx, fields)
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if _, err := l1.ID(ctx); err != nil {
		t.Fatalf("ID() = %v", err)
	}

	// The resolved id lands in the cache asynchronously; retry until an
	// identical create is served without a new dispatch.
	deadline := time.Now().Add(5 * time.Second)
	for {
		before := store.createCount()
		l2, err := c.Log(ctx, fields)
		if err != nil {
			t.Fatalf("Log() = %v", err)
		}
		if _, err := l2.ID(ctx); err != nil {
			t.Fatalf("ID() = %v", err)
		}
		if store.createCount() == before {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("identical create was never served from cache")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetLogsJoinsVersionedParams(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	store.getResp = &transport.GetLogsResponse{
		Params: map[string]map[string]any{
			"model": {"1": "gpt", "2": "claude"},
		},
		Logs: []transport.LogRecord{
			{ID: 5, Entries: map[string]any{"msg": "a"}, Params: map[string]string{"model": "2"}},
		},
		Count: 1,
	}

	out, err := c.GetLogs(t.Context(), nil)
	if err != nil {
		t.Fatalf("GetLogs() = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(logs) = %d, wanted = 1", len(out))
	}
	got := out[0].Params()["model"]
	want := ParamVersion{Version: "2", Value: "claude"}
	if got != want {
		t.Errorf("params join = %+v, wanted = %+v", got, want)
	}
}

func TestWithExperimentAutoIncrement(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	store.getResp = &transport.GetLogsResponse{
		Params: map[string]map[string]any{
			"experiment": {"1": "exp0", "2": "exp2", "3": "baseline"},
		},
		Logs: []transport.LogRecord{
			{ID: 1, Params: map[string]string{"experiment": "1"}},
			{ID: 2, Params: map[string]string{"experiment": "2"}},
			{ID: 3, Params: map[string]string{"experiment": "3"}},
		},
	}

	ctx, err := c.WithExperiment(t.Context(), scope.ModeWrite, "")
	if err != nil {
		t.Fatalf("WithExperiment() = %v", err)
	}
	if _, err := c.Log(ctx, nil); err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	last := store.creates[len(store.creates)-1]
	if got := last.Params[0]["experiment"]; got != "exp3" {
		t.Errorf("experiment = %v, wanted = exp3", got)
	}
}

func TestCaptureUsesActiveLog(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	l, err := c.Log(ctx, nil)
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	lctx := WithLog(ctx, l)

	got, err := c.Capture(lctx, "answer", 42)
	if err != nil {
		t.Fatalf("Capture() = %v", err)
	}
	if got != l {
		t.Error("Capture() did not reuse the active log")
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updates) != 1 || store.updates[0].Entries["answer"] != 42 {
		t.Errorf("updates = %+v, wanted one with answer=42", store.updates)
	}
}

func TestCaptureWithoutActiveLogCreates(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	if _, err := c.Capture(ctx, "answer", 42); err != nil {
		t.Fatalf("Capture() = %v", err)
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.creates) != 1 || store.creates[0].Entries[0]["answer"] != 42 {
		t.Errorf("creates = %+v, wanted one with answer=42", store.creates)
	}
}

func TestMutabilityMetadata(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	_, err := c.Log(ctx, map[string]any{"score": 0.5},
		WithMutable(map[string]bool{"score": true}))
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	et, ok := store.creates[0].Entries[0]["explicit_types"].(map[string]any)
	if !ok {
		t.Fatalf("explicit_types missing: %v", store.creates[0].Entries[0])
	}
	want := map[string]any{"score": map[string]any{"mutable": true}}
	if diff := cmp.Diff(want, et); diff != "" {
		t.Errorf("explicit_types mismatch (-want +got):\n%s", diff)
	}
}

func TestScopedOverwriteFlowsToUpdates(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	ctx, err := WithEntries(ctx, scope.ModeWrite, map[string]any{"env": "prod"}, scope.WithOverwrite())
	if err != nil {
		t.Fatalf("WithEntries() = %v", err)
	}

	l, err := c.Log(ctx, map[string]any{"msg": "hi"})
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if err := c.AddLogEntries(ctx, l, map[string]any{"msg": "bye"}); err != nil {
		t.Fatalf("AddLogEntries() = %v", err)
	}
	if err := c.Drain(ctx); err != nil {
		t.Fatalf("Drain() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.updates) != 1 {
		t.Fatalf("len(updates) = %d, wanted = 1", len(store.updates))
	}
	if !store.updates[0].Overwrite {
		t.Error("update overwrite = false, wanted = true")
	}
}

func TestScopedOverwriteInReadModeFails(t *testing.T) {
	_, err := WithEntries(t.Context(), scope.ModeRead, map[string]any{"env": "prod"}, scope.WithOverwrite())
	if !errors.Is(err, scope.ErrScopeMismatch) {
		t.Errorf("WithEntries(read, overwrite) = %v, wanted ErrScopeMismatch", err)
	}
}

func TestDeleteEntriesAndDelete(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	l, err := c.Log(ctx, map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if err := l.DeleteEntries(ctx, "a"); err != nil {
		t.Fatalf("DeleteEntries() = %v", err)
	}
	if _, ok := l.Entries()["a"]; ok {
		t.Error("deleted field still present locally")
	}
	if err := l.Delete(ctx); err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.deletes) != 2 {
		t.Fatalf("len(deletes) = %d, wanted = 2", len(store.deletes))
	}
	if f := store.deletes[0].IDsAndFields[0].Field; f == nil || *f != "a" {
		t.Errorf("field delete = %v, wanted = a", f)
	}
	if f := store.deletes[1].IDsAndFields[0].Field; f != nil {
		t.Errorf("record delete field = %v, wanted = nil", *f)
	}
}

func TestDownloadRefreshes(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	l, err := c.Log(ctx, map[string]any{"msg": "stale"})
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	id, err := l.ID(ctx)
	if err != nil {
		t.Fatalf("ID() = %v", err)
	}

	store.mu.Lock()
	store.getResp = &transport.GetLogsResponse{
		Params: map[string]map[string]any{"model": {"1": "gpt"}},
		Logs: []transport.LogRecord{{
			ID:      id,
			Entries: map[string]any{"msg": "fresh"},
			Params:  map[string]string{"model": "1"},
		}},
	}
	store.mu.Unlock()

	if err := l.Download(ctx); err != nil {
		t.Fatalf("Download() = %v", err)
	}
	if l.Entries()["msg"] != "fresh" {
		t.Errorf("msg = %v, wanted = fresh", l.Entries()["msg"])
	}
	if got := l.Params()["model"]; got != (ParamVersion{Version: "1", Value: "gpt"}) {
		t.Errorf("model = %+v", got)
	}
}

func TestTracedCallFlushesTrace(t *testing.T) {
	c, store := newTestClient(t, testConfig())
	ctx := t.Context()

	f := trace.Traced(c.Tracer(), func(ctx context.Context, n int) (int, error) {
		return n * 2, nil
	}, trace.WithName("double"))
	if _, err := f(ctx, 21); err != nil {
		t.Fatalf("f() = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if tr, ok := finalTrace(store); ok {
			if tr["span_name"] != "double" {
				t.Errorf("span_name = %v, wanted = double", tr["span_name"])
			}
			if tr["completed"] != true {
				t.Errorf("completed = %v, wanted = true", tr["completed"])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("completed trace never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func finalTrace(s *fakeStore) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.updates) - 1; i >= 0; i-- {
		tr, ok := s.updates[i].Entries["trace"].(map[string]any)
		if ok && tr["completed"] == true {
			return tr, true
		}
	}
	return nil, false
}

func TestCachedWrapper(t *testing.T) {
	cfg := testConfig()
	cfg.CacheDir = t.TempDir()
	c, _ := newTestClient(t, cfg)
	ctx := t.Context()

	var calls int
	var mu sync.Mutex
	fn := Cached(c, "complete", func(ctx context.Context, prompt string) (map[string]any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return map[string]any{"text": "answer to " + prompt}, nil
	})

	first, err := fn(ctx, "q")
	if err != nil {
		t.Fatalf("fn() = %v", err)
	}
	second, err := fn(ctx, "q")
	if err != nil {
		t.Fatalf("fn() = %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached result mismatch (-first +second):\n%s", diff)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, wanted = 1", calls)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	c, _ := newTestClient(t, testConfig())
	ctx := t.Context()
	for i := 0; i < 3; i++ {
		if err := c.Shutdown(ctx, false); err != nil {
			t.Fatalf("Shutdown #%d = %v", i+1, err)
		}
	}
}

func TestWithContextEnsuresRemote(t *testing.T) {
	c, store := newTestClient(t, testConfig())

	ctx, err := c.WithContext(t.Context(), scope.ModeWrite, "evals/run1")
	if err != nil {
		t.Fatalf("WithContext() = %v", err)
	}
	if got := scope.WritePath(ctx); got != "evals/run1" {
		t.Errorf("WritePath = %q, wanted = evals/run1", got)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.contexts) != 1 || store.contexts[0] != "evals/run1" {
		t.Errorf("contexts = %v, wanted = [evals/run1]", store.contexts)
	}
}

func TestLogAfterShutdownRejectsID(t *testing.T) {
	// A rejected create surfaces through ID, not through Log itself.
	c, _ := newTestClient(t, testConfig())
	ctx := t.Context()

	if err := c.Shutdown(ctx, false); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	l, err := c.Log(ctx, map[string]any{"late": true})
	if err != nil {
		t.Fatalf("Log() = %v", err)
	}
	if _, err := l.ID(ctx); err == nil {
		t.Error("ID() = nil, wanted an error after shutdown")
	}
}
