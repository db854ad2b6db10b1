/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package trace

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"chainguard.dev/tracelog/genai"
	"chainguard.dev/tracelog/scope"
)

// Flusher receives span tree snapshots. Intermediate snapshots arrive
// with completed false while the root call is still running; the final
// snapshot arrives with completed true.
type Flusher interface {
	FlushTrace(ctx context.Context, root *Span, completed bool)
}

// Option configures one traced call or wrapper.
type Option func(*settings)

type settings struct {
	name       string
	spanType   SpanType
	pruneEmpty bool
}

// WithName overrides the span name derived from the function.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithType sets the span type. The default is function.
func WithType(t SpanType) Option {
	return func(s *settings) { s.spanType = t }
}

// WithPruneEmpty drops, at flush time, any subtree whose spans carry no
// inputs or outputs.
func WithPruneEmpty() Option {
	return func(s *settings) { s.pruneEmpty = true }
}

// Tracer builds span trees and flushes them through a Flusher.
type Tracer struct {
	flusher Flusher
	metrics *genai.Metrics
}

// New returns a Tracer flushing through f. A nil metrics disables token
// usage metrics but not usage capture on spans.
func New(f Flusher, metrics *genai.Metrics) *Tracer {
	return &Tracer{flusher: f, metrics: metrics}
}

// tree is state shared by every span of one capture.
type tree struct {
	mu         sync.Mutex
	tracer     *Tracer
	root       *node
	started    time.Time
	pruneEmpty bool
}

// node pairs a span with its position in the tree and its mirror OTel
// span.
type node struct {
	span   *Span
	parent *node
	tree   *tree
	otel   oteltrace.Span
}

// Span opens a span manually. The returned context carries the span as
// the active parent for nested traced calls; finish must be called
// exactly once with the block's outputs and error.
func (t *Tracer) Span(ctx context.Context, name string, opts ...Option) (context.Context, func(outputs any, err error)) {
	set := &settings{spanType: TypeFunction, name: name}
	for _, opt := range opts {
		opt(set)
	}
	ctx, n := t.open(ctx, set, nil)
	return ctx, func(outputs any, err error) {
		t.close(ctx, n, outputs, err)
	}
}

// Traced wraps fn so every invocation is captured as a span. The
// wrapper has the same signature and re-returns fn's error unchanged.
func Traced[I, O any](t *Tracer, fn func(context.Context, I) (O, error), opts ...Option) func(context.Context, I) (O, error) {
	set := &settings{spanType: TypeFunction, name: funcName(fn)}
	for _, opt := range opts {
		opt(set)
	}
	return func(ctx context.Context, in I) (O, error) {
		ctx, n := t.open(ctx, set, serializeInputs(in))
		out, err := fn(ctx, in)
		t.close(ctx, n, out, err)
		return out, err
	}
}

func (t *Tracer) open(ctx context.Context, set *settings, inputs map[string]any) (context.Context, *node) {
	now := time.Now()
	parent, _ := scope.Active[*node](ctx)

	sp := &Span{
		ID:        uuid.NewString(),
		Type:      set.spanType,
		SpanName:  set.name,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Inputs:    inputs,
	}
	if inputs == nil {
		sp.Inputs = map[string]any{}
	}

	n := &node{span: sp}
	if parent == nil {
		n.tree = &tree{tracer: t, started: now, pruneEmpty: set.pruneEmpty}
		n.tree.root = n
	} else {
		n.tree = parent.tree
		n.parent = parent
		sp.ParentSpanID = parent.span.ID
		sp.Offset = now.Sub(n.tree.started).Seconds()
	}

	tr := otel.Tracer("chainguard.ai.tracelog",
		oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, n.otel = tr.Start(ctx, set.name, oteltrace.WithAttributes(
		attribute.String("span.type", string(set.spanType)),
	))

	// Attach at open so live snapshots show in-progress children.
	if parent != nil {
		n.tree.mu.Lock()
		parent.span.ChildSpans = append(parent.span.ChildSpans, sp)
		n.tree.mu.Unlock()
	}

	// A cached llm span may turn out to be a phantom; hold its first
	// snapshot until close decides.
	if set.spanType != TypeLLMCached {
		t.flush(ctx, n.tree, false)
	}
	return scope.WithActive(ctx, n), n
}

func (t *Tracer) close(ctx context.Context, n *node, outputs any, err error) {
	elapsed := time.Since(n.tree.started)

	if n.otel != nil {
		if err != nil {
			n.otel.RecordError(err)
			n.otel.SetStatus(codes.Error, err.Error())
		} else {
			n.otel.SetStatus(codes.Ok, "")
		}
		n.otel.End()
	}

	out := serialize(outputs)

	var usage genai.Usage
	var hasUsage bool
	if n.span.Type == TypeLLM || n.span.Type == TypeLLMCached {
		usage, hasUsage = genai.Extract(outputs)
	}

	n.tree.mu.Lock()
	sp := n.span
	sp.Outputs = out
	sp.Completed = true
	if n.parent == nil {
		sp.ExecTime = elapsed.Seconds()
	} else {
		sp.ExecTime = elapsed.Seconds() - sp.Offset
	}
	if err != nil {
		msg := err.Error()
		sp.Errors = &msg
	}
	if hasUsage {
		// Usage counts bottom-up: this span and every ancestor.
		for anc := n; anc != nil; anc = anc.parent {
			anc.span.Usage = nestedAdd(anc.span.Usage, usage.Map())
			anc.span.UsageIncCache = nestedAdd(anc.span.UsageIncCache, usage.MapIncCache())
		}
	}

	discard := sp.Type == TypeLLMCached && emptyOutput(sp.Outputs)
	if discard && n.parent != nil {
		children := n.parent.span.ChildSpans
		for i, c := range children {
			if c == sp {
				n.parent.span.ChildSpans = append(children[:i], children[i+1:]...)
				break
			}
		}
	}
	n.tree.mu.Unlock()

	if hasUsage {
		t.metrics.RecordUsage(ctx, sp.SpanName, usage)
	}

	if discard && n.parent == nil {
		// A phantom root was never flushed; nothing to finalize.
		return
	}
	t.flush(ctx, n.tree, n.parent == nil)
}

// flush snapshots the tree and hands it to the Flusher.
func (t *Tracer) flush(ctx context.Context, tr *tree, completed bool) {
	if t.flusher == nil {
		return
	}
	tr.mu.Lock()
	snap := tr.root.span.clone()
	prune := tr.pruneEmpty
	tr.mu.Unlock()

	if completed && prune {
		// Pruning trims empty subtrees but the completed snapshot is
		// always delivered, even when nothing survives, so downstream
		// state keyed on this trace gets retired.
		pruneEmpty(snap)
	}
	t.flusher.FlushTrace(ctx, snap, completed)
}

func funcName(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "anonymous"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
