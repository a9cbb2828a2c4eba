package classes

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"classpane/internal/document"
	"classpane/internal/eventloop"
	"classpane/internal/telemetry"
)

// ClassAttribute is the attribute the engine reads and writes.
const ClassAttribute = "class"

// DefaultWriteTimeout bounds a single attribute write.
const DefaultWriteTimeout = 10 * time.Second

// Writer is the part of document.Document the engine needs.
type Writer interface {
	AttributeReader
	SetAttribute(ctx context.Context, node document.NodeID, name, value string) error
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	// FlushDelay is the coalescing window. Zero flushes on the next loop turn.
	FlushDelay time.Duration
	// WriteTimeout bounds each attribute write. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration

	Logger  *zap.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer

	// OnWriteError is called on the loop for every write that settles with
	// an error. Writes are not retried.
	OnWriteError func(node document.NodeID, value string, err error)
}

// Engine owns the class model of every element it has seen, the pending
// write buffer and the set of elements with writes in flight.
//
// All methods must be called on the loop the engine was created with.
type Engine struct {
	doc      Writer
	loop     eventloop.Poster
	cache    *Cache
	suppress *Suppressor
	pending  *Pending
	throttle *Throttler

	writeTimeout time.Duration
	log          *zap.Logger
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
	onWriteError func(document.NodeID, string, error)

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an engine writing to doc. Continuations of writes are posted
// to loop.
func New(doc Writer, loop eventloop.Poster, opts Options) *Engine {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		doc:          doc,
		loop:         loop,
		cache:        NewCache(doc),
		suppress:     NewSuppressor(),
		pending:      NewPending(),
		throttle:     NewThrottler(loop, opts.FlushDelay),
		writeTimeout: opts.WriteTimeout,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		onWriteError: opts.OnWriteError,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ClassSet returns the model for node, building it from the attribute if
// needed.
func (e *Engine) ClassSet(node document.NodeID) ClassSet {
	return e.cache.Get(node)
}

// Toggle sets the enabled flag of name on node without writing anything.
func (e *Engine) Toggle(node document.NodeID, name string, enabled bool) {
	e.cache.Toggle(node, name, enabled)
}

// Install computes the class attribute for node from its enabled names plus
// the names in draft, buffers it and schedules a flush. draft is the text
// currently in the input box, including any autocomplete suggestion, so an
// uncommitted suggestion is previewed on the live element.
func (e *Engine) Install(node document.NodeID, draft string) {
	value := e.cache.Get(node).Active(draft)
	e.pending.Put(node, value)
	e.metrics.SetPending(e.pending.Len())
	e.throttle.Schedule(e.flush)
}

// PendingValue returns the buffered value for node, if any.
func (e *Engine) PendingValue(node document.NodeID) (string, bool) {
	return e.pending.Get(node)
}

// Suppressed reports whether node has a self-issued write in flight.
func (e *Engine) Suppressed(node document.NodeID) bool {
	return e.suppress.Suppressed(node)
}

// Settled reports whether nothing is buffered, scheduled or in flight.
func (e *Engine) Settled() bool {
	return e.pending.Len() == 0 && !e.throttle.Busy() && e.suppress.Len() == 0
}

// OnExternalMutation handles a mutation notification for node. Echoes of
// our own writes are ignored; anything else drops the node's model. It
// reports whether the model was invalidated.
func (e *Engine) OnExternalMutation(node document.NodeID) bool {
	if e.suppress.Suppressed(node) {
		e.metrics.EchoSuppressed()
		e.log.Debug("ignoring echo", zap.Int64("node", int64(node)))
		return false
	}
	e.log.Debug("dropping class model",
		zap.Int64("node", int64(node)),
		zap.Bool("cached", e.cache.Cached(node)))
	e.cache.Invalidate(node)
	e.metrics.Invalidated()
	return true
}

// Close cancels writes that are still in flight. Their completions still
// run and release suppression.
func (e *Engine) Close() {
	e.throttle.Cancel()
	e.cancel()
	e.log.Debug("engine closed",
		zap.Int("cached", e.cache.Len()),
		zap.Int("pending", e.pending.Len()))
}

// flush issues one write per buffered element. The buffer is swapped out
// before any write starts so edits arriving meanwhile form the next batch.
func (e *Engine) flush(done func()) {
	batch := e.pending.Swap()
	e.metrics.SetPending(0)
	e.metrics.Flushed()
	if len(batch) == 0 {
		done()
		return
	}

	nodes := make([]document.NodeID, 0, len(batch))
	for node := range batch {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	e.log.Debug("flushing class writes", zap.Int("count", len(nodes)))

	remaining := len(nodes)
	var errs *multierror.Error
	for _, node := range nodes {
		node, value := node, batch[node]
		e.suppress.Arm(node)
		e.metrics.WriteIssued()
		go e.write(node, value, func(err error) {
			e.suppress.Release(node)
			if err != nil {
				errs = multierror.Append(errs, err)
				e.metrics.WriteFailed()
				if e.onWriteError != nil {
					e.onWriteError(node, value, err)
				}
			}
			remaining--
			if remaining > 0 {
				return
			}
			if err := errs.ErrorOrNil(); err != nil {
				e.log.Warn("class writes failed", zap.Error(err))
			}
			done()
		})
	}
}

// write runs off the loop and posts its outcome back.
func (e *Engine) write(node document.NodeID, value string, settle func(error)) {
	ctx, cancel := context.WithTimeout(e.ctx, e.writeTimeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "document.SetAttribute", trace.WithAttributes(
		attribute.Int64("classpane.node", int64(node)),
		attribute.String("classpane.class", value),
	))
	err := e.doc.SetAttribute(ctx, node, ClassAttribute, value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	e.loop.Post(func() { settle(err) })
}
