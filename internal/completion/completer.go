// Package completion suggests class names for the text input.
//
// Names come from every stylesheet scoped to the selected element's frame
// plus the classes already used in the element's owner document. The union
// is fetched once per frame and reused until the frame changes, the prefix
// is cleared or a refresh is forced.
package completion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"classpane/internal/document"
	"classpane/internal/telemetry"
)

// DefaultFetchTimeout bounds one fetch of the class-name union.
const DefaultFetchTimeout = 5 * time.Second

// maxConcurrentSources limits how many stylesheets are queried at once.
const maxConcurrentSources = 8

// Source is what the completer needs from a backend.
type Source interface {
	document.StyleSheets
	document.ClassIndex
	FrameScope(node document.NodeID) document.FrameID
	OwnerDocument(node document.NodeID) document.NodeID
}

// Suggestion is one completion entry.
type Suggestion struct {
	Text string
}

// Options configures a Completer. The zero value is usable.
type Options struct {
	FetchTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *telemetry.Metrics
}

// Completer caches the class-name union for one frame at a time. It is
// safe for concurrent use; requests for the same frame share one fetch.
type Completer struct {
	src     Source
	timeout time.Duration
	log     *zap.Logger
	metrics *telemetry.Metrics

	group singleflight.Group

	mu    sync.Mutex
	frame document.FrameID
	names []string
	valid bool
	gen   uint64
}

// New creates a completer reading from src.
func New(src Source, opts Options) *Completer {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Completer{
		src:     src,
		timeout: opts.FetchTimeout,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Complete returns the known class names starting with prefix for the
// element node. expression is the whole input text.
//
// An empty prefix or force drops the cached union. Nothing is returned
// without a node, or when there is no prefix, no force and the expression
// is blank. A prefix starting with "." yields suggestions that keep it.
func (c *Completer) Complete(ctx context.Context, node document.NodeID, expression, prefix string, force bool) []Suggestion {
	if prefix == "" || force {
		c.Invalidate()
	}
	if node == document.NoNode {
		return nil
	}
	if prefix == "" && !force && strings.TrimSpace(expression) == "" {
		return nil
	}

	names := c.classNames(ctx, node)

	dotted := strings.HasPrefix(prefix, ".")
	var out []Suggestion
	for _, name := range names {
		if dotted {
			name = "." + name
		}
		if strings.HasPrefix(name, prefix) {
			out = append(out, Suggestion{Text: name})
		}
	}
	return out
}

// Invalidate drops the cached union so the next query refetches.
func (c *Completer) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.names = nil
	c.gen++
	c.mu.Unlock()
}

// Cached reports the frame whose names are cached, if any.
func (c *Completer) Cached() (document.FrameID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame, c.valid
}

func (c *Completer) classNames(ctx context.Context, node document.NodeID) []string {
	frame := c.src.FrameScope(node)

	c.mu.Lock()
	if c.valid && c.frame == frame {
		names := c.names
		c.mu.Unlock()
		return names
	}
	gen := c.gen
	c.mu.Unlock()

	// The generation is part of the key so a forced refresh never joins a
	// fetch that started before it.
	key := fmt.Sprintf("%s#%d", frame, gen)
	doc := c.src.OwnerDocument(node)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fetch(context.WithoutCancel(ctx), frame, doc), nil
	})

	select {
	case res := <-ch:
		names := res.Val.([]string)
		c.mu.Lock()
		if c.gen == gen {
			c.frame = frame
			c.names = names
			c.valid = true
		}
		c.mu.Unlock()
		return names
	case <-ctx.Done():
		return nil
	}
}

// fetch queries every stylesheet of frame and the class index of doc
// concurrently. A failing source contributes no names.
func (c *Completer) fetch(ctx context.Context, frame document.FrameID, doc document.NodeID) []string {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		union = make(map[string]struct{})
		errs  *multierror.Error
	)
	collect := func(names []string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = multierror.Append(errs, err)
			return
		}
		for _, name := range names {
			if name != "" {
				union[name] = struct{}{}
			}
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentSources)
	for _, id := range c.src.StyleSheetsInFrame(frame) {
		id := id
		g.Go(func() error {
			names, err := c.src.StyleSheetClassNames(ctx, id)
			if err != nil {
				err = fmt.Errorf("stylesheet %s: %w", id, err)
			}
			collect(names, err)
			return nil
		})
	}
	if doc != document.NoNode {
		g.Go(func() error {
			names, err := c.src.DocumentClassNames(ctx, doc)
			if err != nil {
				err = fmt.Errorf("document %d: %w", doc, err)
			}
			collect(names, err)
			return nil
		})
	}
	_ = g.Wait()

	status := "ok"
	if err := errs.ErrorOrNil(); err != nil {
		status = "partial"
		if len(union) == 0 {
			status = "error"
		}
		c.log.Warn("class name sources failed",
			zap.String("frame", string(frame)),
			zap.Error(err))
	}
	c.metrics.FetchDone(status, time.Since(start).Seconds())

	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)
	c.log.Debug("fetched class names",
		zap.String("frame", string(frame)),
		zap.Int("count", len(names)))
	return names
}
