// Package router dispatches events to passive subscribers, live feeds and the
// registered adapters, keeping a bounded history of what it routed.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/mirrornode/pkg/adapters"
	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
	"github.com/Mindburn-Labs/mirrornode/pkg/events"
	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
)

var (
	ErrDuplicateAdapter = errors.New("router: adapter already registered")
	ErrSubscriberFailed = errors.New("router: subscriber failed")
)

// Subscriber observes every dispatched event before the adapters are called.
// A returned error aborts the dispatch; history and feeds are left untouched.
type Subscriber func(ctx context.Context, e *events.Event) error

type namedSubscriber struct {
	name string
	fn   Subscriber
}

// Option configures a Router.
type Option func(*Router)

func WithHistorySize(n int) Option {
	return func(r *Router) { r.history = NewHistory(n) }
}

func WithFeedBuffer(n int) Option {
	return func(r *Router) { r.feedBuffer = n }
}

// WithGate emits one audit record per dispatch. History and feeds only see an
// event once its record is persisted; emission failure fails the dispatch.
func WithGate(g *audit.Gate) Option {
	return func(r *Router) { r.gate = g }
}

func WithObservability(p *observability.Provider) Option {
	return func(r *Router) { r.obs = p }
}

// WithAvailability records every adapter envelope the router collects.
func WithAvailability(t *observability.AvailabilityTracker) Option {
	return func(r *Router) { r.availability = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// Router is safe for concurrent use.
type Router struct {
	mu          sync.RWMutex
	history     *History
	subscribers []namedSubscriber
	adapters    map[string]adapters.Adapter
	feeds       map[string]*Feed
	feedBuffer  int
	gate        *audit.Gate
	logger      *slog.Logger

	obs          *observability.Provider
	availability *observability.AvailabilityTracker
}

func New(opts ...Option) *Router {
	r := &Router{
		history:    NewHistory(DefaultHistorySize),
		adapters:   make(map[string]adapters.Adapter),
		feeds:      make(map[string]*Feed),
		feedBuffer: DefaultFeedBuffer,
		logger:     slog.Default().With("component", "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.obs == nil {
		r.obs, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	return r
}

// RegisterSubscriber adds a passive observer.
func (r *Router) RegisterSubscriber(name string, fn Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, namedSubscriber{name: name, fn: fn})
}

// RegisterAdapter adds an adapter under its Name.
func (r *Router) RegisterAdapter(a adapters.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAdapter, a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Adapters returns registered adapter names, sorted.
func (r *Router) Adapters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch validates e, fills its metadata and routes it. The returned map
// holds one envelope per registered adapter. The event reaches history and
// live feeds only after the dispatch has been audited.
func (r *Router) Dispatch(ctx context.Context, e *events.Event) (map[string]*contracts.AdapterResponse, error) {
	if err := events.Validate(e); err != nil {
		return nil, err
	}
	e.EnsureMetadata()

	ctx, finish := r.obs.TrackOperation(ctx, "router.dispatch",
		observability.EventOperation(e.TraceID, string(e.EventType), e.Node)...)
	responses, err := r.audited(ctx, e)
	finish(err)
	if err != nil {
		return nil, err
	}

	r.history.Append(e.Clone())
	r.publish(ctx, e)
	return responses, nil
}

func (r *Router) audited(ctx context.Context, e *events.Event) (map[string]*contracts.AdapterResponse, error) {
	if r.gate == nil {
		return r.dispatch(ctx, e)
	}
	return audit.Run(ctx, r.gate, audit.Operation{
		Name:      "route_event",
		EventType: "execution",
		Actor:     "system",
		Evidence: map[string]any{
			"trace_id":   e.TraceID,
			"event_type": string(e.EventType),
			"node":       e.Node,
		},
	}, func(ctx context.Context) (map[string]*contracts.AdapterResponse, error) {
		return r.dispatch(ctx, e)
	})
}

// dispatch notifies subscribers and collects adapter envelopes. It leaves
// history and feeds to the caller.
func (r *Router) dispatch(ctx context.Context, e *events.Event) (map[string]*contracts.AdapterResponse, error) {
	r.mu.RLock()
	subs := append([]namedSubscriber(nil), r.subscribers...)
	pool := make([]adapters.Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		pool = append(pool, a)
	}
	r.mu.RUnlock()

	if err := r.notify(ctx, subs, e); err != nil {
		return nil, err
	}

	responses := adapters.Broadcast(ctx, pool, e.Prompt())
	if r.availability != nil {
		r.availability.RecordResponses(responses)
	}
	r.obs.RecordResponses(ctx, responses)
	r.logger.DebugContext(ctx, "event routed",
		"trace_id", e.TraceID,
		"event_type", e.EventType,
		"adapters", len(responses),
	)
	return responses, nil
}

func (r *Router) notify(ctx context.Context, subs []namedSubscriber, e *events.Event) error {
	if len(subs) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range subs {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("%w: %s panicked: %v", ErrSubscriberFailed, s.name, rec)
				}
			}()
			if err := s.fn(gctx, e); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrSubscriberFailed, s.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.WarnContext(ctx, "dispatch aborted by subscriber", "trace_id", e.TraceID, "error", err)
		return err
	}
	return nil
}

// Recent returns up to limit past events, oldest first.
func (r *Router) Recent(limit int) []*events.Event {
	recent := r.history.Recent(limit)
	out := make([]*events.Event, len(recent))
	for i, e := range recent {
		out[i] = e.Clone()
	}
	return out
}

// HistorySize reports how many events are retained.
func (r *Router) HistorySize() int { return r.history.Len() }

// HistoryCapacity reports the history bound.
func (r *Router) HistoryCapacity() int { return r.history.Cap() }

// Subscribe opens a live feed. It is closed when ctx ends or Close is called.
func (r *Router) Subscribe(ctx context.Context) *Feed {
	f := newFeed(r.feedBuffer, r.detach)

	r.mu.Lock()
	r.feeds[f.id] = f
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-f.done:
		}
	}()
	return f
}

// FeedCount reports the number of open feeds.
func (r *Router) FeedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.feeds)
}

func (r *Router) detach(f *Feed) {
	r.mu.Lock()
	delete(r.feeds, f.id)
	r.mu.Unlock()
}

func (r *Router) publish(ctx context.Context, e *events.Event) {
	r.mu.RLock()
	feeds := make([]*Feed, 0, len(r.feeds))
	for _, f := range r.feeds {
		feeds = append(feeds, f)
	}
	r.mu.RUnlock()

	for _, f := range feeds {
		if f.publish(e.Clone()) {
			r.logger.WarnContext(ctx, "feed consumer behind, dropped oldest event",
				"feed", f.id,
				"dropped", f.Dropped(),
			)
		}
	}
}
