// Package orchestrator owns the adapter pool and its lifecycle, and exposes
// targeted routing and consensus over it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/mirrornode/pkg/adapters"
	"github.com/Mindburn-Labs/mirrornode/pkg/aggregate"
	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
	"github.com/Mindburn-Labs/mirrornode/pkg/events"
	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
)

var (
	ErrNotInitialized     = errors.New("orchestrator not initialized")
	ErrAlreadyInitialized = errors.New("orchestrator already initialized")
	ErrUnknownAdapter     = errors.New("unknown adapter")
)

// DefaultTimeout bounds one route or consensus call.
const DefaultTimeout = 30 * time.Second

// State is the lifecycle position. SHUT_DOWN is terminal.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateInitialized:
		return "INITIALIZED"
	case StateShutDown:
		return "SHUT_DOWN"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RouteResult is the outcome of RouteEvent. Decision is set for broadcasts only.
type RouteResult struct {
	TraceID   string                                `json:"trace_id"`
	Target    string                                `json:"target,omitempty"`
	Responses map[string]*contracts.AdapterResponse `json:"responses"`
	Decision  *aggregate.Decision                   `json:"decision,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSpecs sets the adapter specs built on Initialize.
func WithSpecs(specs []adapters.Spec) Option {
	return func(o *Orchestrator) { o.specs = specs }
}

func WithRegistry(r *adapters.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithAdapters adds prebuilt adapters to the pool alongside the specs.
func WithAdapters(as ...adapters.Adapter) Option {
	return func(o *Orchestrator) { o.extra = append(o.extra, as...) }
}

// WithTimeout sets the per-call timeout. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithStrategy(s aggregate.Strategy) Option {
	return func(o *Orchestrator) { o.strategy = s }
}

// WithGate replaces the default in-memory audit ledger.
func WithGate(g *audit.Gate) Option {
	return func(o *Orchestrator) { o.gate = g }
}

func WithObservability(p *observability.Provider) Option {
	return func(o *Orchestrator) { o.obs = p }
}

// WithAvailability shares a tracker, e.g. with the router serving the same pool.
func WithAvailability(t *observability.AvailabilityTracker) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.availability = t
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	mu    sync.RWMutex
	state State
	pool  map[string]adapters.Adapter

	// inflight counts route and consensus calls holding the pool. Shutdown
	// waits for it before closing adapters.
	inflight   sync.WaitGroup
	shutdownMu sync.Mutex

	specs        []adapters.Spec
	extra        []adapters.Adapter
	registry     *adapters.Registry
	timeout      time.Duration
	strategy     aggregate.Strategy
	gate         *audit.Gate
	obs          *observability.Provider
	availability *observability.AvailabilityTracker
	logger       *slog.Logger
}

// New returns an uninitialized orchestrator. Without options it builds the
// default adapter set, decides by majority and audits into an in-memory ledger.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		specs:        adapters.DefaultSpecs(),
		registry:     adapters.DefaultRegistry(),
		timeout:      DefaultTimeout,
		strategy:     aggregate.Majority{},
		availability: observability.NewAvailabilityTracker(),
		logger:       slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.gate == nil {
		o.gate = audit.NewGate(audit.NewLedger(), "mirrornode")
	}
	if o.obs == nil {
		o.obs, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Adapters returns pool names, sorted. Empty unless initialized.
func (o *Orchestrator) Adapters() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.pool))
	for name := range o.pool {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Availability reports per-adapter objective status from observed responses.
func (o *Orchestrator) Availability() map[string]*observability.SLOStatus {
	return o.availability.Snapshot()
}

// Initialize builds the adapter pool. It may succeed once; later calls return
// ErrAlreadyInitialized, including after Shutdown.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateUninitialized {
		return fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, o.state)
	}

	var pool map[string]adapters.Adapter
	ctx, finish := o.obs.TrackOperation(ctx, "orchestrator.initialize")
	_, err := audit.Run(ctx, o.gate, audit.Operation{
		Name:     "initialize",
		Evidence: map[string]any{"adapters": len(o.specs) + len(o.extra)},
	}, func(context.Context) (int, error) {
		var err error
		pool, err = o.buildPool()
		return len(pool), err
	})
	finish(err)
	if err != nil {
		// the pool may exist when only the audit emission failed
		_ = closeAll(ctx, pool)
		return err
	}

	o.pool = pool
	o.state = StateInitialized
	o.logger.InfoContext(ctx, "lattice deployed", "adapters", len(pool))
	return nil
}

func (o *Orchestrator) buildPool() (map[string]adapters.Adapter, error) {
	specs := make([]adapters.Spec, len(o.specs))
	copy(specs, o.specs)
	for i := range specs {
		if specs[i].Timeout <= 0 {
			specs[i].Timeout = o.timeout
		}
	}
	pool, err := o.registry.BuildAll(specs)
	if err != nil {
		return nil, err
	}
	for _, a := range o.extra {
		if _, exists := pool[a.Name()]; exists {
			_ = closeAll(context.Background(), pool)
			return nil, fmt.Errorf("%w: %s", adapters.ErrDuplicateTag, a.Name())
		}
		pool[a.Name()] = a
	}
	return pool, nil
}

func (o *Orchestrator) snapshot() (map[string]adapters.Adapter, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state != StateInitialized {
		return nil, fmt.Errorf("%w (state %s)", ErrNotInitialized, o.state)
	}
	return o.pool, nil
}

// acquire pins the pool for one call. release must be called once the call
// no longer touches the adapters.
func (o *Orchestrator) acquire() (pool map[string]adapters.Adapter, release func(), err error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state != StateInitialized {
		return nil, nil, fmt.Errorf("%w (state %s)", ErrNotInitialized, o.state)
	}
	o.inflight.Add(1)
	return o.pool, o.inflight.Done, nil
}

// Pool returns the live adapters sorted by name so other dispatchers can
// share them.
func (o *Orchestrator) Pool() ([]adapters.Adapter, error) {
	pool, err := o.snapshot()
	if err != nil {
		return nil, err
	}
	return poolSlice(pool), nil
}

// RouteEvent sends e to target, or to every adapter when target is empty.
func (o *Orchestrator) RouteEvent(ctx context.Context, e *events.Event, target string) (*RouteResult, error) {
	pool, release, err := o.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := events.Validate(e); err != nil {
		return nil, err
	}
	e.EnsureMetadata()

	attrs := observability.EventOperation(e.TraceID, string(e.EventType), e.Node)
	attrs = append(attrs, observability.AttrTarget.String(target))
	ctx, finish := o.obs.TrackOperation(ctx, "orchestrator.route_event", attrs...)

	result, err := audit.Run(ctx, o.gate, audit.Operation{
		Name:     "route_event",
		Evidence: map[string]any{"trace_id": e.TraceID, "target": target},
	}, func(ctx context.Context) (*RouteResult, error) {
		return o.route(ctx, pool, e, target)
	})
	finish(err)
	return result, err
}

func (o *Orchestrator) route(ctx context.Context, pool map[string]adapters.Adapter, e *events.Event, target string) (*RouteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if target != "" {
		a, ok := pool[target]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, target)
		}
		o.logger.InfoContext(ctx, "routing event", "trace_id", e.TraceID, "target", target)
		responses := adapters.Broadcast(ctx, []adapters.Adapter{a}, e.Prompt())
		o.observe(ctx, responses)
		return &RouteResult{TraceID: e.TraceID, Target: target, Responses: responses}, nil
	}

	o.logger.InfoContext(ctx, "broadcasting event", "trace_id", e.TraceID, "adapters", len(pool))
	responses := adapters.Broadcast(ctx, poolSlice(pool), e.Prompt())
	o.observe(ctx, responses)
	decision := o.strategy.Aggregate(aggregate.Values(responses))
	return &RouteResult{TraceID: e.TraceID, Responses: responses, Decision: &decision}, nil
}

// RequestConsensus marks e as a consensus request, broadcasts it and folds the
// votes with the configured strategy.
func (o *Orchestrator) RequestConsensus(ctx context.Context, e *events.Event) (*contracts.ConsensusResult, error) {
	pool, release, err := o.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := events.Validate(e); err != nil {
		return nil, err
	}
	e.RequestConsensus = true
	e.EnsureMetadata()

	ctx, finish := o.obs.TrackOperation(ctx, "orchestrator.request_consensus",
		observability.EventOperation(e.TraceID, string(e.EventType), e.Node)...)

	result, err := audit.Run(ctx, o.gate, audit.Operation{
		Name:     "request_consensus",
		Evidence: map[string]any{"trace_id": e.TraceID},
	}, func(ctx context.Context) (*contracts.ConsensusResult, error) {
		ctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		o.logger.InfoContext(ctx, "requesting consensus", "trace_id", e.TraceID)
		votes := adapters.Broadcast(ctx, poolSlice(pool), e.Prompt())
		o.observe(ctx, votes)
		decision := o.strategy.Aggregate(aggregate.Values(votes))
		observability.SetSpanAttributes(ctx, observability.AttrConsensus.Bool(decision.Success))

		return &contracts.ConsensusResult{
			ConsensusReached: decision.Success,
			Votes:            votes,
			AgreedPayload:    decision.AgreedPayload,
			TraceID:          e.TraceID,
			Timestamp:        time.Now().UTC(),
		}, nil
	})
	finish(err)
	return result, err
}

// Shutdown stops admitting calls, waits for in-flight ones, records the
// shutdown and only then closes the adapters. If the record cannot be written
// the previous state is restored and the pool stays open. Once it has
// succeeded further calls are no-ops.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdownMu.Lock()
	defer o.shutdownMu.Unlock()

	o.mu.Lock()
	if o.state == StateShutDown {
		o.mu.Unlock()
		return nil
	}
	prev := o.state
	pool := o.pool
	o.state = StateShutDown
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "shutting down lattice", "adapters", len(pool))
	ctx, finish := o.obs.TrackOperation(ctx, "orchestrator.shutdown")
	_, err := audit.Run(ctx, o.gate, audit.Operation{
		Name:     "shutdown",
		Evidence: map[string]any{"adapters": len(pool), "from_state": prev.String()},
	}, func(context.Context) (int, error) {
		o.inflight.Wait()
		return len(pool), nil
	})
	finish(err)
	if err != nil {
		o.mu.Lock()
		o.state = prev
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	o.pool = nil
	o.mu.Unlock()
	return closeAll(ctx, pool)
}

func (o *Orchestrator) observe(ctx context.Context, responses map[string]*contracts.AdapterResponse) {
	o.availability.RecordResponses(responses)
	o.obs.RecordResponses(ctx, responses)
}

func poolSlice(pool map[string]adapters.Adapter) []adapters.Adapter {
	names := make([]string, 0, len(pool))
	for name := range pool {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]adapters.Adapter, len(names))
	for i, name := range names {
		out[i] = pool[name]
	}
	return out
}

// closeAll closes every adapter implementing io.Closer and returns the first error.
func closeAll(ctx context.Context, pool map[string]adapters.Adapter) error {
	var g errgroup.Group
	for name, a := range pool {
		c, ok := a.(io.Closer)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := c.Close(); err != nil {
				return fmt.Errorf("close %s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		slog.Default().WarnContext(ctx, "adapter close failed", "component", "orchestrator", "error", err)
	}
	return err
}
