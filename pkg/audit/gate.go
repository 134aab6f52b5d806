package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Gate stamps and persists audit records. Emission failure is fatal to the
// enclosing operation.
type Gate struct {
	sink        Sink
	repo        string
	canonRoot   string
	charterHash string
	repoHash    func() string
	clock       func() time.Time
	logger      *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithCanonRoot sets the directory holding charters/.
func WithCanonRoot(dir string) GateOption {
	return func(g *Gate) { g.canonRoot = dir }
}

// WithCharterOverride pins the charter hash. Intended for tests.
func WithCharterOverride(hash string) GateOption {
	return func(g *Gate) { g.charterHash = hash }
}

// WithRepoHash overrides how the repository revision is resolved.
func WithRepoHash(fn func() string) GateOption {
	return func(g *Gate) { g.repoHash = fn }
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) GateOption {
	return func(g *Gate) { g.clock = clock }
}

// NewGate creates a gate emitting records for repo into sink.
func NewGate(sink Sink, repo string, opts ...GateOption) *Gate {
	g := &Gate{
		sink:     sink,
		repo:     repo,
		repoHash: RepoHash,
		clock:    time.Now,
		logger:   slog.Default().With("component", "audit"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Emit persists one record and returns its audit id.
func (g *Gate) Emit(ctx context.Context, e Entry) (string, error) {
	auditID := uuid.New().String()
	if g == nil || g.sink == nil {
		return "", fmt.Errorf("%w: %w (audit id %s)", ErrEmissionFailed, ErrSinkNotConfigured, auditID)
	}
	if !e.Verdict.Valid() {
		return "", fmt.Errorf("%w: invalid verdict %q (audit id %s)", ErrEmissionFailed, e.Verdict, auditID)
	}

	repo := e.Repo
	if repo == "" {
		repo = g.repo
	}
	charter := g.charterHash
	if charter == "" {
		charter = CharterHash(g.canonRoot, repo)
	}
	evidence := e.Evidence
	if evidence == nil {
		evidence = map[string]any{}
	}

	rec := Record{
		Timestamp:   g.clock().UTC(),
		Repo:        repo,
		RepoHash:    g.repoHash(),
		CharterHash: charter,
		EventType:   e.EventType,
		Actor:       e.Actor,
		Verdict:     e.Verdict,
		Evidence:    evidence,
		AuditID:     auditID,
	}

	if err := g.sink.Append(ctx, rec); err != nil {
		g.logger.ErrorContext(ctx, "AUDIT EMISSION FAILED - EXECUTION HALTED",
			"audit_id", auditID,
			"repo", repo,
			"error", err,
		)
		return "", fmt.Errorf("%w: audit id %s, repo %s: %w", ErrEmissionFailed, auditID, repo, err)
	}

	g.logger.InfoContext(ctx, fmt.Sprintf("[AUDIT] %s | %s | %s", auditID, repo, e.Verdict))
	return auditID, nil
}

// Operation names an audited unit of work.
type Operation struct {
	Name      string
	EventType string
	Actor     string
	Evidence  map[string]any
}

// Run executes fn and emits SUCCESS or FAILURE. When emission fails the
// result of fn is discarded and the emission error is returned instead.
// Callers publish the effects of fn only after Run returns nil.
func Run[T any](ctx context.Context, g *Gate, op Operation, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	result, opErr := fn(ctx)

	evidence := map[string]any{
		"function":    op.Name,
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
		"error":       nil,
	}
	for k, v := range op.Evidence {
		evidence[k] = v
	}
	verdict := VerdictSuccess
	if opErr != nil {
		verdict = VerdictFailure
		evidence["error"] = opErr.Error()
	}

	eventType := op.EventType
	if eventType == "" {
		eventType = "execution"
	}
	actor := op.Actor
	if actor == "" {
		actor = "system"
	}

	if _, err := g.Emit(ctx, Entry{EventType: eventType, Actor: actor, Verdict: verdict, Evidence: evidence}); err != nil {
		var zero T
		return zero, err
	}
	return result, opErr
}
