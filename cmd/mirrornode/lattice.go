package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Mindburn-Labs/mirrornode/pkg/aggregate"
	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
	"github.com/Mindburn-Labs/mirrornode/pkg/config"
	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
	"github.com/Mindburn-Labs/mirrornode/pkg/orchestrator"
)

// lattice bundles what every command that dispatches events needs.
type lattice struct {
	cfg   *config.Config
	gate  *audit.Gate
	sink  audit.Sink
	obs   *observability.Provider
	orch  *orchestrator.Orchestrator
	close func(context.Context)

	// availability is fed by both the orchestrator and the router.
	availability *observability.AvailabilityTracker
}

// openLattice wires config, audit sink, telemetry and an initialized
// orchestrator. adaptersFile overrides MIRRORNODE_ADAPTERS_FILE when set.
func openLattice(ctx context.Context, cfg *config.Config, adaptersFile string) (*lattice, error) {
	if adaptersFile != "" {
		cfg.AdaptersFile = adaptersFile
	}
	specs, err := config.LoadAdapterSpecs(cfg.AdaptersFile)
	if err != nil {
		return nil, err
	}
	strategy, err := aggregate.FromRule(cfg.ConsensusRule)
	if err != nil {
		return nil, err
	}

	sink, err := cfg.OpenAuditSink(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit sink %s: %w", cfg.AuditSink, err)
	}
	gate := audit.NewGate(sink, "mirrornode", audit.WithCanonRoot(cfg.CanonRoot))

	obs, err := observability.New(ctx, cfg.Observability())
	if err != nil {
		closeSink(sink)
		return nil, fmt.Errorf("observability: %w", err)
	}

	availability := observability.NewAvailabilityTracker()
	orch := orchestrator.New(
		orchestrator.WithSpecs(specs),
		orchestrator.WithTimeout(cfg.AdapterTimeout),
		orchestrator.WithStrategy(strategy),
		orchestrator.WithGate(gate),
		orchestrator.WithObservability(obs),
		orchestrator.WithAvailability(availability),
	)
	if err := orch.Initialize(ctx); err != nil {
		_ = obs.Shutdown(ctx)
		closeSink(sink)
		return nil, err
	}

	l := &lattice{cfg: cfg, gate: gate, sink: sink, obs: obs, orch: orch, availability: availability}
	l.close = func(ctx context.Context) {
		if err := orch.Shutdown(ctx); err != nil {
			slog.WarnContext(ctx, "orchestrator shutdown", "error", err)
		}
		if err := obs.Shutdown(ctx); err != nil {
			slog.WarnContext(ctx, "telemetry shutdown", "error", err)
		}
		closeSink(sink)
	}
	return l, nil
}

func closeSink(s audit.Sink) {
	if c, ok := s.(io.Closer); ok {
		_ = c.Close()
	}
}
