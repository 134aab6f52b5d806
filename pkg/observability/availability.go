// Availability tracking: a rolling success-rate and latency objective per
// adapter, reported with its error budget burn.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

// SLOTarget is the objective for one adapter.
type SLOTarget struct {
	Adapter     string        `json:"adapter"`
	LatencyP99  time.Duration `json:"latency_p99"`
	SuccessRate float64       `json:"success_rate"` // 0-1
	Window      time.Duration `json:"window"`
}

// Observation is one adapter invocation.
type Observation struct {
	Adapter   string        `json:"adapter"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// SLOStatus reports current compliance for an adapter.
type SLOStatus struct {
	Adapter          string  `json:"adapter"`
	CurrentP99       float64 `json:"current_p99_ms"`
	CurrentSuccess   float64 `json:"current_success_rate"`
	InCompliance     bool    `json:"in_compliance"`
	BurnRate         float64 `json:"burn_rate"`         // >1 means burning faster than budget allows
	ErrorBudgetLeft  float64 `json:"error_budget_left"` // percentage remaining
	ObservationCount int     `json:"observation_count"`
}

// DefaultTarget applies to adapters without an explicit target.
var DefaultTarget = SLOTarget{
	LatencyP99:  30 * time.Second,
	SuccessRate: 0.9,
	Window:      time.Hour,
}

// AvailabilityTracker keeps a rolling window of observations per adapter.
// Observations older than the adapter's window are pruned on record.
type AvailabilityTracker struct {
	mu           sync.Mutex
	targets      map[string]SLOTarget
	observations map[string][]Observation
	clock        func() time.Time
}

func NewAvailabilityTracker() *AvailabilityTracker {
	return &AvailabilityTracker{
		targets:      make(map[string]SLOTarget),
		observations: make(map[string][]Observation),
		clock:        time.Now,
	}
}

// WithClock overrides clock for testing.
func (t *AvailabilityTracker) WithClock(clock func() time.Time) *AvailabilityTracker {
	t.clock = clock
	return t
}

// SetTarget sets the objective for target.Adapter.
func (t *AvailabilityTracker) SetTarget(target SLOTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[target.Adapter] = target
}

func (t *AvailabilityTracker) target(adapter string) SLOTarget {
	if target, ok := t.targets[adapter]; ok {
		return target
	}
	target := DefaultTarget
	target.Adapter = adapter
	return target
}

// Record adds an observation.
func (t *AvailabilityTracker) Record(obs Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	if obs.Timestamp.IsZero() {
		obs.Timestamp = now
	}
	windowStart := now.Add(-t.target(obs.Adapter).Window)
	kept := t.observations[obs.Adapter][:0]
	for _, o := range t.observations[obs.Adapter] {
		if o.Timestamp.After(windowStart) {
			kept = append(kept, o)
		}
	}
	t.observations[obs.Adapter] = append(kept, obs)
}

// RecordResponses adds one observation per envelope.
func (t *AvailabilityTracker) RecordResponses(responses map[string]*contracts.AdapterResponse) {
	for name, resp := range responses {
		var latency time.Duration
		if ms := resp.Metadata().LatencyMs; ms != nil {
			latency = time.Duration(*ms * float64(time.Millisecond))
		}
		t.Record(Observation{Adapter: name, Latency: latency, Success: resp.OK()})
	}
}

// Snapshot returns the status of every observed adapter.
func (t *AvailabilityTracker) Snapshot() map[string]*SLOStatus {
	out := make(map[string]*SLOStatus)
	for _, name := range t.Adapters() {
		out[name] = t.Status(name)
	}
	return out
}

// Adapters returns the adapters with observations, sorted.
func (t *AvailabilityTracker) Adapters() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.observations))
	for name := range t.observations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status computes current compliance for an adapter.
func (t *AvailabilityTracker) Status(adapter string) *SLOStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := t.target(adapter)
	windowStart := t.clock().Add(-target.Window)

	var windowed []Observation
	for _, obs := range t.observations[adapter] {
		if obs.Timestamp.After(windowStart) {
			windowed = append(windowed, obs)
		}
	}

	if len(windowed) == 0 {
		return &SLOStatus{
			Adapter:         adapter,
			InCompliance:    true,
			ErrorBudgetLeft: 100.0,
		}
	}

	successCount := 0
	for _, obs := range windowed {
		if obs.Success {
			successCount++
		}
	}
	successRate := float64(successCount) / float64(len(windowed))

	latencies := make([]float64, len(windowed))
	for i, obs := range windowed {
		latencies[i] = float64(obs.Latency.Milliseconds())
	}
	sort.Float64s(latencies)
	p99Index := int(float64(len(latencies)) * 0.99)
	if p99Index >= len(latencies) {
		p99Index = len(latencies) - 1
	}
	p99 := latencies[p99Index]

	latencyOK := p99 <= float64(target.LatencyP99.Milliseconds())
	successOK := successRate >= target.SuccessRate
	inCompliance := latencyOK && successOK

	// A zero budget is either untouched or exhausted.
	errorBudget := 1.0 - target.SuccessRate
	errorRate := 1.0 - successRate
	var burnRate float64
	budgetLeft := 100.0
	if errorBudget > 0 {
		burnRate = errorRate / errorBudget
		budgetLeft = 100.0 * (1.0 - burnRate)
	} else if errorRate > 0 {
		budgetLeft = 0
	}
	if budgetLeft < 0 {
		budgetLeft = 0
	}

	return &SLOStatus{
		Adapter:          adapter,
		CurrentP99:       p99,
		CurrentSuccess:   successRate,
		InCompliance:     inCompliance,
		BurnRate:         burnRate,
		ErrorBudgetLeft:  budgetLeft,
		ObservationCount: len(windowed),
	}
}
