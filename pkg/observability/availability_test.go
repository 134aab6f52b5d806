package observability

import (
	"testing"
	"time"
)

func TestAvailabilityNoObservations(t *testing.T) {
	tracker := NewAvailabilityTracker()
	status := tracker.Status("gpt")
	if !status.InCompliance {
		t.Fatal("expected compliance with no observations")
	}
	if status.ErrorBudgetLeft != 100.0 {
		t.Fatalf("expected full budget, got %.2f", status.ErrorBudgetLeft)
	}
}

func TestAvailabilityInCompliance(t *testing.T) {
	tracker := NewAvailabilityTracker()
	tracker.SetTarget(SLOTarget{
		Adapter:     "claude",
		LatencyP99:  1000 * time.Millisecond,
		SuccessRate: 0.99,
		Window:      time.Hour,
	})

	for i := 0; i < 100; i++ {
		tracker.Record(Observation{Adapter: "claude", Latency: 100 * time.Millisecond, Success: true})
	}

	status := tracker.Status("claude")
	if !status.InCompliance {
		t.Fatal("expected in compliance")
	}
	if status.CurrentSuccess != 1.0 {
		t.Fatalf("expected 100%% success rate, got %.2f", status.CurrentSuccess)
	}
	if status.ObservationCount != 100 {
		t.Fatalf("expected 100 observations, got %d", status.ObservationCount)
	}
}

func TestAvailabilityOutOfCompliance(t *testing.T) {
	tracker := NewAvailabilityTracker()
	tracker.SetTarget(SLOTarget{
		Adapter:     "grok",
		LatencyP99:  500 * time.Millisecond,
		SuccessRate: 0.99,
		Window:      time.Hour,
	})

	// 90% success is below the 99% target.
	for i := 0; i < 90; i++ {
		tracker.Record(Observation{Adapter: "grok", Latency: 100 * time.Millisecond, Success: true})
	}
	for i := 0; i < 10; i++ {
		tracker.Record(Observation{Adapter: "grok", Latency: 100 * time.Millisecond, Success: false})
	}

	status := tracker.Status("grok")
	if status.InCompliance {
		t.Fatal("expected out of compliance")
	}
	if status.ErrorBudgetLeft != 0 {
		t.Fatalf("expected exhausted budget, got %.2f", status.ErrorBudgetLeft)
	}
}

func TestAvailabilitySlowAdapter(t *testing.T) {
	tracker := NewAvailabilityTracker()
	tracker.SetTarget(SLOTarget{Adapter: "theia", LatencyP99: 50 * time.Millisecond, SuccessRate: 0.5, Window: time.Hour})
	tracker.Record(Observation{Adapter: "theia", Latency: time.Second, Success: true})

	if tracker.Status("theia").InCompliance {
		t.Fatal("expected latency breach")
	}
}

func TestAvailabilityBurnRate(t *testing.T) {
	tracker := NewAvailabilityTracker()
	tracker.SetTarget(SLOTarget{
		Adapter:     "gpt",
		LatencyP99:  1000 * time.Millisecond,
		SuccessRate: 0.99, // 1% error budget
		Window:      time.Hour,
	})

	// 5% error rate burns the budget 5x.
	for i := 0; i < 95; i++ {
		tracker.Record(Observation{Adapter: "gpt", Latency: 10 * time.Millisecond, Success: true})
	}
	for i := 0; i < 5; i++ {
		tracker.Record(Observation{Adapter: "gpt", Latency: 10 * time.Millisecond, Success: false})
	}

	status := tracker.Status("gpt")
	if status.BurnRate < 4.0 {
		t.Fatalf("expected high burn rate, got %.2f", status.BurnRate)
	}
}

func TestAvailabilityWindowPrunes(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewAvailabilityTracker().WithClock(func() time.Time { return now })
	tracker.SetTarget(SLOTarget{Adapter: "gpt", LatencyP99: time.Second, SuccessRate: 0.9, Window: time.Hour})

	tracker.Record(Observation{Adapter: "gpt", Success: false, Timestamp: now.Add(-2 * time.Hour)})
	tracker.Record(Observation{Adapter: "gpt", Success: true})

	status := tracker.Status("gpt")
	if status.ObservationCount != 1 || !status.InCompliance {
		t.Fatalf("expected stale failure to be dropped, got %+v", status)
	}
	if got := tracker.Adapters(); len(got) != 1 || got[0] != "gpt" {
		t.Fatalf("unexpected adapters %v", got)
	}
}

func TestAvailabilityZeroBudget(t *testing.T) {
	tracker := NewAvailabilityTracker()
	tracker.SetTarget(SLOTarget{Adapter: "strict", LatencyP99: time.Second, SuccessRate: 1.0, Window: time.Hour})
	tracker.Record(Observation{Adapter: "strict", Success: true})
	if left := tracker.Status("strict").ErrorBudgetLeft; left != 100.0 {
		t.Fatalf("expected untouched budget, got %.2f", left)
	}
	tracker.Record(Observation{Adapter: "strict", Success: false})
	if left := tracker.Status("strict").ErrorBudgetLeft; left != 0 {
		t.Fatalf("expected exhausted budget, got %.2f", left)
	}
}
