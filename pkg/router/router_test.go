package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mirrornode/pkg/adapters"
	"github.com/Mindburn-Labs/mirrornode/pkg/audit"
	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
	"github.com/Mindburn-Labs/mirrornode/pkg/events"
	"github.com/Mindburn-Labs/mirrornode/pkg/observability"
)

func testEvent(i int) *events.Event {
	return events.New(events.EventExecution, "mirror-node", events.Source{
		Node:    "mirror-node",
		Surface: "test",
		Origin:  "router_test",
	}, map[string]any{"i": i})
}

func okAdapter(name string, calls *atomic.Int32) adapters.Adapter {
	return adapters.New(name, adapters.ProviderFunc(func(context.Context, string) (map[string]any, error) {
		if calls != nil {
			calls.Add(1)
		}
		return map[string]any{"content": name}, nil
	}))
}

type panicAdapter struct{ name string }

func (p panicAdapter) Name() string { return p.name }

func (p panicAdapter) Invoke(context.Context, string) *contracts.AdapterResponse {
	panic("adapter exploded")
}

type nilAdapter struct{}

func (nilAdapter) Name() string { return "silent" }

func (nilAdapter) Invoke(context.Context, string) *contracts.AdapterResponse { return nil }

func TestDispatch_RoutesToAllAdapters(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", nil)))
	require.NoError(t, r.RegisterAdapter(okAdapter("claude", nil)))

	e := &events.Event{
		EventType: events.EventAnalysis,
		Node:      "mirror-node",
		Source:    &events.Source{Node: "a", Surface: "b", Origin: "c"},
		Payload:   map[string]any{},
	}
	responses, err := r.Dispatch(context.Background(), e)
	require.NoError(t, err)

	assert.NotEmpty(t, e.TraceID)
	assert.NotNil(t, e.Timestamp)
	require.Len(t, responses, 2)
	assert.True(t, responses["gpt"].OK())
	assert.Equal(t, "claude", responses["claude"].Payload()["content"])
	assert.Equal(t, []string{"claude", "gpt"}, r.Adapters())
	assert.Equal(t, 1, r.HistorySize())
}

func TestDispatch_InvalidEvent(t *testing.T) {
	r := New()
	_, err := r.Dispatch(context.Background(), &events.Event{EventType: "BOGUS", Node: "n"})
	assert.ErrorIs(t, err, events.ErrInvalidEvent)
	assert.Equal(t, 0, r.HistorySize())
}

func TestDispatch_SubscriberFailureAbortsBeforeSideEffects(t *testing.T) {
	var calls atomic.Int32
	r := New()
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", &calls)))

	var seen atomic.Int32
	r.RegisterSubscriber("counter", func(context.Context, *events.Event) error {
		seen.Add(1)
		return nil
	})
	r.RegisterSubscriber("broken", func(context.Context, *events.Event) error {
		return errors.New("sink offline")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := r.Subscribe(ctx)

	_, err := r.Dispatch(context.Background(), testEvent(1))
	require.ErrorIs(t, err, ErrSubscriberFailed)
	assert.Contains(t, err.Error(), "broken")

	assert.Equal(t, 0, r.HistorySize())
	assert.Equal(t, int32(0), calls.Load())
	select {
	case e := <-feed.Events():
		t.Fatalf("feed received %v after aborted dispatch", e)
	default:
	}
}

func TestDispatch_PanickingSubscriberAborts(t *testing.T) {
	r := New()
	r.RegisterSubscriber("panics", func(context.Context, *events.Event) error { panic("boom") })
	_, err := r.Dispatch(context.Background(), testEvent(1))
	assert.ErrorIs(t, err, ErrSubscriberFailed)
	assert.Equal(t, 0, r.HistorySize())
}

func TestDispatch_FaultyAdaptersBecomeUnavailable(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", nil)))
	require.NoError(t, r.RegisterAdapter(panicAdapter{name: "grok"}))
	require.NoError(t, r.RegisterAdapter(nilAdapter{}))

	responses, err := r.Dispatch(context.Background(), testEvent(1))
	require.NoError(t, err)
	require.Len(t, responses, 3)

	assert.Equal(t, contracts.StatusOK, responses["gpt"].Status())
	for _, name := range []string{"grok", "silent"} {
		resp := responses[name]
		require.NotNil(t, resp, name)
		assert.Equal(t, contracts.StatusUnavailable, resp.Status(), name)
		assert.Equal(t, name, resp.NodeID())
		require.NotNil(t, resp.Err())
	}
	assert.Contains(t, responses["grok"].Err().Message, "adapter exploded")
}

func TestRegisterAdapter_Duplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", nil)))
	assert.ErrorIs(t, r.RegisterAdapter(okAdapter("gpt", nil)), ErrDuplicateAdapter)
}

func TestRecent_BoundedAndOrdered(t *testing.T) {
	r := New(WithHistorySize(3))
	for i := 1; i <= 5; i++ {
		_, err := r.Dispatch(context.Background(), testEvent(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, r.HistorySize())
	assert.Equal(t, 3, r.HistoryCapacity())

	all := r.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, 3, all[0].Payload["i"])
	assert.Equal(t, 5, all[2].Payload["i"])

	last := r.Recent(2)
	require.Len(t, last, 2)
	assert.Equal(t, 4, last[0].Payload["i"])

	assert.Len(t, r.Recent(10), 3)
	assert.Len(t, r.Recent(-1), 3)
}

func TestRecent_ReturnsCopies(t *testing.T) {
	r := New()
	e := testEvent(1)
	_, err := r.Dispatch(context.Background(), e)
	require.NoError(t, err)

	e.Payload["i"] = 99
	got := r.Recent(1)
	got[0].Payload["i"] = 100
	assert.Equal(t, 1, r.Recent(1)[0].Payload["i"])
}

func TestFeed_DeliversDispatchedEvents(t *testing.T) {
	r := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := r.Subscribe(ctx)

	e := testEvent(7)
	_, err := r.Dispatch(context.Background(), e)
	require.NoError(t, err)

	select {
	case got := <-feed.Events():
		assert.Equal(t, e.TraceID, got.TraceID)
	case <-time.After(time.Second):
		t.Fatal("no event on feed")
	}
}

func TestFeed_DropsOldestWhenConsumerLags(t *testing.T) {
	r := New(WithFeedBuffer(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := r.Subscribe(ctx)

	for i := 1; i <= 5; i++ {
		_, err := r.Dispatch(context.Background(), testEvent(i))
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(3), feed.Dropped())

	first := <-feed.Events()
	second := <-feed.Events()
	assert.Equal(t, 4, first.Payload["i"])
	assert.Equal(t, 5, second.Payload["i"])
}

func TestFeed_TeardownIsIsolated(t *testing.T) {
	r := New()
	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	a := r.Subscribe(ctxA)
	b := r.Subscribe(ctxB)
	require.Equal(t, 2, r.FeedCount())

	cancelA()
	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("feed not closed on context cancellation")
	}
	require.Eventually(t, func() bool { return r.FeedCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := r.Dispatch(context.Background(), testEvent(1))
	require.NoError(t, err)
	select {
	case got := <-b.Events():
		assert.Equal(t, 1, got.Payload["i"])
	case <-time.After(time.Second):
		t.Fatal("surviving feed missed event")
	}

	_, open := <-a.Events()
	assert.False(t, open)

	b.Close()
	b.Close()
	assert.Equal(t, 0, r.FeedCount())
}

func TestDispatch_Audited(t *testing.T) {
	ledger := audit.NewLedger()
	gate := audit.NewGate(ledger, "mirrornode", audit.WithRepoHash(func() string { return "test" }))
	r := New(WithGate(gate))
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", nil)))

	e := testEvent(1)
	_, err := r.Dispatch(context.Background(), e)
	require.NoError(t, err)

	recs := ledger.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.VerdictSuccess, recs[0].Verdict)
	assert.Equal(t, e.TraceID, recs[0].Evidence["trace_id"])
	assert.Equal(t, "route_event", recs[0].Evidence["function"])
}

func TestDispatch_AuditFailureFailsDispatch(t *testing.T) {
	failing := audit.SinkFunc(func(context.Context, audit.Record) error { return errors.New("ledger offline") })
	gate := audit.NewGate(failing, "mirrornode", audit.WithRepoHash(func() string { return "test" }))
	r := New(WithGate(gate))
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := r.Subscribe(ctx)

	responses, err := r.Dispatch(context.Background(), testEvent(1))
	assert.ErrorIs(t, err, audit.ErrEmissionFailed)
	assert.Nil(t, responses)

	assert.Empty(t, r.Recent(0))
	assert.Equal(t, 0, r.HistorySize())
	select {
	case e := <-feed.Events():
		t.Fatalf("feed received unrecorded event %s", e.TraceID)
	default:
	}
}

func TestDispatch_RecordPrecedesHistoryAndFeeds(t *testing.T) {
	ledger := audit.NewLedger()
	var r *Router
	var historyAtEmit, feedAtEmit int
	var feed *Feed
	sink := audit.SinkFunc(func(ctx context.Context, rec audit.Record) error {
		historyAtEmit = r.HistorySize()
		feedAtEmit = len(feed.Events())
		return ledger.Append(ctx, rec)
	})
	r = New(WithGate(audit.NewGate(sink, "mirrornode", audit.WithRepoHash(func() string { return "test" }))))
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed = r.Subscribe(ctx)

	_, err := r.Dispatch(context.Background(), testEvent(1))
	require.NoError(t, err)
	assert.Equal(t, 0, historyAtEmit)
	assert.Equal(t, 0, feedAtEmit)
	assert.Equal(t, 1, r.HistorySize())
	assert.Len(t, feed.Events(), 1)
	assert.Equal(t, 1, ledger.Len())
}

func TestDispatch_RecordsAvailability(t *testing.T) {
	tracker := observability.NewAvailabilityTracker()
	r := New(WithAvailability(tracker))
	require.NoError(t, r.RegisterAdapter(okAdapter("gpt", nil)))
	require.NoError(t, r.RegisterAdapter(panicAdapter{name: "hal"}))

	_, err := r.Dispatch(context.Background(), testEvent(1))
	require.NoError(t, err)

	status := tracker.Snapshot()
	require.Contains(t, status, "gpt")
	require.Contains(t, status, "hal")
	assert.Equal(t, 1.0, status["gpt"].CurrentSuccess)
	assert.Equal(t, 0.0, status["hal"].CurrentSuccess)
}
