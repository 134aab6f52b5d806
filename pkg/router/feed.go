package router

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/mirrornode/pkg/events"
)

// DefaultFeedBuffer is the per-subscriber buffer of a live feed.
const DefaultFeedBuffer = 64

// Feed delivers events dispatched after it was opened. A consumer that falls
// behind loses the oldest buffered events; Dropped counts them.
type Feed struct {
	id      string
	ch      chan *events.Event
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
	onClose func(*Feed)
	once    sync.Once
}

func newFeed(buffer int, onClose func(*Feed)) *Feed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Feed{
		id:      uuid.New().String(),
		ch:      make(chan *events.Event, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (f *Feed) ID() string { return f.id }

// Events is closed once the feed is closed.
func (f *Feed) Events() <-chan *events.Event { return f.ch }

// Done is closed once the feed is closed.
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) Dropped() uint64 { return f.dropped.Load() }

// Close detaches the feed from its router. Safe to call more than once.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.ch)
		close(f.done)
		f.mu.Unlock()
		if f.onClose != nil {
			f.onClose(f)
		}
	})
}

// publish never blocks. It reports whether an older event was dropped.
func (f *Feed) publish(e *events.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- e:
		return false
	default:
	}
	select {
	case <-f.ch:
	default:
	}
	select {
	case f.ch <- e:
	default:
	}
	f.dropped.Add(1)
	return true
}
