package backtest

import (
	"sync/atomic"
	"time"
)

// EventType names a lifecycle event
type EventType string

const (
	EventDataLoading          EventType = "data_loading"
	EventDataLoaded           EventType = "data_loaded"
	EventRunStarted           EventType = "run_started"
	EventRunProgress          EventType = "run_progress"
	EventRunCompleted         EventType = "run_completed"
	EventRunFailed            EventType = "run_failed"
	EventOptimizationProgress EventType = "optimization_progress"
	EventMonteCarloProgress   EventType = "monte_carlo_progress"
	EventWalkForwardWindow    EventType = "walk_forward_window"
)

// Event is a progress notification. Step and Total count candles for runs,
// combinations for optimizations, iterations for Monte Carlo and windows for
// walk-forward analysis.
type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"run_id,omitempty"`
	Method  string    `json:"method,omitempty"`
	Symbol  string    `json:"symbol,omitempty"`
	Step    int       `json:"step"`
	Total   int       `json:"total"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Observer receives events. Optimizer workers emit concurrently, so
// implementations must be safe for concurrent use and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// OnEvent calls f(e)
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

// MultiObserver fans an event out to several observers
type MultiObserver []Observer

// OnEvent forwards e to every non-nil observer
func (m MultiObserver) OnEvent(e Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(e)
		}
	}
}

// ChannelObserver buffers events on a channel and drops them when full
type ChannelObserver struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewChannelObserver creates a ChannelObserver with the given buffer size
func NewChannelObserver(size int) *ChannelObserver {
	if size <= 0 {
		size = 64
	}
	return &ChannelObserver{ch: make(chan Event, size)}
}

// OnEvent enqueues e without blocking
func (c *ChannelObserver) OnEvent(e Event) {
	select {
	case c.ch <- e:
	default:
		c.dropped.Add(1)
	}
}

// Events returns the receive side of the buffer
func (c *ChannelObserver) Events() <-chan Event {
	return c.ch
}

// Dropped returns how many events were discarded
func (c *ChannelObserver) Dropped() uint64 {
	return c.dropped.Load()
}

func emit(o Observer, e Event) {
	if o == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	o.OnEvent(e)
}
