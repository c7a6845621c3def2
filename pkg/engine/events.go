package engine

import (
	"sync"

	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
)

// Event is one entry of the engine notification feed. The concrete types
// below are the complete set; subscribers type-switch on them.
type Event interface {
	EventName() string
}

type StateChangeEvent struct {
	Old State
	New State
}

func (StateChangeEvent) EventName() string { return "state-change" }

type ErrorEvent struct {
	Err error
}

func (ErrorEvent) EventName() string { return "error" }

// DegradedModeEvent is emitted once when the engine falls back to the
// model-less processing path.
type DegradedModeEvent struct {
	Cause error
}

func (DegradedModeEvent) EventName() string { return "degraded-mode" }

// ProcessingStartEvent is emitted when the first live stream starts.
type ProcessingStartEvent struct {
	StreamID string
}

func (ProcessingStartEvent) EventName() string { return "processing-start" }

// ProcessingEndEvent is emitted when the last live stream stops.
type ProcessingEndEvent struct {
	StreamID string
}

func (ProcessingEndEvent) EventName() string { return "processing-end" }

// MetricsEvent is the periodic aggregated metrics feed.
type MetricsEvent struct {
	Metrics pipeline.Metrics
}

func (MetricsEvent) EventName() string { return "metrics" }

type ChunkReadyEvent struct {
	StreamID string
	ChunkID  string
}

func (ChunkReadyEvent) EventName() string { return "chunk-ready" }

type DestroyedEvent struct{}

func (DestroyedEvent) EventName() string { return "destroyed" }

// eventBus fans events out to subscribers, synchronously and in
// subscription order. A subscriber that blocks stalls the emitter, so
// callbacks are expected to be cheap.
type eventBus struct {
	locker      sync.Mutex
	subscribers map[uint64]func(Event)
	nextID      uint64
}

func newEventBus() *eventBus {
	return &eventBus{
		subscribers: map[uint64]func(Event){},
	}
}

// Subscribe registers a callback for every future event and returns the
// function that removes it again.
func (b *eventBus) Subscribe(callback func(Event)) func() {
	b.locker.Lock()
	defer b.locker.Unlock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = callback
	return func() {
		b.locker.Lock()
		defer b.locker.Unlock()
		delete(b.subscribers, id)
	}
}

func (b *eventBus) Emit(ev Event) {
	b.locker.Lock()
	ids := make([]uint64, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	callbacks := make([]func(Event), 0, len(ids))
	for _, id := range sortedIDs(ids) {
		callbacks = append(callbacks, b.subscribers[id])
	}
	b.locker.Unlock()

	for _, callback := range callbacks {
		callback(ev)
	}
}

func sortedIDs(ids []uint64) []uint64 {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
