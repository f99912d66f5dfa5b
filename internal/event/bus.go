// internal/event/bus.go
package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pos-device-service/internal/model"
)

const (
	queueSize      = 1000
	subscriberSize = 100
)

// Bus fans device events out to subscribers. Publishing never blocks: a full
// queue drops the event and a slow subscriber misses it.
type Bus struct {
	subscribers map[uint64]*subscription
	nextID      uint64
	events      chan model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	ch    chan model.DeviceEvent
	types map[model.EventType]bool
}

func (s *subscription) wants(t model.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// NewBus creates a new event bus; Run must be started to deliver events
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[uint64]*subscription),
		events:      make(chan model.DeviceEvent, queueSize),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Run delivers queued events until ctx is done
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.distribute(ev)
		}
	}
}

// Publish queues an event
func (b *Bus) Publish(ev model.DeviceEvent) {
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(ev.EventType)),
			zap.String("device_id", ev.DeviceID),
		)
	}
}

// Subscribe registers a subscriber for the given types, or for every type
// when none are given. The id is passed to Unsubscribe.
func (b *Bus) Subscribe(types ...model.EventType) (uint64, <-chan model.DeviceEvent) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	sub := &subscription{
		ch:    make(chan model.DeviceEvent, subscriberSize),
		types: make(map[model.EventType]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.nextID++
	b.subscribers[b.nextID] = sub
	return b.nextID, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(id uint64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// distribute hands ev to every interested subscriber, skipping slow ones
func (b *Bus) distribute(ev model.DeviceEvent) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for id, sub := range b.subscribers {
		if !sub.wants(ev.EventType) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Debug("Subscriber is slow, event skipped", zap.Uint64("subscriber", id))
		}
	}
}
