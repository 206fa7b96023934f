// Package event_manager is the pub/sub hub between the tracker core and its
// read-out surfaces. Packet handlers publish here instead of calling
// broadcast functions inline; slow subscribers lose frames, they never block
// the publisher.
package event_manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventTypeAll EventType = "*"

	EventTypeSnapshot     EventType = "snapshot"
	EventTypeGameNew      EventType = "game_new"
	EventTypeGameUpdate   EventType = "game_update"
	EventTypeGameRemoved  EventType = "game_removed"
	EventTypeGameEvent    EventType = "game_event"
	EventTypeGameSummary  EventType = "game_summary"
	EventTypeGamelogReset EventType = "gamelog_reset"
)

// Event is one published notification.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventSubscriber represents a subscriber to events
type EventSubscriber struct {
	ID      uuid.UUID
	Channel chan Event
	Types   []EventType
}

// EventManager manages the centralized event system
type EventManager struct {
	subscribers map[uuid.UUID]*EventSubscriber
	eventQueue  chan Event
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewEventManager creates a new event manager
func NewEventManager(ctx context.Context, bufferSize int) *EventManager {
	ctx, cancel := context.WithCancel(ctx)

	if bufferSize <= 0 {
		bufferSize = 1000
	}

	em := &EventManager{
		subscribers: make(map[uuid.UUID]*EventSubscriber),
		eventQueue:  make(chan Event, bufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}

	go em.processEvents()

	return em
}

// Subscribe creates a new event subscription filtered by type. An empty or
// "*" filter receives everything.
func (em *EventManager) Subscribe(types []EventType, channelSize int) *EventSubscriber {
	em.mu.Lock()
	defer em.mu.Unlock()

	if channelSize <= 0 {
		channelSize = 100
	}

	subscriber := &EventSubscriber{
		ID:      uuid.New(),
		Channel: make(chan Event, channelSize),
		Types:   types,
	}

	em.subscribers[subscriber.ID] = subscriber

	log.Debug().
		Str("subscriberID", subscriber.ID.String()).
		Msg("New event subscriber registered")

	return subscriber
}

// Unsubscribe removes an event subscription
func (em *EventManager) Unsubscribe(subscriberID uuid.UUID) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if subscriber, exists := em.subscribers[subscriberID]; exists {
		close(subscriber.Channel)
		delete(em.subscribers, subscriberID)
	}
}

// Publish queues an event for distribution. A full queue drops the event
// rather than blocking the packet handler that produced it.
func (em *EventManager) Publish(eventType EventType, data interface{}) {
	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case em.eventQueue <- event:
	default:
		log.Warn().
			Str("eventType", string(eventType)).
			Msg("Event queue full, dropping event")
	}
}

// processEvents processes events from the queue and distributes to subscribers
func (em *EventManager) processEvents() {
	log.Info().Msg("Event processor started")
	defer log.Info().Msg("Event processor stopped")

	for {
		select {
		case <-em.ctx.Done():
			return
		case event := <-em.eventQueue:
			em.distributeEvent(event)
		}
	}
}

// distributeEvent distributes an event to matching subscribers
func (em *EventManager) distributeEvent(event Event) {
	em.mu.RLock()
	defer em.mu.RUnlock()

	for _, subscriber := range em.subscribers {
		if !matchesFilter(event.Type, subscriber.Types) {
			continue
		}
		select {
		case subscriber.Channel <- event:
		default:
			log.Warn().
				Str("subscriberID", subscriber.ID.String()).
				Str("eventType", string(event.Type)).
				Msg("Subscriber channel full, dropping event")
		}
	}
}

func matchesFilter(eventType EventType, filter []EventType) bool {
	if len(filter) == 0 {
		return true
	}
	for _, t := range filter {
		if t == EventTypeAll || t == eventType {
			return true
		}
	}
	return false
}

// Shutdown gracefully shuts down the event manager
func (em *EventManager) Shutdown() {
	log.Info().Msg("Shutting down event manager...")

	em.cancel()

	em.mu.Lock()
	for _, subscriber := range em.subscribers {
		close(subscriber.Channel)
	}
	em.subscribers = make(map[uuid.UUID]*EventSubscriber)
	em.mu.Unlock()
}
