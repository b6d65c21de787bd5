package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/google/uuid"
)

// Event types published inside the service
const (
	EventTypeCommonsRefreshed = "aggregate.commons.refreshed"
	EventTypeCommonsFailed    = "aggregate.commons.failed"
	EventTypeRecordWritten    = "metadata.record.written"
	EventTypeRecordDeleted    = "metadata.record.deleted"
)

// Event represents a generic event
type Event interface {
	ID() string
	Type() string
	Data() interface{}
	Timestamp() time.Time
	Source() string
}

// Handler defines the event handler function type
type Handler func(ctx context.Context, event Event) error

// Bus is the contract the rest of the service depends on
type Bus interface {
	Subscribe(eventType string, handler Handler) (unsubscribe func())
	Publish(ctx context.Context, event Event) error
	PublishAndForget(ctx context.Context, event Event)
	SubscriberCount(eventType string) int
}

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is an in-process event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
	logger   logger.Logger
	config   BusConfig
}

// BusConfig holds configuration for the event bus
type BusConfig struct {
	AsyncProcessing bool
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultBusConfig returns default configuration
func DefaultBusConfig() BusConfig {
	return BusConfig{
		AsyncProcessing: false,
		MaxRetries:      1,
		RetryDelay:      100 * time.Millisecond,
	}
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	return NewEventBusWithConfig(log, DefaultBusConfig())
}

// NewEventBusWithConfig creates a new event bus with custom configuration
func NewEventBusWithConfig(log logger.Logger, config BusConfig) *EventBus {
	if log == nil {
		log = logger.Default()
	}
	return &EventBus{
		handlers: make(map[string][]subscription),
		logger:   log.WithComponent("eventbus"),
		config:   config,
	}
}

// Subscribe adds a handler for an event type. The returned func removes it.
func (eb *EventBus) Subscribe(eventType string, handler Handler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, handler: handler})
	eb.logger.Debug("handler subscribed", "event_type", eventType)

	return func() { eb.remove(eventType, id) }
}

func (eb *EventBus) remove(eventType string, id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			eb.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(eb.handlers[eventType]) == 0 {
		delete(eb.handlers, eventType)
	}
}

// Publish sends an event to all registered handlers
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	subs := append([]subscription(nil), eb.handlers[event.Type()]...)
	eb.mu.RUnlock()

	if len(subs) == 0 {
		return nil
	}

	if eb.config.AsyncProcessing {
		return eb.publishAsync(ctx, event, subs)
	}
	for _, s := range subs {
		if err := eb.executeHandler(ctx, event, s.handler); err != nil {
			return err
		}
	}
	return nil
}

func (eb *EventBus) publishAsync(ctx context.Context, event Event, subs []subscription) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(subs))

	for _, s := range subs {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			if err := eb.executeHandler(ctx, event, h); err != nil {
				errCh <- err
			}
		}(s.handler)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

// executeHandler runs a handler with the configured retries
func (eb *EventBus) executeHandler(ctx context.Context, event Event, handler Handler) error {
	var lastErr error

	for attempt := 0; attempt <= eb.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(eb.config.RetryDelay):
			}
		}
		if err := handler(ctx, event); err != nil {
			lastErr = err
			eb.logger.Warn("event handler failed", "event_type", event.Type(), "attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}

	return fmt.Errorf("handler failed after %d attempts: %w", eb.config.MaxRetries+1, lastErr)
}

// PublishAndForget publishes an event without waiting for completion
func (eb *EventBus) PublishAndForget(ctx context.Context, event Event) {
	go func() {
		if err := eb.Publish(context.WithoutCancel(ctx), event); err != nil {
			eb.logger.Error("failed to publish event", "event_type", event.Type(), "error", err)
		}
	}()
}

// SubscriberCount returns the number of handlers for an event type
func (eb *EventBus) SubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// BasicEvent implements the Event interface
type BasicEvent struct {
	EventID   string      `json:"id"`
	EventType string      `json:"type"`
	Payload   interface{} `json:"data"`
	At        time.Time   `json:"timestamp"`
	Origin    string      `json:"source"`
}

// NewEvent creates an event stamped with a fresh id and the current time
func NewEvent(eventType string, data interface{}, source string) *BasicEvent {
	return &BasicEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Payload:   data,
		At:        time.Now().UTC(),
		Origin:    source,
	}
}

func (e *BasicEvent) ID() string           { return e.EventID }
func (e *BasicEvent) Type() string         { return e.EventType }
func (e *BasicEvent) Data() interface{}    { return e.Payload }
func (e *BasicEvent) Timestamp() time.Time { return e.At }
func (e *BasicEvent) Source() string       { return e.Origin }
