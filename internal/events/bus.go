package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBotStarted    EventType = "BOT_STARTED"
	EventBotStopped    EventType = "BOT_STOPPED"
	EventStateChanged  EventType = "STATE_CHANGED"
	EventScanStarted   EventType = "SCAN_STARTED"
	EventScanCompleted EventType = "SCAN_COMPLETED"
	EventPlanCreated   EventType = "PLAN_CREATED"
	EventOrderPlaced   EventType = "ORDER_PLACED"
	EventRunnerTick    EventType = "RUNNER_TICK"
	EventSymbolError   EventType = "SYMBOL_ERROR"
	EventError         EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in their own
// goroutine so a slow websocket client never stalls a scan. A nil bus
// discards the event.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishStateChanged publishes an orchestrator state transition
func (eb *EventBus) PublishStateChanged(from, to string) {
	eb.Publish(Event{
		Type: EventStateChanged,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishScanStarted publishes the start of a scan pass
func (eb *EventBus) PublishScanStarted(scanID string, poolSize int) {
	eb.Publish(Event{
		Type: EventScanStarted,
		Data: map[string]interface{}{
			"scan_id":   scanID,
			"pool_size": poolSize,
		},
	})
}

// PublishScanCompleted publishes a finished scan pass
func (eb *EventBus) PublishScanCompleted(scanID string, scanned, candidates, plans, errors int, duration time.Duration) {
	eb.Publish(Event{
		Type: EventScanCompleted,
		Data: map[string]interface{}{
			"scan_id":     scanID,
			"scanned":     scanned,
			"candidates":  candidates,
			"plans":       plans,
			"errors":      errors,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishPlanCreated publishes a plan that passed every gate
func (eb *EventBus) PublishPlanCreated(symbol, side, mode string, entry, stopLoss, tp1 float64) {
	eb.Publish(Event{
		Type: EventPlanCreated,
		Data: map[string]interface{}{
			"symbol": symbol,
			"side":   side,
			"mode":   mode,
			"entry":  entry,
			"sl":     stopLoss,
			"tp1":    tp1,
		},
	})
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(orderID int64, symbol, clientOrderID, side, price, quantity string, dry bool) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id":        orderID,
			"symbol":          symbol,
			"client_order_id": clientOrderID,
			"side":            side,
			"price":           price,
			"quantity":        quantity,
			"dry":             dry,
		},
	})
}

// PublishRunnerTick publishes the open order and position counts
func (eb *EventBus) PublishRunnerTick(openOrders, positions int) {
	eb.Publish(Event{
		Type: EventRunnerTick,
		Data: map[string]interface{}{
			"open_orders": openOrders,
			"positions":   positions,
		},
	})
}

// PublishSymbolError publishes a per-symbol failure during a scan
func (eb *EventBus) PublishSymbolError(symbol string, err error) {
	eb.Publish(Event{
		Type: EventSymbolError,
		Data: map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
