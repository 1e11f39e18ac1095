package events

import (
	"sync"
	"time"

	"github.com/cuemby/quotaledger/pkg/types"
)

// EventType names one of the six lifecycle transitions the accounting core
// reacts to.
type EventType string

const (
	EventSandboxCreated       EventType = "sandbox.created"
	EventSandboxStateUpdated  EventType = "sandbox.state_updated"
	EventSnapshotCreated      EventType = "snapshot.created"
	EventSnapshotStateUpdated EventType = "snapshot.state_updated"
	EventVolumeCreated        EventType = "volume.created"
	EventVolumeStateUpdated   EventType = "volume.state_updated"
)

// Event is a single lifecycle notification published by whatever owns the
// entity's source-of-truth record. OldState is the zero value for a
// "created" event.
type Event struct {
	ID             string
	Type           EventType
	Timestamp      time.Time
	OrganizationID types.OrganizationID
	EntityID       string
	OldState       string
	NewState       string
	CPU            int64
	Mem            int64
	Disk           int64
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker fans published events out to every live subscriber. A full
// subscriber buffer drops the event for that subscriber rather than
// blocking the publisher.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
