// Package events funnels every plugin-system state change to local
// subscribers and to the application-wide event bus.
package events

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TopicPrefix is prepended to event names when publishing on the global bus.
const TopicPrefix = "pluginSystem."

// Event is delivered to local subscribers.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives events for the name it subscribed to.
type Handler func(Event)

// Bus is the global topic-based event bus.
type Bus interface {
	Publish(topic string, payload any) error
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Notifier dispatches each event to local subscribers and the global bus
// independently: a failing subscriber never blocks the others or the bus,
// and a failing bus never blocks local delivery.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[string][]subscriber
	nextID uint64
	bus    Bus
}

// NewNotifier creates a notifier. bus may be nil for local-only delivery.
func NewNotifier(bus Bus) *Notifier {
	return &Notifier{
		subs: make(map[string][]subscriber),
		bus:  bus,
	}
}

// Subscribe registers handler for the named event and returns a function
// that removes it. Calling the returned function more than once is harmless.
func (n *Notifier) Subscribe(name string, handler Handler) (unsubscribe func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[name] = append(n.subs[name], subscriber{id: id, handler: handler})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			list := n.subs[name]
			for i, s := range list {
				if s.id == id {
					n.subs[name] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(n.subs[name]) == 0 {
				delete(n.subs, name)
			}
		})
	}
}

// Emit delivers payload to every local subscriber of name, then publishes it
// on the global bus under "pluginSystem.<name>".
func (n *Notifier) Emit(name string, payload any) {
	evt := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	n.mu.RLock()
	handlers := make([]Handler, 0, len(n.subs[name]))
	for _, s := range n.subs[name] {
		handlers = append(handlers, s.handler)
	}
	bus := n.bus
	n.mu.RUnlock()

	for _, h := range handlers {
		if err := deliver(h, evt); err != nil {
			log.Printf("Warning: subscriber for event %s failed: %v", name, err)
		}
	}

	if bus != nil {
		if err := publish(bus, TopicPrefix+name, payload); err != nil {
			log.Printf("Warning: failed to publish event %s: %v", name, err)
		}
	}
}

// SubscriberCount returns the number of local subscribers for name.
func (n *Notifier) SubscriberCount(name string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[name])
}

func deliver(h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	h(evt)
	return nil
}

func publish(bus Bus, topic string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return bus.Publish(topic, payload)
}
