package core

import (
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/timada-org/todobase/pkg/topic"
)

type Event struct {
	Topic *topic.TopicName `json:"topic"`
	Name  string           `json:"name"`
	Data  any              `json:"data"`
}

func NewEvent(name string, eventName string, data any) *Event {
	return &Event{
		Topic: topic.MustName(name),
		Name:  eventName,
		Data:  data,
	}
}

type Handler func(event *Event)

// EventBus delivers events synchronously, in subscription order, to every
// subscription whose filter matches the event topic.
type EventBus struct {
	mux           sync.RWMutex
	subscriptions []*Subscription
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

func (bus *EventBus) Subscribe(filter *topic.TopicFilter, handler Handler) *Subscription {
	subscription := &Subscription{
		id:      gonanoid.Must(),
		bus:     bus,
		filter:  filter,
		handler: handler,
	}

	bus.mux.Lock()
	bus.subscriptions = append(bus.subscriptions, subscription)
	bus.mux.Unlock()

	return subscription
}

func (bus *EventBus) Publish(event *Event) {
	bus.mux.RLock()
	matched := make([]*Subscription, 0, len(bus.subscriptions))
	for _, subscription := range bus.subscriptions {
		if subscription.filter.Match(event.Topic) {
			matched = append(matched, subscription)
		}
	}
	bus.mux.RUnlock()

	// handlers may subscribe or unsubscribe, so they run without the lock held
	for _, subscription := range matched {
		subscription.handler(event)
	}
}

func (bus *EventBus) Len() int {
	bus.mux.RLock()
	defer bus.mux.RUnlock()

	return len(bus.subscriptions)
}

func (bus *EventBus) remove(target *Subscription) {
	bus.mux.Lock()
	defer bus.mux.Unlock()

	for i, subscription := range bus.subscriptions {
		if subscription == target {
			bus.subscriptions = append(bus.subscriptions[:i], bus.subscriptions[i+1:]...)
			return
		}
	}
}

type Subscription struct {
	id      string
	once    sync.Once
	bus     *EventBus
	filter  *topic.TopicFilter
	handler Handler
}

func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}
