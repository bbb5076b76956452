package events

import (
	"context"
	"encoding/json"
	"entryready/internal/logger"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const (
	ChannelEntries = "entries"
	ChannelRules   = "rules"

	TypeStatusChanged      = "entry.status_changed"
	TypeSubmissionRecorded = "entry.submission_recorded"
	TypeRulesReloaded      = "rules.reloaded"

	relayPrefix = "entryready:events:"
)

var ErrBusClosed = errors.New("event bus is closed")

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel"`
	UserID    string         `json:"userId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Handler func(event Event)

// EventBus is an in-process publish/subscribe hub. Publish delivers to every
// subscriber of the channel synchronously, in subscription order. Channels
// handed to Relay are also shared with other instances through valkey.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      uint64
	closed      bool
	origin      string
	relay       valkey.Client
	relayed     []string
	log         logger.Logger
}

// relayedEvent is the valkey payload. Origin lets a bus skip its own echoes.
type relayedEvent struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

type subscription struct {
	id      uint64
	handler Handler
}

func New() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]subscription),
		origin:      uuid.NewString(),
		log:         logger.New("EventBus"),
	}
}

// Subscribe registers handler on channel and returns a function removing it.
func (b *EventBus) Subscribe(channel string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subscribers[channel] = append(b.subscribers[channel], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(channel, id) })
	}
}

func (b *EventBus) unsubscribe(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[channel]
	for i, sub := range subs {
		if sub.id == id {
			b.subscribers[channel] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[channel]) == 0 {
		delete(b.subscribers, channel)
	}
}

func (b *EventBus) Publish(channel string, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := append([]subscription(nil), b.subscribers[channel]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Channel = channel

	for _, sub := range subs {
		b.dispatch(sub.handler, event)
	}

	b.forward(channel, event)
	return nil
}

// deliver hands an event that arrived from another instance to local
// subscribers only.
func (b *EventBus) deliver(channel string, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := append([]subscription(nil), b.subscribers[channel]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(sub.handler, event)
	}
}

// Relay shares the given channels with every other bus relaying them through
// the same valkey server. The returned function stops the relay and waits for
// the receive loop to exit.
func (b *EventBus) Relay(client valkey.Client, channels ...string) func() {
	log := b.log.Function("Relay")

	names := make([]string, 0, len(channels))
	for _, channel := range channels {
		names = append(names, relayPrefix+channel)
	}

	b.mu.Lock()
	b.relay = client
	b.relayed = slices.Clone(channels)
	b.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := client.Receive(ctx, client.B().Subscribe().Channel(names...).Build(), b.receive)
		if err != nil && ctx.Err() == nil {
			log.Er("event relay stopped", err, "channels", channels)
		}
	}()

	log.Info("Relaying events through valkey", "channels", channels, "origin", b.origin)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.relay = nil
			b.relayed = nil
			b.mu.Unlock()
			cancel()
			<-done
		})
	}
}

func (b *EventBus) forward(channel string, event Event) {
	b.mu.RLock()
	client := b.relay
	relayed := slices.Contains(b.relayed, channel)
	b.mu.RUnlock()
	if client == nil || !relayed {
		return
	}

	log := b.log.Function("forward")
	payload, err := json.Marshal(relayedEvent{Origin: b.origin, Event: event})
	if err != nil {
		log.Er("failed to encode relayed event", err, "type", event.Type)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	command := client.B().Publish().Channel(relayPrefix + channel).Message(string(payload)).Build()
	if err := client.Do(ctx, command).Error(); err != nil {
		log.Warn("failed to relay event", "type", event.Type, "channel", channel, "error", err)
	}
}

func (b *EventBus) receive(message valkey.PubSubMessage) {
	var relayed relayedEvent
	if err := json.Unmarshal([]byte(message.Message), &relayed); err != nil {
		b.log.Function("receive").Warn("dropping malformed relayed event", "channel", message.Channel, "error", err)
		return
	}
	if relayed.Origin == b.origin {
		return
	}

	channel := relayed.Event.Channel
	if channel == "" {
		channel = strings.TrimPrefix(message.Channel, relayPrefix)
	}
	b.deliver(channel, relayed.Event)
}

func (b *EventBus) dispatch(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Function("dispatch").Error("event handler panicked",
				"type", event.Type,
				"channel", event.Channel,
				"panic", r,
			)
		}
	}()

	handler(event)
}

func (b *EventBus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subscribers = make(map[string][]subscription)
	return nil
}
