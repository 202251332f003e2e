// Package memory provides an in-process pv.Client.
//
// Broker keeps channel values in a map and delivers Publish calls to
// subscribers synchronously. Tests use it to stand in for the target.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrzor/rtems-tracer/internal/pv"
)

// Write records a Put issued through the broker.
type Write struct {
	Channel string
	Value   any
}

type subscriber struct {
	id int
	fn func(pv.Update)
}

// Broker is an in-memory PV transport.
type Broker struct {
	mu     sync.Mutex
	values map[string]any
	subs   map[string][]subscriber
	hooks  map[string]func(any)
	writes []Write
	nextID int
	closed bool
}

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		values: make(map[string]any),
		subs:   make(map[string][]subscriber),
		hooks:  make(map[string]func(any)),
	}
}

// Set stores a value without notifying subscribers.
func (b *Broker) Set(channel string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[channel] = value
}

// OnPut registers a hook run after every Put on channel.
// The hook runs without the broker lock held, so it may call Set or Publish.
func (b *Broker) OnPut(channel string, fn func(value any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[channel] = fn
}

// Publish stores the update value and delivers it to every subscriber of
// its channel, in subscription order, on the calling goroutine.
func (b *Broker) Publish(u pv.Update) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if u.Status == 0 {
		b.values[u.Channel] = u.Value
	}
	subs := append([]subscriber(nil), b.subs[u.Channel]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(u)
	}
}

// Writes returns a copy of every Put recorded so far.
func (b *Broker) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Write(nil), b.writes...)
}

// Subscribers returns the number of live subscriptions on channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

// Subscribe implements pv.Client.
func (b *Broker) Subscribe(_ context.Context, channel string, fn func(pv.Update)) (pv.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, pv.ErrClosed
	}
	b.nextID++
	b.subs[channel] = append(b.subs[channel], subscriber{id: b.nextID, fn: fn})
	return &subscription{broker: b, channel: channel, id: b.nextID}, nil
}

// Get implements pv.Client.
func (b *Broker) Get(_ context.Context, channel string) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, pv.ErrClosed
	}
	v, ok := b.values[channel]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", channel, pv.ErrNotFound)
	}
	return v, nil
}

// Put implements pv.Client.
func (b *Broker) Put(_ context.Context, channel string, value any) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return pv.ErrClosed
	}
	b.values[channel] = value
	b.writes = append(b.writes, Write{Channel: channel, Value: value})
	hook := b.hooks[channel]
	b.mu.Unlock()

	if hook != nil {
		hook(value)
	}
	return nil
}

// Close implements pv.Client. Subsequent operations fail with pv.ErrClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]subscriber)
	return nil
}

type subscription struct {
	broker  *Broker
	channel string
	id      int
	once    sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		subs := s.broker.subs[s.channel]
		for i, sub := range subs {
			if sub.id == s.id {
				s.broker.subs[s.channel] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	})
	return nil
}
