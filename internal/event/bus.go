// Package event implements the in-memory publish/subscribe pipeline that
// carries freshly collected venue snapshots from the collector to its
// consumers. Each (event kind, venue) pair is a single broadcast stream:
// one publisher, any number of subscribers, synchronous fan-out in
// subscription order, at-most-once delivery and no replay.
package event

import (
	"fmt"
	"sync"

	"coinpulse/logger"
	"coinpulse/models"
)

// Stream is a broadcast channel for one event kind. Publish delivers the
// payload to every subscriber registered at that moment, in subscription
// order. A panicking subscriber is recovered and logged so it cannot take
// down the publisher or starve later subscribers.
type Stream[T any] struct {
	name string
	mu   sync.RWMutex
	subs []func(T)
	log  *logger.Log
}

func NewStream[T any](name string) *Stream[T] {
	return &Stream[T]{
		name: name,
		log:  logger.GetLogger(),
	}
}

// Subscribe registers a handler. Handlers registered after a publish never
// see that publish.
func (s *Stream[T]) Subscribe(handler func(T)) {
	s.mu.Lock()
	s.subs = append(s.subs, handler)
	s.mu.Unlock()
}

// Publish fans the payload out to all current subscribers.
func (s *Stream[T]) Publish(payload T) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()

	for i, handler := range subs {
		s.deliver(i, handler, payload)
	}
}

func (s *Stream[T]) deliver(index int, handler func(T), payload T) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithComponent("event_bus").WithFields(logger.Fields{
				"stream":     s.name,
				"subscriber": index,
				"panic":      fmt.Sprint(r),
			}).Error("subscriber panicked, isolating failure")
		}
	}()
	handler(payload)
}

// SubscriberCount reports the number of registered subscribers.
func (s *Stream[T]) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Bus is the registry of streams, keyed by (kind, venue). Streams are
// created lazily on first use so publishers and subscribers can wire up in
// any order.
type Bus struct {
	mu     sync.Mutex
	ticks  map[string]*Stream[models.TickerSet]
	depths map[string]*Stream[models.DepthSet]
	orders map[string]*Stream[models.OrderSet]
	trends map[string]*Stream[models.TrendSet]
}

func NewBus() *Bus {
	return &Bus{
		ticks:  make(map[string]*Stream[models.TickerSet]),
		depths: make(map[string]*Stream[models.DepthSet]),
		orders: make(map[string]*Stream[models.OrderSet]),
		trends: make(map[string]*Stream[models.TrendSet]),
	}
}

// Ticks returns the ticker snapshot stream for a venue.
func (b *Bus) Ticks(venue string) *Stream[models.TickerSet] {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.ticks[venue]
	if !ok {
		s = NewStream[models.TickerSet]("tick_" + venue)
		b.ticks[venue] = s
	}
	return s
}

// Depths returns the order book depth stream for a venue.
func (b *Bus) Depths(venue string) *Stream[models.DepthSet] {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.depths[venue]
	if !ok {
		s = NewStream[models.DepthSet]("depth_" + venue)
		b.depths[venue] = s
	}
	return s
}

// Orders returns the trade order stream for a venue.
func (b *Bus) Orders(venue string) *Stream[models.OrderSet] {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.orders[venue]
	if !ok {
		s = NewStream[models.OrderSet]("order_" + venue)
		b.orders[venue] = s
	}
	return s
}

// Trends returns the trend series stream for a venue.
func (b *Bus) Trends(venue string) *Stream[models.TrendSet] {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.trends[venue]
	if !ok {
		s = NewStream[models.TrendSet]("trend_" + venue)
		b.trends[venue] = s
	}
	return s
}
