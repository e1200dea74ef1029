// Package events fans domain events out to in-process subscribers without
// blocking publishers.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"healthwatch/internal/logger"
)

type SubscriptionID string

type Handler func(Event) error

type Filter func(Event) bool

// Publisher is the outbound port used by the monitor.
type Publisher interface {
	Publish(Event)
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[SubscriptionID]*subscription
	ch          chan Event
	wg          sync.WaitGroup
	closed      bool
	log         *logger.Logger
}

type subscription struct {
	handler Handler
	filters []Filter
}

type busConfig struct {
	bufferSize  int
	workerCount int
}

type Option func(*busConfig)

func WithBufferSize(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

func WithWorkerCount(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.workerCount = n
		}
	}
}

func NewBus(log *logger.Logger, opts ...Option) *Bus {
	cfg := &busConfig{bufferSize: 1000, workerCount: 4}
	for _, opt := range opts {
		opt(cfg)
	}
	if log == nil {
		log = logger.NewNop()
	}
	b := &Bus{
		subscribers: make(map[SubscriptionID]*subscription),
		ch:          make(chan Event, cfg.bufferSize),
		log:         log,
	}
	for i := 0; i < cfg.workerCount; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Publish enqueues e. A full buffer or a closed bus drops the event.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.log.Warn("event bus closed, dropping event", "type", e.Type, "event_id", e.ID)
		return
	}
	select {
	case b.ch <- e:
	default:
		b.log.Warn("event buffer full, dropping event", "type", e.Type, "event_id", e.ID)
	}
}

func (b *Bus) Subscribe(h Handler, filters ...Filter) (SubscriptionID, error) {
	if h == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", fmt.Errorf("event bus is closed")
	}
	id := SubscriptionID(uuid.NewString())
	b.subscribers[id] = &subscription{handler: h, filters: filters}
	return id, nil
}

func (b *Bus) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[id]; !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subscribers, id)
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for e := range b.ch {
		b.dispatch(e)
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if !matches(s.filters, e) {
			continue
		}
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "type", e.Type, "panic", r)
		}
	}()
	if err := s.handler(e); err != nil {
		b.log.Warn("event handler failed", "type", e.Type, "err", err)
	}
}

func matches(filters []Filter, e Event) bool {
	for _, f := range filters {
		if !f(e) {
			return false
		}
	}
	return true
}
