// Package events is the in-process publish/subscribe bus that carries price
// and block signals between components.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"frontrunner/internal/model"
)

// Kind names an event type.
type Kind string

const (
	PriceFeed          Kind = "PRICE_FEED"
	PriceFeedProcessed Kind = "PRICE_FEED_PROCESSED"
	NewBlock           Kind = "NEW_BLOCK"
	BitfinexTrade      Kind = "BITFINEX_TRADE"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus closed")

// SourceQuotes are the prices a single source reported on one heartbeat.
type SourceQuotes struct {
	Source string
	Prices map[model.Pair]float64
}

// PriceFeedPayload carries the raw per-source quotes of one heartbeat.
type PriceFeedPayload struct {
	Heartbeat int64
	Quotes    []SourceQuotes
}

// PriceFeedProcessedPayload carries the aggregated feed prices of one heartbeat.
type PriceFeedProcessedPayload struct {
	Heartbeat int64
	Prices    map[model.Pair]float64
}

// NewBlockPayload carries on-chain prices read at a block.
type NewBlockPayload struct {
	BlockNumber  uint64
	OraclePrices map[model.Pair]float64
	SynthPrices  map[model.Pair]float64
}

// Event is a single published signal. Payload type depends on Kind.
type Event struct {
	Kind    Kind
	Payload any
}

// Handler processes one event. Returned errors are logged.
type Handler func(ctx context.Context, ev Event) error

type subscriber struct {
	name    string
	kind    Kind
	handler Handler
	queue   chan Event
}

// Bus delivers events to subscribers. Each subscriber has its own goroutine
// and queue, so it sees events of its kind in publish order and a slow
// subscriber does not hold up the others.
type Bus struct {
	logger    *zap.Logger
	queueSize int

	mu     sync.RWMutex
	subs   map[Kind][]*subscriber
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBus creates a Bus. queueSize bounds each subscriber's backlog.
func NewBus(logger *zap.Logger, queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		logger:    logger.With(zap.String("component", "events")),
		queueSize: queueSize,
		subs:      make(map[Kind][]*subscriber),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Subscribe registers h for events of kind. It must be called before the
// events it should see are published.
func (b *Bus) Subscribe(kind Kind, name string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	s := &subscriber{name: name, kind: kind, handler: h, queue: make(chan Event, b.queueSize)}
	b.subs[kind] = append(b.subs[kind], s)

	b.wg.Add(1)
	go b.run(s)
	return nil
}

// Publish enqueues ev for every subscriber of its kind. It blocks only while
// a subscriber queue is full, until ctx is done.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for _, s := range b.subs[ev.Kind] {
		select {
		case s.queue <- ev:
		case <-ctx.Done():
			return fmt.Errorf("publish %s to %s: %w", ev.Kind, s.name, ctx.Err())
		}
	}
	return nil
}

// Close stops accepting events, lets subscribers drain their queues and
// waits for them to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			close(s.queue)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.cancel()
}

func (b *Bus) run(s *subscriber) {
	defer b.wg.Done()
	for ev := range s.queue {
		b.dispatch(s, ev)
	}
}

func (b *Bus) dispatch(s *subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("subscriber", s.name),
				zap.String("kind", string(ev.Kind)),
				zap.Any("panic", r),
			)
		}
	}()
	if err := s.handler(b.ctx, ev); err != nil {
		b.logger.Warn("event handler failed",
			zap.String("subscriber", s.name),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
