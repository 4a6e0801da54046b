// Package plexer joins feed and block events into divergence sets and hands
// them to the decision engine.
package plexer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"frontrunner/internal/divergence"
	"frontrunner/internal/events"
	"frontrunner/internal/logging"
	"frontrunner/internal/metrics"
	"frontrunner/internal/model"
	"frontrunner/internal/state"
)

// Decider runs a decision cycle for a divergence set.
type Decider interface {
	Decide(ctx context.Context, set model.DivergenceSet) error
}

// Subscriber registers event handlers.
type Subscriber interface {
	Subscribe(kind events.Kind, name string, h events.Handler) error
}

// Plexer is the only writer of the state store.
type Plexer struct {
	logger      *zap.Logger
	store       *state.Store
	decider     Decider
	pairs       []model.Pair
	logInterval int64

	mu         sync.Mutex
	lastLogged int64

	wg sync.WaitGroup
}

// New creates a Plexer and subscribes it to feed and block events.
// logInterval is the number of heartbeats between "Heartbeat Update" logs.
func New(logger *zap.Logger, bus Subscriber, store *state.Store, decider Decider, pairs []model.Pair, logInterval int64) (*Plexer, error) {
	p := &Plexer{
		logger:      logger.With(zap.String("component", "plexer")),
		store:       store,
		decider:     decider,
		pairs:       pairs,
		logInterval: logInterval,
	}
	if err := bus.Subscribe(events.PriceFeedProcessed, "plexer_feed", p.handleFeed); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(events.NewBlock, "plexer_block", p.handleBlock); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plexer) handleFeed(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.PriceFeedProcessedPayload)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	p.store.ApplyFeed(payload.Heartbeat, payload.Prices)
	p.evaluate(ctx)
	return nil
}

func (p *Plexer) handleBlock(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.NewBlockPayload)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	p.store.ApplyBlock(payload.BlockNumber, payload.OraclePrices, payload.SynthPrices)
	p.evaluate(ctx)
	return nil
}

func (p *Plexer) evaluate(ctx context.Context) {
	snap := p.store.Snapshot()
	if !state.Ready(snap, p.pairs) {
		return
	}
	set := divergence.NewSet(snap, p.pairs)
	for pair, d := range set.OracleToFeed {
		metrics.SetDivergence(string(pair), d)
	}
	p.logUpdate(set)
	p.dispatch(context.WithoutCancel(ctx), set)
}

func (p *Plexer) logUpdate(set model.DivergenceSet) {
	hb := set.State.Heartbeat
	p.mu.Lock()
	first := p.lastLogged == 0
	due := hb != p.lastLogged && (first || (p.logInterval > 0 && hb%p.logInterval == 0))
	if due {
		p.lastLogged = hb
	}
	p.mu.Unlock()
	if !due {
		return
	}
	p.logger.Info("Heartbeat Update",
		logging.Relay(logging.HeartbeatUpdate),
		zap.Int64("heartbeat", hb),
		zap.Uint64("blockNumber", set.State.BlockNumber),
		zap.Any("oracleToFeed", divergence.HumanReadableSet(set.OracleToFeed)),
	)
}

// dispatch runs the decider without waiting for it.
func (p *Plexer) dispatch(ctx context.Context, set model.DivergenceSet) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("decision cycle panicked", zap.Any("panic", r), zap.Int64("heartbeat", set.State.Heartbeat))
			}
		}()
		if err := p.decider.Decide(ctx, set); err != nil {
			p.logger.Error("decision cycle failed", zap.Error(err), zap.Int64("heartbeat", set.State.Heartbeat))
		}
	}()
}

// Wait blocks until every dispatched decision cycle has returned.
func (p *Plexer) Wait() {
	p.wg.Wait()
}
