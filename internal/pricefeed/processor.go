package pricefeed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"frontrunner/internal/events"
	"frontrunner/internal/model"
)

// Processor turns raw PRICE_FEED events into PRICE_FEED_PROCESSED events
// carrying one mean price per pair.
type Processor struct {
	logger *zap.Logger
	bus    *events.Bus
	pairs  []model.Pair
}

// NewProcessor creates a Processor and subscribes it to the bus.
func NewProcessor(logger *zap.Logger, bus *events.Bus, pairs []model.Pair) (*Processor, error) {
	p := &Processor{
		logger: logger.With(zap.String("component", "pricefeed_processor")),
		bus:    bus,
		pairs:  pairs,
	}
	if err := bus.Subscribe(events.PriceFeed, "pricefeed_processor", p.handle); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Processor) handle(ctx context.Context, ev events.Event) error {
	payload, ok := ev.Payload.(events.PriceFeedPayload)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Kind, ev.Payload)
	}
	prices := Mean(payload.Quotes, p.pairs)
	p.logger.Debug("processed price feed", zap.Int64("heartbeat", payload.Heartbeat), zap.Any("prices", prices))

	return p.bus.Publish(ctx, events.Event{
		Kind: events.PriceFeedProcessed,
		Payload: events.PriceFeedProcessedPayload{
			Heartbeat: payload.Heartbeat,
			Prices:    prices,
		},
	})
}
