package chain

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"frontrunner/internal/events"
	"frontrunner/internal/metrics"
	"frontrunner/internal/model"
)

// PriceReader reads the oracle price of every pair at a block.
type PriceReader interface {
	QueryAll(ctx context.Context, block uint64, pairs []model.Pair) (map[model.Pair]float64, error)
}

// RateReader reads the synth rate of every pair at a block.
type RateReader interface {
	Rates(ctx context.Context, block uint64, pairs []model.Pair) (map[model.Pair]float64, error)
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// NewBlockPublisher reads on-chain prices for every new block and publishes
// them as NEW_BLOCK. A block whose prices cannot be read is skipped.
type NewBlockPublisher struct {
	logger *zap.Logger
	oracle PriceReader
	rates  RateReader
	bus    Publisher
	pairs  []model.Pair
}

// NewNewBlockPublisher creates a publisher. rates may be nil, in which case
// synth prices mirror the oracle prices.
func NewNewBlockPublisher(logger *zap.Logger, oracle PriceReader, rates RateReader, bus Publisher, pairs []model.Pair) *NewBlockPublisher {
	return &NewBlockPublisher{
		logger: logger.With(zap.String("component", "block_publisher")),
		oracle: oracle,
		rates:  rates,
		bus:    bus,
		pairs:  pairs,
	}
}

// HandleBlock implements BlockHandler.
func (p *NewBlockPublisher) HandleBlock(ctx context.Context, number uint64) error {
	oracle, err := p.oracle.QueryAll(ctx, number, p.pairs)
	if err != nil {
		return fmt.Errorf("read oracle prices: %w", err)
	}
	synth := maps.Clone(oracle)
	if p.rates != nil {
		if synth, err = p.rates.Rates(ctx, number, p.pairs); err != nil {
			return fmt.Errorf("read synth rates: %w", err)
		}
	}

	metrics.SetBlockNumber(number)
	p.logger.Debug("new block", zap.Uint64("block", number))
	return p.bus.Publish(ctx, events.Event{
		Kind: events.NewBlock,
		Payload: events.NewBlockPayload{
			BlockNumber:  number,
			OraclePrices: oracle,
			SynthPrices:  synth,
		},
	})
}
