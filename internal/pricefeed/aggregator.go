// Package pricefeed collects off-chain prices from every source and reduces
// them to one feed price per pair.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontrunner/internal/events"
	"frontrunner/internal/exchange"
	"frontrunner/internal/metrics"
	"frontrunner/internal/model"
)

// ErrIncompleteFeed is returned when any source fails or misses a pair.
var ErrIncompleteFeed = errors.New("incomplete price feed")

// Aggregator fetches all sources with bounded fan-out. It fails closed: a
// single failing source fails the whole round.
type Aggregator struct {
	logger      *zap.Logger
	sources     []exchange.PriceSource
	pairs       []model.Pair
	concurrency int
	timeout     time.Duration
}

// NewAggregator creates a new Aggregator.
func NewAggregator(logger *zap.Logger, sources []exchange.PriceSource, pairs []model.Pair, concurrency int, timeout time.Duration) *Aggregator {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Aggregator{
		logger:      logger.With(zap.String("component", "pricefeed")),
		sources:     sources,
		pairs:       pairs,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// FetchAll returns the quotes of every source, in source order.
func (a *Aggregator) FetchAll(ctx context.Context) ([]events.SourceQuotes, error) {
	if len(a.sources) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrIncompleteFeed)
	}

	quotes := make([]events.SourceQuotes, len(a.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, src := range a.sources {
		g.Go(func() error {
			prices, err := a.fetch(gctx, src)
			if err != nil {
				metrics.RecordFetchFailure(src.Name())
				return fmt.Errorf("%w: %s: %w", ErrIncompleteFeed, src.Name(), err)
			}
			quotes[i] = events.SourceQuotes{Source: src.Name(), Prices: prices}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (a *Aggregator) fetch(ctx context.Context, src exchange.PriceSource) (map[model.Pair]float64, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	prices, err := src.FetchPrices(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range a.pairs {
		if _, ok := prices[p]; !ok {
			return nil, fmt.Errorf("missing %s", p)
		}
	}
	return prices, nil
}

// Mean reduces the quotes to the arithmetic mean of every pair.
func Mean(quotes []events.SourceQuotes, pairs []model.Pair) map[model.Pair]float64 {
	out := make(map[model.Pair]float64, len(pairs))
	for _, p := range pairs {
		var sum float64
		var n int
		for _, q := range quotes {
			if v, ok := q.Prices[p]; ok {
				sum += v
				n++
			}
		}
		if n > 0 {
			out[p] = sum / float64(n)
		}
	}
	return out
}
