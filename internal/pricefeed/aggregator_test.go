package pricefeed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"frontrunner/internal/events"
	"frontrunner/internal/exchange"
	"frontrunner/internal/model"
)

type staticSource struct {
	name   string
	prices map[model.Pair]float64
	err    error
	delay  time.Duration

	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) FetchPrices(ctx context.Context) (map[model.Pair]float64, error) {
	if s.inFlight != nil {
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			p := s.peak.Load()
			if n <= p || s.peak.CompareAndSwap(p, n) {
				break
			}
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.prices, s.err
}

func fixtureSources() []exchange.PriceSource {
	return []exchange.PriceSource{
		&staticSource{name: "coinbase", prices: map[model.Pair]float64{
			model.BTCUSD: 44420.54, model.ETHUSD: 3101.06, model.LINKUSD: 24.34831, model.UNIUSD: 27.7587, model.AAVEUSD: 374.85,
		}},
		&staticSource{name: "kraken", prices: map[model.Pair]float64{
			model.BTCUSD: 44373.7, model.ETHUSD: 3100.62, model.LINKUSD: 24.33069, model.UNIUSD: 27.74, model.AAVEUSD: 374.51,
		}},
		&staticSource{name: "bitfinex", prices: map[model.Pair]float64{
			model.BTCUSD: 44331, model.ETHUSD: 3096.3, model.LINKUSD: 24.28, model.UNIUSD: 27.703, model.AAVEUSD: 374.44,
		}},
	}
}

func TestAggregator_FetchAll(t *testing.T) {
	t.Run("mean of all sources", func(t *testing.T) {
		agg := NewAggregator(zap.NewNop(), fixtureSources(), model.AllPairs, 5, time.Second)

		quotes, err := agg.FetchAll(context.Background())
		require.NoError(t, err)
		require.Len(t, quotes, 3)
		assert.Equal(t, "coinbase", quotes[0].Source)

		mean := Mean(quotes, model.AllPairs)
		assert.InDelta(t, 44375.08, mean[model.BTCUSD], 1e-9)
		assert.InDelta(t, 3099.3266666666664, mean[model.ETHUSD], 1e-9)
		assert.InDelta(t, 24.319666666666667, mean[model.LINKUSD], 1e-9)
		assert.InDelta(t, 27.7339, mean[model.UNIUSD], 1e-9)
		assert.InDelta(t, 374.6, mean[model.AAVEUSD], 1e-9)
	})

	t.Run("one failing source fails the round", func(t *testing.T) {
		sources := append(fixtureSources(), &staticSource{name: "broken", err: errors.New("503")})
		_, err := NewAggregator(zap.NewNop(), sources, model.AllPairs, 5, time.Second).FetchAll(context.Background())
		assert.ErrorIs(t, err, ErrIncompleteFeed)
		assert.ErrorContains(t, err, "broken")
	})

	t.Run("a source missing a pair fails the round", func(t *testing.T) {
		sources := append(fixtureSources(), &staticSource{name: "partial", prices: map[model.Pair]float64{model.BTCUSD: 1}})
		_, err := NewAggregator(zap.NewNop(), sources, model.AllPairs, 5, time.Second).FetchAll(context.Background())
		assert.ErrorIs(t, err, ErrIncompleteFeed)
		assert.ErrorContains(t, err, "missing ETHUSD")
	})

	t.Run("timeout fails the round", func(t *testing.T) {
		sources := append(fixtureSources(), &staticSource{name: "slow", delay: time.Second})
		_, err := NewAggregator(zap.NewNop(), sources, model.AllPairs, 5, 20*time.Millisecond).FetchAll(context.Background())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("bounded fan-out", func(t *testing.T) {
		var inFlight, peak atomic.Int32
		var sources []exchange.PriceSource
		for i := 0; i < 8; i++ {
			sources = append(sources, &staticSource{
				name:     "s",
				prices:   map[model.Pair]float64{model.BTCUSD: 1},
				delay:    10 * time.Millisecond,
				inFlight: &inFlight,
				peak:     &peak,
			})
		}
		_, err := NewAggregator(zap.NewNop(), sources, []model.Pair{model.BTCUSD}, 2, time.Second).FetchAll(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})
}

func TestProcessor(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 4)
	_, err := NewProcessor(zap.NewNop(), bus, []model.Pair{model.BTCUSD})
	require.NoError(t, err)

	got := make(chan events.PriceFeedProcessedPayload, 1)
	require.NoError(t, bus.Subscribe(events.PriceFeedProcessed, "test", func(ctx context.Context, ev events.Event) error {
		got <- ev.Payload.(events.PriceFeedProcessedPayload)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), events.Event{
		Kind: events.PriceFeed,
		Payload: events.PriceFeedPayload{Heartbeat: 4, Quotes: []events.SourceQuotes{
			{Source: "a", Prices: map[model.Pair]float64{model.BTCUSD: 100}},
			{Source: "b", Prices: map[model.Pair]float64{model.BTCUSD: 200}},
		}},
	}))

	select {
	case p := <-got:
		assert.Equal(t, int64(4), p.Heartbeat)
		assert.Equal(t, 150.0, p.Prices[model.BTCUSD])
	case <-time.After(time.Second):
		t.Fatal("no processed feed")
	}
	bus.Close()
}
