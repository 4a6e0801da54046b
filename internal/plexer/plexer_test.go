package plexer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"frontrunner/internal/events"
	"frontrunner/internal/logging"
	"frontrunner/internal/model"
	"frontrunner/internal/state"
)

type fakeSubscriber struct {
	handlers map[events.Kind]events.Handler
}

func (f *fakeSubscriber) Subscribe(kind events.Kind, _ string, h events.Handler) error {
	if f.handlers == nil {
		f.handlers = map[events.Kind]events.Handler{}
	}
	f.handlers[kind] = h
	return nil
}

type recordingDecider struct {
	mu   sync.Mutex
	sets []model.DivergenceSet
	err  error
	fail bool
}

func (d *recordingDecider) Decide(_ context.Context, set model.DivergenceSet) error {
	if d.fail {
		panic("boom")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets = append(d.sets, set)
	return d.err
}

var pairs = []model.Pair{model.BTCUSD, model.ETHUSD}

func feed(hb int64, btc float64) events.Event {
	return events.Event{Kind: events.PriceFeedProcessed, Payload: events.PriceFeedProcessedPayload{
		Heartbeat: hb,
		Prices:    map[model.Pair]float64{model.BTCUSD: btc, model.ETHUSD: 3154.3},
	}}
}

func block(n uint64) events.Event {
	oracle := map[model.Pair]float64{model.BTCUSD: 45976.82, model.ETHUSD: 3158.7}
	return events.Event{Kind: events.NewBlock, Payload: events.NewBlockPayload{
		BlockNumber:  n,
		OraclePrices: oracle,
		SynthPrices:  oracle,
	}}
}

func newPlexer(t *testing.T, logger *zap.Logger, d Decider, interval int64) (*Plexer, *fakeSubscriber) {
	t.Helper()
	sub := &fakeSubscriber{}
	p, err := New(logger, sub, state.NewStore(), d, pairs, interval)
	require.NoError(t, err)
	require.Len(t, sub.handlers, 2)
	return p, sub
}

func TestPlexer(t *testing.T) {
	ctx := context.Background()

	t.Run("waits until feed and block are known", func(t *testing.T) {
		d := &recordingDecider{}
		p, sub := newPlexer(t, zap.NewNop(), d, 30)

		require.NoError(t, sub.handlers[events.PriceFeedProcessed](ctx, feed(1, 47356.1)))
		p.Wait()
		assert.Empty(t, d.sets)

		require.NoError(t, sub.handlers[events.NewBlock](ctx, block(1054365)))
		p.Wait()
		require.Len(t, d.sets, 1)

		set := d.sets[0]
		assert.Equal(t, int64(1), set.State.Heartbeat)
		assert.Equal(t, uint64(1054365), set.State.BlockNumber)
		assert.InDelta(t, 47356.1/45976.82-1, set.OracleToFeed[model.BTCUSD], 1e-12)
		assert.Len(t, set.OracleToFeed, 2)
	})

	t.Run("every later event triggers a cycle", func(t *testing.T) {
		d := &recordingDecider{}
		p, sub := newPlexer(t, zap.NewNop(), d, 30)

		require.NoError(t, sub.handlers[events.NewBlock](ctx, block(1054365)))
		require.NoError(t, sub.handlers[events.PriceFeedProcessed](ctx, feed(1, 45894.6)))
		require.NoError(t, sub.handlers[events.PriceFeedProcessed](ctx, feed(2, 47356.1)))
		require.NoError(t, sub.handlers[events.NewBlock](ctx, block(1054366)))
		p.Wait()
		assert.Len(t, d.sets, 3)
	})

	t.Run("decider failures do not escape", func(t *testing.T) {
		d := &recordingDecider{fail: true}
		p, sub := newPlexer(t, zap.NewNop(), d, 30)
		require.NoError(t, sub.handlers[events.PriceFeedProcessed](ctx, feed(1, 47356.1)))
		require.NoError(t, sub.handlers[events.NewBlock](ctx, block(1)))
		p.Wait()

		d2 := &recordingDecider{err: errors.New("db down")}
		p2, sub2 := newPlexer(t, zap.NewNop(), d2, 30)
		require.NoError(t, sub2.handlers[events.PriceFeedProcessed](ctx, feed(1, 47356.1)))
		require.NoError(t, sub2.handlers[events.NewBlock](ctx, block(1)))
		p2.Wait()
		assert.Len(t, d2.sets, 1)
	})

	t.Run("wrong payload", func(t *testing.T) {
		_, sub := newPlexer(t, zap.NewNop(), &recordingDecider{}, 30)
		assert.Error(t, sub.handlers[events.NewBlock](ctx, events.Event{Kind: events.NewBlock, Payload: "nope"}))
		assert.Error(t, sub.handlers[events.PriceFeedProcessed](ctx, events.Event{Kind: events.PriceFeedProcessed}))
	})
}

func TestPlexer_HeartbeatUpdateLog(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	p, sub := newPlexer(t, zap.New(core), &recordingDecider{}, 3)

	require.NoError(t, sub.handlers[events.NewBlock](ctx, block(1054365)))
	for hb := int64(1); hb <= 7; hb++ {
		require.NoError(t, sub.handlers[events.PriceFeedProcessed](ctx, feed(hb, 45894.6)))
		// A block within the same heartbeat does not log twice.
		require.NoError(t, sub.handlers[events.NewBlock](ctx, block(1054365+uint64(hb))))
	}
	p.Wait()

	updates := logs.FilterMessage("Heartbeat Update").All()
	require.Len(t, updates, 3)
	var beats []int64
	for _, e := range updates {
		beats = append(beats, e.ContextMap()["heartbeat"].(int64))
		assert.Equal(t, logging.HeartbeatUpdate, e.ContextMap()[logging.RelayKey])
	}
	assert.Equal(t, []int64{1, 3, 6}, beats)
}
