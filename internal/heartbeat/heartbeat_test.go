package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"frontrunner/internal/events"
	"frontrunner/internal/model"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchAll(ctx context.Context) ([]events.SourceQuotes, error) {
	args := m.Called(ctx)
	quotes, _ := args.Get(0).([]events.SourceQuotes)
	return quotes, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

var quotes = []events.SourceQuotes{{Source: "kraken", Prices: map[model.Pair]float64{model.BTCUSD: 44373.7}}}

func TestHeartbeat_Beat(t *testing.T) {
	ctx := context.Background()

	t.Run("success advances counter and publishes", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("FetchAll", mock.Anything).Return(quotes, nil).Twice()
		pub := &recordingPublisher{}
		h := New(zap.NewNop(), fetcher, pub, time.Second)

		require.NoError(t, h.Beat(ctx))
		require.NoError(t, h.Beat(ctx))

		assert.Equal(t, int64(2), h.Count())
		require.Equal(t, 2, pub.len())
		assert.Equal(t, events.PriceFeed, pub.events[1].Kind)
		assert.Equal(t, int64(2), pub.events[1].Payload.(events.PriceFeedPayload).Heartbeat)
		fetcher.AssertExpectations(t)
	})

	t.Run("failure skips without advancing", func(t *testing.T) {
		fetcher := new(MockFetcher)
		fetcher.On("FetchAll", mock.Anything).Return(nil, errors.New("timeout")).Once()
		pub := &recordingPublisher{}
		h := New(zap.NewNop(), fetcher, pub, time.Second)

		assert.Error(t, h.Beat(ctx))
		assert.Equal(t, int64(0), h.Count())
		assert.Equal(t, 0, pub.len())
	})
}

func TestHeartbeat_StartStop(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("FetchAll", mock.Anything).Return(quotes, nil)
	pub := &recordingPublisher{}
	h := New(zap.NewNop(), fetcher, pub, time.Second)

	require.NoError(t, h.Start(context.Background()))
	assert.True(t, h.Started())

	assert.Eventually(t, func() bool { return pub.len() >= 1 }, 3*time.Second, 50*time.Millisecond)

	h.Stop()
	assert.False(t, h.Started())
	n := pub.len()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, n, pub.len(), "no beats after Stop")
}
