package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus(t *testing.T) {
	t.Run("delivers in publish order", func(t *testing.T) {
		bus := NewBus(zap.NewNop(), 4)

		var mu sync.Mutex
		var got []int64
		require.NoError(t, bus.Subscribe(PriceFeedProcessed, "recorder", func(ctx context.Context, ev Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev.Payload.(PriceFeedProcessedPayload).Heartbeat)
			return nil
		}))

		for i := int64(1); i <= 20; i++ {
			require.NoError(t, bus.Publish(context.Background(), Event{Kind: PriceFeedProcessed, Payload: PriceFeedProcessedPayload{Heartbeat: i}}))
		}
		bus.Close()

		require.Len(t, got, 20)
		for i, hb := range got {
			assert.Equal(t, int64(i+1), hb)
		}
	})

	t.Run("only matching kind", func(t *testing.T) {
		bus := NewBus(zap.NewNop(), 4)
		calls := 0
		require.NoError(t, bus.Subscribe(NewBlock, "blocks", func(ctx context.Context, ev Event) error {
			calls++
			return nil
		}))

		require.NoError(t, bus.Publish(context.Background(), Event{Kind: PriceFeed}))
		require.NoError(t, bus.Publish(context.Background(), Event{Kind: NewBlock, Payload: NewBlockPayload{BlockNumber: 1}}))
		bus.Close()

		assert.Equal(t, 1, calls)
	})

	t.Run("handler failures do not stop delivery", func(t *testing.T) {
		bus := NewBus(zap.NewNop(), 4)
		seen := 0
		require.NoError(t, bus.Subscribe(NewBlock, "flaky", func(ctx context.Context, ev Event) error {
			seen++
			switch ev.Payload.(NewBlockPayload).BlockNumber {
			case 1:
				panic("boom")
			case 2:
				return errors.New("failed")
			}
			return nil
		}))

		for i := uint64(1); i <= 3; i++ {
			require.NoError(t, bus.Publish(context.Background(), Event{Kind: NewBlock, Payload: NewBlockPayload{BlockNumber: i}}))
		}
		bus.Close()

		assert.Equal(t, 3, seen)
	})

	t.Run("publish honours context on a full queue", func(t *testing.T) {
		bus := NewBus(zap.NewNop(), 1)
		release := make(chan struct{})
		require.NoError(t, bus.Subscribe(PriceFeed, "slow", func(ctx context.Context, ev Event) error {
			<-release
			return nil
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		var err error
		for i := 0; i < 3 && err == nil; i++ {
			err = bus.Publish(ctx, Event{Kind: PriceFeed})
		}
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		close(release)
		bus.Close()
		assert.ErrorIs(t, bus.Publish(context.Background(), Event{Kind: PriceFeed}), ErrClosed)
		assert.ErrorIs(t, bus.Subscribe(PriceFeed, "late", nil), ErrClosed)
	})
}
