package logging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chanAlerter chan Alert

func (c chanAlerter) Alert(_ context.Context, a Alert) error {
	c <- a
	return nil
}

func receive(t *testing.T, c chanAlerter) Alert {
	t.Helper()
	select {
	case a := <-c:
		return a
	case <-time.After(time.Second):
		t.Fatal("no alert delivered")
		return Alert{}
	}
}

func TestRelayCore(t *testing.T) {
	t.Run("forwards relay tagged entries", func(t *testing.T) {
		alerts := make(chanAlerter, 4)
		logger := zap.New(NewRelayCore(alerts, 60, time.Second)).With(zap.String("component", "engine"))

		logger.Info("Decision Making Ended", Relay(DecisionEnded), zap.Int("opened", 1))

		a := receive(t, alerts)
		assert.Equal(t, "Decision Making Ended", a.Message)
		assert.Equal(t, DecisionEnded, a.Relay)
		assert.Equal(t, "engine", a.Fields["component"])
		assert.EqualValues(t, 1, a.Fields["opened"])
		_, tagged := a.Fields[RelayKey]
		assert.False(t, tagged)
	})

	t.Run("forwards errors without a tag", func(t *testing.T) {
		alerts := make(chanAlerter, 4)
		logger := zap.New(NewRelayCore(alerts, 60, time.Second))

		logger.Error("trade failed")

		a := receive(t, alerts)
		assert.Equal(t, "error", a.Level)
		assert.Empty(t, a.Relay)
	})

	t.Run("ignores plain info entries", func(t *testing.T) {
		alerts := make(chanAlerter, 4)
		logger := zap.New(NewRelayCore(alerts, 60, time.Second))

		logger.Info("fetched prices")
		logger.Warn("source failed")

		select {
		case a := <-alerts:
			t.Fatalf("unexpected alert %+v", a)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("drops alerts over the rate", func(t *testing.T) {
		alerts := make(chanAlerter, 8)
		logger := zap.New(NewRelayCore(alerts, 2, time.Second))

		for i := 0; i < 5; i++ {
			logger.Error("boom")
		}
		receive(t, alerts)
		receive(t, alerts)
		select {
		case <-alerts:
			t.Fatal("limiter let a third alert through")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestWebhookAlerter(t *testing.T) {
	got := make(chan Alert, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		got <- a
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookAlerter(srv.URL, srv.Client()).Alert(context.Background(), Alert{Message: "hello", Relay: StayingCourse})
	require.NoError(t, err)
	assert.Equal(t, StayingCourse, (<-got).Relay)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	assert.Error(t, NewWebhookAlerter(failing.URL, nil).Alert(context.Background(), Alert{}))
}
