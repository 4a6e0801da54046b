// Package heartbeat drives the fixed-interval off-chain price refresh.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"frontrunner/internal/events"
	"frontrunner/internal/metrics"
)

// Fetcher collects the quotes of every price source.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]events.SourceQuotes, error)
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Heartbeat fetches prices on every tick and publishes them as PRICE_FEED.
// Ticks never overlap; a tick that fires while the previous one is still
// running is skipped.
type Heartbeat struct {
	logger   *zap.Logger
	fetcher  Fetcher
	bus      Publisher
	interval time.Duration
	counter  atomic.Int64

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Heartbeat.
func New(logger *zap.Logger, fetcher Fetcher, bus Publisher, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		logger:   logger.With(zap.String("component", "heartbeat")),
		fetcher:  fetcher,
		bus:      bus,
		interval: interval,
	}
}

// Count returns the number of successful beats.
func (h *Heartbeat) Count() int64 {
	return h.counter.Load()
}

// Beat runs a single tick. The counter only advances when every source
// answered; a failed tick changes nothing.
func (h *Heartbeat) Beat(ctx context.Context) error {
	quotes, err := h.fetcher.FetchAll(ctx)
	if err != nil {
		h.logger.Warn("price feed fetch failed, skipping heartbeat", zap.Int64("heartbeat", h.counter.Load()), zap.Error(err))
		return err
	}

	n := h.counter.Add(1)
	metrics.SetHeartbeat(n)

	err = h.bus.Publish(ctx, events.Event{
		Kind:    events.PriceFeed,
		Payload: events.PriceFeedPayload{Heartbeat: n, Quotes: quotes},
	})
	if err != nil {
		h.logger.Warn("publish price feed failed", zap.Int64("heartbeat", n), zap.Error(err))
		return err
	}
	return nil
}

// Start schedules Beat every interval until Stop. ctx is passed to each beat.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{h.logger}), cron.SkipIfStillRunning(cronLogger{h.logger})))
	spec := fmt.Sprintf("@every %s", h.interval)
	if _, err := c.AddFunc(spec, func() { _ = h.Beat(ctx) }); err != nil {
		return fmt.Errorf("schedule heartbeat %q: %w", spec, err)
	}
	c.Start()
	h.cron = c
	h.logger.Info("heartbeat started", zap.Duration("interval", h.interval))
	return nil
}

// Stop cancels the schedule and waits for a running beat to finish.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	h.logger.Info("heartbeat stopped", zap.Int64("heartbeat", h.counter.Load()))
}

// Started reports whether the schedule is running.
func (h *Heartbeat) Started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cron != nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
