package arbitrage

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontrunner/internal/logging"
	"frontrunner/internal/metrics"
	"frontrunner/internal/model"
)

// Result holds the trades a decision cycle opened and closed. The slices are
// never nil.
type Result[T any] struct {
	OpenedTrades []T `json:"openedTrades"`
	ClosedTrades []T `json:"closedTrades"`
}

// Empty reports whether the cycle did nothing.
func (r Result[T]) Empty() bool {
	return len(r.OpenedTrades) == 0 && len(r.ClosedTrades) == 0
}

// Strategy is a trading policy driven by the Engine. Open and Close of one
// cycle run concurrently; held is the set of pairs occupied when the cycle
// started, so Open skips them and Close only looks at them.
type Strategy[T any] interface {
	Name() string
	// RelayEvent tags the end-of-cycle log entry.
	RelayEvent() string
	// Rehydrate loads the open trades from storage. Duplicates are fatal.
	Rehydrate(ctx context.Context) error
	// Observe is called with every divergence set, including the ones of
	// cycles that were skipped.
	Observe(set model.DivergenceSet)
	Held() map[model.Pair]bool
	Open(ctx context.Context, set model.DivergenceSet, held map[model.Pair]bool) ([]T, error)
	Close(ctx context.Context, set model.DivergenceSet, held map[model.Pair]bool) ([]T, error)
	Active() []T
}

// Engine runs decision cycles of a Strategy, one at a time.
type Engine[T any] struct {
	logger   *zap.Logger
	strategy Strategy[T]
	running  atomic.Bool
}

// NewEngine creates a new Engine.
func NewEngine[T any](logger *zap.Logger, strategy Strategy[T]) *Engine[T] {
	return &Engine[T]{
		logger:   logger.With(zap.String("component", "engine"), zap.String("strategy", strategy.Name())),
		strategy: strategy,
	}
}

// Rehydrate loads the strategy's open trades. Call it once before the first
// cycle.
func (e *Engine[T]) Rehydrate(ctx context.Context) error {
	if err := e.strategy.Rehydrate(ctx); err != nil {
		return err
	}
	e.logger.Info("rehydrated open trades", zap.Int("count", len(e.strategy.Active())))
	return nil
}

// DetermineAction runs one decision cycle. If a cycle is already running it
// returns an empty result immediately and changes nothing.
func (e *Engine[T]) DetermineAction(ctx context.Context, set model.DivergenceSet) (Result[T], error) {
	e.strategy.Observe(set)

	res := Result[T]{OpenedTrades: []T{}, ClosedTrades: []T{}}
	if !e.running.CompareAndSwap(false, true) {
		metrics.RecordDecisionSkipped(e.strategy.Name())
		return res, nil
	}
	defer e.running.Store(false)

	start := time.Now()
	held := e.strategy.Held()

	var opened, closed []T
	var g errgroup.Group
	g.Go(func() error {
		var err error
		opened, err = e.strategy.Open(ctx, set, held)
		return err
	})
	g.Go(func() error {
		var err error
		closed, err = e.strategy.Close(ctx, set, held)
		return err
	})
	err := g.Wait()
	metrics.RecordDecision(e.strategy.Name(), time.Since(start), err)

	res.OpenedTrades = append(res.OpenedTrades, opened...)
	res.ClosedTrades = append(res.ClosedTrades, closed...)

	if !res.Empty() {
		e.logger.Info("Decision Making Ended",
			logging.Relay(e.strategy.RelayEvent()),
			zap.Any("openedTrades", res.OpenedTrades),
			zap.Any("closedTrades", res.ClosedTrades),
			zap.Any("divergences", set),
		)
	}
	return res, err
}

// Decide runs a cycle and only reports its error.
func (e *Engine[T]) Decide(ctx context.Context, set model.DivergenceSet) error {
	_, err := e.DetermineAction(ctx, set)
	return err
}

// Running reports whether a cycle is in flight.
func (e *Engine[T]) Running() bool {
	return e.running.Load()
}

// ActiveTrades returns the open trades for inspection.
func (e *Engine[T]) ActiveTrades() any {
	return e.strategy.Active()
}
