package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontrunner/internal/database"
	"frontrunner/internal/divergence"
	"frontrunner/internal/logging"
	"frontrunner/internal/metrics"
	"frontrunner/internal/model"
)

// OpenCloseParams configures the OpenCloseStrategy.
type OpenCloseParams struct {
	Pairs            []model.Pair
	Threshold        Threshold
	PositionSize     float64
	SourceSymbol     string
	Network          string
	Testing          bool
	CloseConcurrency int
}

// OpenCloseStrategy buys a pair's synth when its oracle runs ahead of the
// feed and sells it back once the oracle has caught up.
type OpenCloseStrategy struct {
	logger *zap.Logger
	repo   database.TradeRepository
	exec   Executor
	params OpenCloseParams
	claims *ClaimTable[model.Trade]
	latest atomic.Pointer[model.DivergenceSet]
	now    func() time.Time
}

// NewOpenCloseStrategy creates a new OpenCloseStrategy.
func NewOpenCloseStrategy(logger *zap.Logger, repo database.TradeRepository, exec Executor, params OpenCloseParams) *OpenCloseStrategy {
	if params.CloseConcurrency <= 0 {
		params.CloseConcurrency = 5
	}
	if params.SourceSymbol == "" {
		params.SourceSymbol = model.SUSD
	}
	return &OpenCloseStrategy{
		logger: logger.With(zap.String("strategy", "open_close")),
		repo:   repo,
		exec:   exec,
		params: params,
		claims: NewClaimTable[model.Trade](),
		now:    time.Now,
	}
}

func (s *OpenCloseStrategy) Name() string { return "open_close" }

func (s *OpenCloseStrategy) RelayEvent() string { return logging.DecisionEnded }

// Rehydrate implements Strategy.
func (s *OpenCloseStrategy) Rehydrate(ctx context.Context) error {
	trades, err := s.repo.GetOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	for _, t := range trades {
		if err := s.claims.Restore(t.Pair, t); err != nil {
			return err
		}
	}
	return nil
}

// Observe implements Strategy.
func (s *OpenCloseStrategy) Observe(set model.DivergenceSet) {
	s.latest.Store(&set)
}

// Held implements Strategy.
func (s *OpenCloseStrategy) Held() map[model.Pair]bool {
	return s.claims.Held()
}

// Active implements Strategy.
func (s *OpenCloseStrategy) Active() []model.Trade {
	return s.claims.Snapshot()
}

// State exposes the claim state of a pair.
func (s *OpenCloseStrategy) State(p model.Pair) ClaimState {
	return s.claims.State(p)
}

// Candidate is a pair whose divergence reached the threshold.
type Candidate struct {
	Pair       model.Pair
	Divergence float64
}

// Opportunities returns the free pairs over threshold, best first. Equal
// divergences keep pair order.
func (s *OpenCloseStrategy) Opportunities(set model.DivergenceSet, held map[model.Pair]bool) []Candidate {
	var out []Candidate
	for _, p := range s.params.Pairs {
		if held[p] {
			continue
		}
		d, ok := set.OracleToFeed[p]
		if !ok || !exceeds(s.params.Threshold, p, d) {
			continue
		}
		out = append(out, Candidate{Pair: p, Divergence: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Divergence > out[j].Divergence })
	return out
}

// Open implements Strategy. At most one trade is opened per cycle.
func (s *OpenCloseStrategy) Open(ctx context.Context, set model.DivergenceSet, held map[model.Pair]bool) ([]model.Trade, error) {
	for _, c := range s.Opportunities(set, held) {
		if !s.claims.TryClaim(c.Pair) {
			continue
		}
		trade, err := s.openTrade(ctx, set, c.Pair)
		if err != nil {
			if trade.Traded {
				return []model.Trade{trade}, err
			}
			return nil, err
		}
		return []model.Trade{trade}, nil
	}
	return nil, nil
}

func (s *OpenCloseStrategy) openTrade(ctx context.Context, set model.DivergenceSet, pair model.Pair) (model.Trade, error) {
	log := s.logger.With(zap.String("pair", string(pair)))

	trade := model.Trade{
		Pair:                   pair,
		Network:                s.params.Network,
		Testing:                s.params.Testing,
		OpportunityFeedPrice:   set.State.FeedPrices[pair],
		OpportunityOraclePrice: set.State.OraclePrices[pair],
		OpportunityBlockNumber: set.State.BlockNumber,
	}
	if _, err := s.repo.Create(ctx, &trade); err != nil {
		s.claims.Release(pair)
		metrics.RecordTradeFailure(s.Name(), "open")
		log.Error("failed to create trade record", zap.Error(err), logging.Relay(logging.TradeFailed))
		return model.Trade{}, fmt.Errorf("create trade %s: %w", pair, err)
	}

	oracle := set.State.OraclePrices[pair]
	exec, err := s.exec.Execute(ctx, Order{
		SourceSymbol: s.params.SourceSymbol,
		DestSymbol:   pair.Synth(),
		SourceAmount: s.params.PositionSize,
		ExpectedRate: 1 / oracle,
	})
	if err != nil {
		s.abort(ctx, &trade)
		metrics.RecordTradeFailure(s.Name(), "open")
		log.Error("failed to execute trade", zap.String("tradeId", trade.ID), zap.Error(err), logging.Relay(logging.TradeFailed))
		return model.Trade{}, fmt.Errorf("execute trade %s: %w", pair, err)
	}

	// Prices may have moved while the trade was in flight.
	latest := s.latestOr(set)
	trade.Traded = true
	trade.TradedFeedPrice = model.Ptr(latest.State.FeedPrices[pair])
	trade.TradedOraclePrice = model.Ptr(latest.State.OraclePrices[pair])
	trade.TradedProjectedPercent = model.Ptr(latest.OracleToFeed[pair])
	trade.TradedProjectedPercentHR = model.Ptr(divergence.HumanReadable(latest.OracleToFeed[pair]))
	trade.TradedBlockNumber = model.Ptr(blockOr(exec.BlockNumber, latest.State.BlockNumber))
	trade.TradedTx = model.Ptr(exec.TxHash)
	trade.TradedSourceTokens = model.Ptr(exec.SourceTokens)
	trade.TradedSourceTokenSymbol = model.Ptr(s.params.SourceSymbol)
	trade.TradedDstTokens = model.Ptr(exec.DestTokens)
	trade.TradedDstTokenSymbol = model.Ptr(pair.Synth())
	trade.TradedGasSpent = model.Ptr(exec.GasUsed)

	// The position exists on chain now, so it stays committed even if
	// persisting it fails.
	updateErr := s.repo.Update(ctx, &trade)
	if err := s.claims.Commit(pair, trade); err != nil {
		return model.Trade{}, err
	}
	if updateErr != nil {
		metrics.RecordTradeFailure(s.Name(), "persist")
		log.Error("failed to persist traded trade", zap.String("tradeId", trade.ID), zap.Error(updateErr), logging.Relay(logging.TradeFailed))
		return trade, fmt.Errorf("update trade %s: %w", pair, updateErr)
	}

	metrics.RecordTradeOpened(s.Name())
	log.Info("opened trade",
		zap.String("tradeId", trade.ID),
		zap.Float64("divergence", set.OracleToFeed[pair]),
		zap.String("tx", exec.TxHash),
	)
	return trade, nil
}

// abort closes a record whose trade never executed and frees the pair.
func (s *OpenCloseStrategy) abort(ctx context.Context, trade *model.Trade) {
	defer s.claims.Release(trade.Pair)
	trade.ClosedTrade = true
	trade.ClosedAt = model.Ptr(s.now())
	if err := s.repo.Update(ctx, trade); err != nil {
		s.logger.Error("failed to mark aborted trade", zap.String("tradeId", trade.ID), zap.Error(err))
	}
}

// Close implements Strategy. Open trades are checked concurrently.
func (s *OpenCloseStrategy) Close(ctx context.Context, set model.DivergenceSet, held map[model.Pair]bool) ([]model.Trade, error) {
	var open []model.Trade
	for _, t := range s.claims.Snapshot() {
		if held[t.Pair] {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	closed := make(map[model.Pair]model.Trade, len(open))
	var errs []error

	g := new(errgroup.Group)
	g.SetLimit(s.params.CloseConcurrency)
	for _, t := range open {
		g.Go(func() error {
			c, ok, err := s.checkCloseTrade(ctx, set, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if ok {
				closed[t.Pair] = c
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Trade, 0, len(closed))
	for _, t := range open {
		if c, ok := closed[t.Pair]; ok {
			out = append(out, c)
		}
	}
	return out, errors.Join(errs...)
}

// checkCloseTrade closes t unless it is still in flight and on track. Both the
// move check and the P/L base use the oracle price of the opportunity.
func (s *OpenCloseStrategy) checkCloseTrade(ctx context.Context, set model.DivergenceSet, t model.Trade) (model.Trade, bool, error) {
	pair := t.Pair
	sameBlock := set.State.BlockNumber == t.OpportunityBlockNumber
	unchanged := set.State.OraclePrices[pair] == t.OpportunityOraclePrice
	if !sameBlock && !unchanged {
		return s.closeTrade(ctx, set, t, false)
	}

	d := set.OracleToFeed[pair]
	if d >= 0 {
		s.logger.Info("Staying the course on open trade",
			zap.String("pair", string(pair)),
			zap.String("divergence", divergence.HumanReadable(d)),
			logging.Relay(logging.StayingCourse),
		)
		return model.Trade{}, false, nil
	}

	s.logger.Info("Negative divergence, cutting losses",
		zap.String("pair", string(pair)),
		zap.String("divergence", divergence.HumanReadable(d)),
		logging.Relay(logging.CuttingLosses),
	)
	return s.closeTrade(ctx, set, t, true)
}

func (s *OpenCloseStrategy) closeTrade(ctx context.Context, set model.DivergenceSet, t model.Trade, cutLosses bool) (model.Trade, bool, error) {
	pair := t.Pair
	log := s.logger.With(zap.String("pair", string(pair)), zap.String("tradeId", t.ID))

	openPrice := t.OpportunityOraclePrice
	closePrice := set.State.OraclePrices[pair]
	pct := divergence.Get(closePrice, openPrice)

	amount := s.params.PositionSize
	if t.TradedDstTokens != nil {
		amount = *t.TradedDstTokens
	}
	exec, err := s.exec.Execute(ctx, Order{
		SourceSymbol: pair.Synth(),
		DestSymbol:   s.params.SourceSymbol,
		SourceAmount: amount,
		ExpectedRate: closePrice,
	})
	if err != nil {
		metrics.RecordTradeFailure(s.Name(), "close")
		log.Error("failed to execute closing trade", zap.Error(err), logging.Relay(logging.TradeFailed))
		return model.Trade{}, false, fmt.Errorf("close trade %s: %w", pair, err)
	}

	position := s.params.PositionSize
	if t.TradedSourceTokens != nil {
		position = *t.TradedSourceTokens
	}

	t.ClosedTrade = true
	t.ClosedAt = model.Ptr(s.now())
	t.ClosedTx = model.Ptr(exec.TxHash)
	t.ClosedPriceDiff = model.Ptr(closePrice - openPrice)
	t.ClosedProfitLossPercent = model.Ptr(pct)
	t.ClosedProfitLossPercentHR = model.Ptr(divergence.HumanReadable(pct))
	t.ClosedProfitLoss = model.Ptr(pct * position)
	t.ClosedFeedPrice = model.Ptr(set.State.FeedPrices[pair])
	t.ClosedOraclePrice = model.Ptr(closePrice)
	t.ClosedBlockNumber = model.Ptr(blockOr(exec.BlockNumber, set.State.BlockNumber))
	t.ClosedCutLosses = cutLosses
	t.ClosedSourceTokens = model.Ptr(exec.SourceTokens)
	t.ClosedSourceTokenSymbol = model.Ptr(pair.Synth())
	t.ClosedDstTokens = model.Ptr(exec.DestTokens)
	t.ClosedDstTokenSymbol = model.Ptr(s.params.SourceSymbol)
	t.ClosedGasSpent = model.Ptr(exec.GasUsed)

	// The synth is sold at this point; the pair is free whatever storage says.
	s.claims.Release(pair)
	reason := "oracle_moved"
	if cutLosses {
		reason = "cut_losses"
	}
	metrics.RecordTradeClosed(s.Name(), reason)

	if err := s.repo.Update(ctx, &t); err != nil {
		metrics.RecordTradeFailure(s.Name(), "persist")
		log.Error("failed to persist closed trade", zap.Error(err), logging.Relay(logging.TradeFailed))
		return t, true, fmt.Errorf("update closed trade %s: %w", pair, err)
	}

	log.Info("closed trade",
		zap.String("profitLossPercent", *t.ClosedProfitLossPercentHR),
		zap.Bool("cutLosses", cutLosses),
	)
	return t, true, nil
}

func (s *OpenCloseStrategy) latestOr(set model.DivergenceSet) model.DivergenceSet {
	if l := s.latest.Load(); l != nil {
		return *l
	}
	return set
}

func blockOr(block, fallback uint64) uint64 {
	if block > 0 {
		return block
	}
	return fallback
}
