package arbitrage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"frontrunner/internal/database"
	"frontrunner/internal/divergence"
	"frontrunner/internal/logging"
	"frontrunner/internal/metrics"
	"frontrunner/internal/model"
)

// RoamParams configures the RoamStrategy.
type RoamParams struct {
	Pairs     []model.Pair
	Threshold float64
	// StartSymbol is the synth held before the first hop.
	StartSymbol string
	// PositionSize is the amount of StartSymbol held when it is sUSD.
	PositionSize float64
	Network      string
	Testing      bool
}

// RoamStrategy keeps capital in a single synth and hops to whichever synth
// shows the widest divergence spread against the one held. Only one hop is
// tracked at a time; it is closed once the target oracle has moved.
type RoamStrategy struct {
	logger *zap.Logger
	repo   database.RoamTradeRepository
	exec   Executor
	params RoamParams
	claims *ClaimTable[model.RoamTrade]
	latest atomic.Pointer[model.DivergenceSet]
	now    func() time.Time

	mu      sync.Mutex
	holding string
	tokens  float64
}

// NewRoamStrategy creates a new RoamStrategy.
func NewRoamStrategy(logger *zap.Logger, repo database.RoamTradeRepository, exec Executor, params RoamParams) *RoamStrategy {
	if params.StartSymbol == "" {
		params.StartSymbol = model.SUSD
	}
	return &RoamStrategy{
		logger:  logger.With(zap.String("strategy", "roam")),
		repo:    repo,
		exec:    exec,
		params:  params,
		claims:  NewClaimTable[model.RoamTrade](),
		now:     time.Now,
		holding: params.StartSymbol,
		tokens:  params.PositionSize,
	}
}

func (s *RoamStrategy) Name() string { return "roam" }

func (s *RoamStrategy) RelayEvent() string { return logging.RoamTradeEventHandled }

// Holding returns the synth currently held and its quantity.
func (s *RoamStrategy) Holding() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holding, s.tokens
}

// Rehydrate implements Strategy. More than one open roam trade is fatal.
func (s *RoamStrategy) Rehydrate(ctx context.Context) error {
	trades, err := s.repo.GetOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("load open roam trades: %w", err)
	}
	if len(trades) > 1 {
		return fmt.Errorf("%w: %d open roam trades", ErrDuplicateOpenTrade, len(trades))
	}
	for _, t := range trades {
		if err := s.claims.Restore(t.TargetPair(), t); err != nil {
			return err
		}
		if t.Traded && t.TradedDstTokens != nil {
			s.setHolding(t.OpportunityTargetSymbol, *t.TradedDstTokens)
		}
	}
	return nil
}

// Observe implements Strategy.
func (s *RoamStrategy) Observe(set model.DivergenceSet) {
	s.latest.Store(&set)
}

// Held implements Strategy.
func (s *RoamStrategy) Held() map[model.Pair]bool {
	return s.claims.Held()
}

// Active implements Strategy.
func (s *RoamStrategy) Active() []model.RoamTrade {
	return s.claims.Snapshot()
}

// Opportunities builds a trade candidate for every pair whose divergence
// spread against the held synth reaches the threshold, widest spread first.
// Equal spreads keep pair order.
func (s *RoamStrategy) Opportunities(set model.DivergenceSet, holding string) []model.RoamTrade {
	sourcePair, sourceIsPair := model.SynthToPair[holding]
	sourceDiv, sourceFeed, sourceOracle := 0.0, 1.0, 1.0
	if sourceIsPair {
		sourceDiv = set.OracleToFeed[sourcePair]
		sourceFeed = set.State.FeedPrices[sourcePair]
		sourceOracle = set.State.OraclePrices[sourcePair]
	}

	var out []model.RoamTrade
	for _, p := range s.params.Pairs {
		if sourceIsPair && p == sourcePair {
			continue
		}
		targetDiv, ok := set.OracleToFeed[p]
		if !ok {
			continue
		}
		spread := targetDiv - sourceDiv
		if spread < s.params.Threshold {
			continue
		}
		out = append(out, model.RoamTrade{
			Network:                              s.params.Network,
			Testing:                              s.params.Testing,
			OpportunitySourceSymbol:              holding,
			OpportunitySourceFeedPrice:           sourceFeed,
			OpportunitySourceOraclePrice:         sourceOracle,
			OpportunitySourceUSDDiffPercent:      sourceDiv,
			OpportunitySourceUSDDiffPercentHR:    divergence.HumanReadable(sourceDiv),
			OpportunityTargetSymbol:              p.Synth(),
			OpportunityTargetFeedPrice:           set.State.FeedPrices[p],
			OpportunityTargetOraclePrice:         set.State.OraclePrices[p],
			OpportunityTargetUSDDiffPercent:      targetDiv,
			OpportunityTargetUSDDiffPercentHR:    divergence.HumanReadable(targetDiv),
			OpportunitySourceTargetDiffPercent:   spread,
			OpportunitySourceTargetDiffPercentHR: divergence.HumanReadable(spread),
			OpportunityBlockNumber:               set.State.BlockNumber,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OpportunitySourceTargetDiffPercent > out[j].OpportunitySourceTargetDiffPercent
	})
	return out
}

// Open implements Strategy. Nothing is opened while a hop is tracked.
func (s *RoamStrategy) Open(ctx context.Context, set model.DivergenceSet, held map[model.Pair]bool) ([]model.RoamTrade, error) {
	if len(held) > 0 || s.claims.Len() > 0 {
		return nil, nil
	}
	holding, tokens := s.Holding()
	opportunities := s.Opportunities(set, holding)
	if len(opportunities) == 0 {
		return nil, nil
	}

	best := opportunities[0]
	pair := best.TargetPair()
	if !s.claims.TryClaim(pair) {
		return nil, nil
	}
	trade, err := s.execute(ctx, best, tokens)
	if err != nil {
		return nil, err
	}
	return []model.RoamTrade{trade}, nil
}

func (s *RoamStrategy) execute(ctx context.Context, trade model.RoamTrade, tokens float64) (model.RoamTrade, error) {
	pair := trade.TargetPair()
	log := s.logger.With(zap.String("source", trade.OpportunitySourceSymbol), zap.String("target", trade.OpportunityTargetSymbol))

	if _, err := s.repo.Create(ctx, &trade); err != nil {
		s.claims.Release(pair)
		metrics.RecordTradeFailure(s.Name(), "open")
		log.Error("Failed to put roaming trade", zap.Error(err), logging.Relay(logging.TradeFailed))
		return model.RoamTrade{}, fmt.Errorf("create roam trade: %w", err)
	}

	exec, err := s.exec.Execute(ctx, Order{
		SourceSymbol: trade.OpportunitySourceSymbol,
		DestSymbol:   trade.OpportunityTargetSymbol,
		SourceAmount: tokens,
		ExpectedRate: trade.OpportunitySourceOraclePrice / trade.OpportunityTargetOraclePrice,
	})
	if err != nil {
		trade.ClosedTrade = true
		trade.ClosedAt = model.Ptr(s.now())
		if uerr := s.repo.Update(ctx, &trade); uerr != nil {
			log.Error("failed to mark aborted roam trade", zap.String("tradeId", trade.ID), zap.Error(uerr))
		}
		s.claims.Release(pair)
		metrics.RecordTradeFailure(s.Name(), "open")
		log.Error("Failed to put roaming trade", zap.String("tradeId", trade.ID), zap.Error(err), logging.Relay(logging.TradeFailed))
		return model.RoamTrade{}, fmt.Errorf("execute roam trade: %w", err)
	}

	latest := s.latestOr(model.DivergenceSet{})
	ratio := 1.0
	if exec.SourceTokens > 0 {
		ratio = exec.DestTokens / exec.SourceTokens
	}
	trade.Traded = true
	trade.TradedTx = model.Ptr(exec.TxHash)
	trade.TradedBlockNumber = model.Ptr(blockOr(exec.BlockNumber, latest.State.BlockNumber))
	trade.TradedSourceTokens = model.Ptr(exec.SourceTokens)
	trade.TradedDstTokens = model.Ptr(exec.DestTokens)
	trade.TradedActualRatio = model.Ptr(ratio)
	trade.TradedGasSpent = model.Ptr(exec.GasUsed)
	trade.TradedAt = model.Ptr(s.now())

	s.setHolding(trade.OpportunityTargetSymbol, exec.DestTokens)
	updateErr := s.repo.Update(ctx, &trade)
	if err := s.claims.Commit(pair, trade); err != nil {
		return model.RoamTrade{}, err
	}
	if updateErr != nil {
		metrics.RecordTradeFailure(s.Name(), "persist")
		log.Error("failed to persist roam trade", zap.String("tradeId", trade.ID), zap.Error(updateErr), logging.Relay(logging.TradeFailed))
		return trade, fmt.Errorf("update roam trade: %w", updateErr)
	}

	metrics.RecordTradeOpened(s.Name())
	log.Info("roamed",
		zap.String("tradeId", trade.ID),
		zap.String("spread", trade.OpportunitySourceTargetDiffPercentHR),
	)
	return trade, nil
}

// Close implements Strategy. The tracked hop closes on a new block once the
// target oracle price has moved.
func (s *RoamStrategy) Close(ctx context.Context, set model.DivergenceSet, held map[model.Pair]bool) ([]model.RoamTrade, error) {
	var out []model.RoamTrade
	for _, t := range s.claims.Snapshot() {
		pair := t.TargetPair()
		if !held[pair] {
			continue
		}
		if set.State.BlockNumber == t.OpportunityBlockNumber {
			continue
		}
		closeOracle, ok := set.State.OraclePrices[pair]
		if !ok || closeOracle == t.OpportunityTargetOraclePrice {
			continue
		}

		closed, err := s.closeTrade(ctx, set, t)
		if err != nil {
			return out, err
		}
		out = append(out, closed)
	}
	return out, nil
}

func (s *RoamStrategy) closeTrade(ctx context.Context, set model.DivergenceSet, t model.RoamTrade) (model.RoamTrade, error) {
	targetPair := t.TargetPair()
	sourceOracle := 1.0
	if p, ok := model.SynthToPair[t.OpportunitySourceSymbol]; ok {
		sourceOracle = set.State.OraclePrices[p]
	}
	targetOracle := set.State.OraclePrices[targetPair]

	var sourceTokens, targetTokens float64
	if t.TradedSourceTokens != nil {
		sourceTokens = *t.TradedSourceTokens
	}
	if t.TradedDstTokens != nil {
		targetTokens = *t.TradedDstTokens
	}
	sourceUSD := sourceTokens * sourceOracle
	targetUSD := targetTokens * targetOracle
	var diff float64
	if sourceUSD != 0 {
		diff = divergence.Get(targetUSD, sourceUSD)
	}

	t.ClosedTrade = true
	t.ClosedAt = model.Ptr(s.now())
	t.ClosedBlockNumber = model.Ptr(set.State.BlockNumber)
	t.ClosedSourceOraclePrice = model.Ptr(sourceOracle)
	t.ClosedTargetOraclePrice = model.Ptr(targetOracle)
	t.ClosedSourceUSDValue = model.Ptr(sourceUSD)
	t.ClosedTargetUSDValue = model.Ptr(targetUSD)
	t.ClosedSourceTargetDiffPercent = model.Ptr(diff)
	t.ClosedSourceTargetDiffPercentHR = model.Ptr(divergence.HumanReadable(diff))
	t.ClosedProfitLossUSD = model.Ptr(targetUSD - sourceUSD)

	s.claims.Release(targetPair)
	metrics.RecordTradeClosed(s.Name(), "oracle_moved")

	if err := s.repo.Update(ctx, &t); err != nil {
		metrics.RecordTradeFailure(s.Name(), "persist")
		s.logger.Error("failed to persist closed roam trade", zap.String("tradeId", t.ID), zap.Error(err), logging.Relay(logging.TradeFailed))
		return t, fmt.Errorf("update closed roam trade: %w", err)
	}
	s.logger.Info("closed roam trade",
		zap.String("tradeId", t.ID),
		zap.String("diff", *t.ClosedSourceTargetDiffPercentHR),
		zap.Float64("profitLossUSD", *t.ClosedProfitLossUSD),
	)
	return t, nil
}

func (s *RoamStrategy) setHolding(symbol string, tokens float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holding = symbol
	s.tokens = tokens
}

func (s *RoamStrategy) latestOr(set model.DivergenceSet) model.DivergenceSet {
	if l := s.latest.Load(); l != nil {
		return *l
	}
	return set
}
