package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontrunner/internal/config"
	"frontrunner/internal/model"
)

// ErrUnknownPair is returned for pairs without a configured contract.
var ErrUnknownPair = errors.New("no contract configured for pair")

type aggregator struct {
	contract *bind.BoundContract
	decimals int32
}

// OracleReader reads Chainlink aggregator prices.
type OracleReader struct {
	logger      *zap.Logger
	aggregators map[model.Pair]aggregator
	concurrency int
}

// NewOracleReader binds one aggregator per pair.
func NewOracleReader(logger *zap.Logger, caller bind.ContractCaller, cfg config.ChainConfig, pairs []model.Pair, concurrency int) (*OracleReader, error) {
	r := &OracleReader{
		logger:      logger.With(zap.String("component", "oracle")),
		aggregators: make(map[model.Pair]aggregator, len(pairs)),
		concurrency: concurrency,
	}
	for _, p := range pairs {
		o, ok := cfg.Oracle(p)
		if !ok || !common.IsHexAddress(o.Address) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPair, p)
		}
		decimals := o.Decimals
		if decimals == 0 {
			decimals = 8
		}
		r.aggregators[p] = aggregator{
			contract: bind.NewBoundContract(common.HexToAddress(o.Address), aggregatorABI, caller, nil, nil),
			decimals: decimals,
		}
	}
	return r, nil
}

// QueryPrice returns the answer of the pair's aggregator as of block. Block 0
// reads the latest state.
func (r *OracleReader) QueryPrice(ctx context.Context, block uint64, p model.Pair) (float64, error) {
	agg, ok := r.aggregators[p]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPair, p)
	}
	var out []interface{}
	if err := agg.contract.Call(callOpts(ctx, block), &out, "latestRoundData"); err != nil {
		return 0, fmt.Errorf("latestRoundData %s: %w", p, err)
	}
	if len(out) < 2 {
		return 0, fmt.Errorf("latestRoundData %s: unexpected output", p)
	}
	answer, ok := out[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return 0, fmt.Errorf("latestRoundData %s: invalid answer %v", p, out[1])
	}
	price, _ := decimal.NewFromBigInt(answer, -agg.decimals).Float64()
	return price, nil
}

// QueryAll reads every pair. Any failure fails the whole read.
func (r *OracleReader) QueryAll(ctx context.Context, block uint64, pairs []model.Pair) (map[model.Pair]float64, error) {
	return queryAll(ctx, block, pairs, r.concurrency, r.QueryPrice)
}

func callOpts(ctx context.Context, block uint64) *bind.CallOpts {
	opts := &bind.CallOpts{Context: ctx}
	if block > 0 {
		opts.BlockNumber = new(big.Int).SetUint64(block)
	}
	return opts
}

func queryAll(ctx context.Context, block uint64, pairs []model.Pair, limit int, query func(context.Context, uint64, model.Pair) (float64, error)) (map[model.Pair]float64, error) {
	var mu sync.Mutex
	prices := make(map[model.Pair]float64, len(pairs))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, p := range pairs {
		g.Go(func() error {
			price, err := query(ctx, block, p)
			if err != nil {
				return err
			}
			mu.Lock()
			prices[p] = price
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return prices, nil
}
