package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"frontrunner/internal/model"
)

const synthDecimals = 18

// SynthRates reads synth prices from the Synthetix ExchangeRates contract.
type SynthRates struct {
	contract    *bind.BoundContract
	concurrency int
}

// NewSynthRates binds the ExchangeRates contract at address.
func NewSynthRates(caller bind.ContractCaller, address string, concurrency int) (*SynthRates, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid exchange rates address %q", address)
	}
	return &SynthRates{
		contract:    bind.NewBoundContract(common.HexToAddress(address), exchangeRatesABI, caller, nil, nil),
		concurrency: concurrency,
	}, nil
}

// Rate returns the USD rate of the pair's synth as of block.
func (s *SynthRates) Rate(ctx context.Context, block uint64, p model.Pair) (float64, error) {
	var out []interface{}
	if err := s.contract.Call(callOpts(ctx, block), &out, "rateForCurrency", currencyKey(p.Synth())); err != nil {
		return 0, fmt.Errorf("rateForCurrency %s: %w", p.Synth(), err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("rateForCurrency %s: unexpected output", p.Synth())
	}
	rate, ok := out[0].(*big.Int)
	if !ok || rate.Sign() <= 0 {
		return 0, fmt.Errorf("rateForCurrency %s: invalid rate %v", p.Synth(), out[0])
	}
	f, _ := decimal.NewFromBigInt(rate, -synthDecimals).Float64()
	return f, nil
}

// Rates reads every pair. Any failure fails the whole read.
func (s *SynthRates) Rates(ctx context.Context, block uint64, pairs []model.Pair) (map[model.Pair]float64, error) {
	return queryAll(ctx, block, pairs, s.concurrency, s.Rate)
}
