package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"frontrunner/internal/arbitrage"
)

// ErrNoExchangeLog is returned when a mined exchange emitted no SynthExchange.
var ErrNoExchangeLog = errors.New("no SynthExchange log in receipt")

// ErrTxReverted is returned when the exchange transaction failed on chain.
var ErrTxReverted = errors.New("exchange transaction reverted")

// Backend is what the exchanger needs from a node connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// SynthExchanger executes orders through Synthetix.exchange.
type SynthExchanger struct {
	logger   *zap.Logger
	backend  Backend
	contract *bind.BoundContract
	opts     *bind.TransactOpts

	// mu serializes nonce assignment. nonce is the next one to use once
	// synced; a failed send drops it so the next call asks the node again.
	mu     sync.Mutex
	nonce  uint64
	synced bool
}

type synthExchangeLog struct {
	Account         common.Address
	FromCurrencyKey [32]byte
	FromAmount      *big.Int
	ToCurrencyKey   [32]byte
	ToAmount        *big.Int
	ToAddress       common.Address
}

// NewSynthExchanger binds the Synthetix contract at address.
func NewSynthExchanger(logger *zap.Logger, backend Backend, address string, opts *bind.TransactOpts) (*SynthExchanger, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid synthetix address %q", address)
	}
	if opts == nil {
		return nil, errors.New("missing transactor")
	}
	return &SynthExchanger{
		logger:   logger.With(zap.String("component", "synth_exchanger")),
		backend:  backend,
		contract: bind.NewBoundContract(common.HexToAddress(address), synthetixABI, backend, backend, backend),
		opts:     opts,
	}, nil
}

// Execute implements arbitrage.Executor. It blocks until the transaction is
// mined.
func (s *SynthExchanger) Execute(ctx context.Context, o arbitrage.Order) (arbitrage.Execution, error) {
	amount := decimal.NewFromFloat(o.SourceAmount).Shift(synthDecimals).BigInt()
	tx, err := s.send(ctx, o, amount)
	if err != nil {
		return arbitrage.Execution{}, fmt.Errorf("send exchange %s->%s: %w", o.SourceSymbol, o.DestSymbol, err)
	}
	s.logger.Info("exchange sent", zap.String("tx", tx.Hash().Hex()), zap.String("from", o.SourceSymbol), zap.String("to", o.DestSymbol))

	receipt, err := bind.WaitMined(ctx, s.backend, tx)
	if err != nil {
		return arbitrage.Execution{}, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return arbitrage.Execution{}, fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
	}

	ev, err := s.exchangeLog(receipt)
	if err != nil {
		return arbitrage.Execution{}, err
	}
	src, _ := decimal.NewFromBigInt(ev.FromAmount, -synthDecimals).Float64()
	dst, _ := decimal.NewFromBigInt(ev.ToAmount, -synthDecimals).Float64()

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return arbitrage.Execution{
		TxHash:       receipt.TxHash.Hex(),
		BlockNumber:  block,
		SourceTokens: src,
		DestTokens:   dst,
		GasUsed:      receipt.GasUsed,
	}, nil
}

func (s *SynthExchanger) send(ctx context.Context, o arbitrage.Order, amount *big.Int) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.synced {
		nonce, err := s.backend.PendingNonceAt(ctx, s.opts.From)
		if err != nil {
			return nil, fmt.Errorf("pending nonce: %w", err)
		}
		s.nonce, s.synced = nonce, true
	}

	opts := *s.opts
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(s.nonce)

	tx, err := s.contract.Transact(&opts, "exchange", currencyKey(o.SourceSymbol), amount, currencyKey(o.DestSymbol))
	if err != nil {
		s.synced = false
		return nil, err
	}
	s.nonce++
	return tx, nil
}

func (s *SynthExchanger) exchangeLog(receipt *types.Receipt) (synthExchangeLog, error) {
	id := synthetixABI.Events["SynthExchange"].ID
	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != id {
			continue
		}
		var ev synthExchangeLog
		if err := s.contract.UnpackLog(&ev, "SynthExchange", *l); err != nil {
			return synthExchangeLog{}, fmt.Errorf("decode SynthExchange: %w", err)
		}
		return ev, nil
	}
	return synthExchangeLog{}, ErrNoExchangeLog
}
