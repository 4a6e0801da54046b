package arbitrage

import (
	"context"
	"time"
)

// Order is a single synth exchange.
type Order struct {
	SourceSymbol string
	DestSymbol   string
	SourceAmount float64
	// ExpectedRate is destination tokens per source token at oracle prices.
	ExpectedRate float64
}

// Execution is the outcome of an Order.
type Execution struct {
	TxHash       string
	BlockNumber  uint64
	SourceTokens float64
	DestTokens   float64
	GasUsed      uint64
}

// Executor performs trades.
type Executor interface {
	Execute(ctx context.Context, o Order) (Execution, error)
}

// SimulatedExecutor fills every order at its expected rate after a delay,
// without touching the chain.
type SimulatedExecutor struct {
	Delay time.Duration
}

// Execute implements Executor.
func (s SimulatedExecutor) Execute(ctx context.Context, o Order) (Execution, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Execution{}, ctx.Err()
		}
	}
	return Execution{
		TxHash:       "0x",
		SourceTokens: o.SourceAmount,
		DestTokens:   o.SourceAmount * o.ExpectedRate,
	}, nil
}
