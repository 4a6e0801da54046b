package database

import (
	"context"
	"errors"

	"frontrunner/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TradeRepository stores open-close trades.
type TradeRepository interface {
	// Create inserts t, fills its ID and timestamps and returns the ID.
	Create(ctx context.Context, t *model.Trade) (string, error)
	// Update writes every mutable column of t and touches updated_at.
	Update(ctx context.Context, t *model.Trade) error
	GetByID(ctx context.Context, id string) (model.Trade, error)
	// GetOpenTrades returns the trades not closed yet, oldest first.
	GetOpenTrades(ctx context.Context) ([]model.Trade, error)
}

// RoamTradeRepository stores roam trades.
type RoamTradeRepository interface {
	Create(ctx context.Context, t *model.RoamTrade) (string, error)
	Update(ctx context.Context, t *model.RoamTrade) error
	GetByID(ctx context.Context, id string) (model.RoamTrade, error)
	GetOpenTrades(ctx context.Context) ([]model.RoamTrade, error)
}
