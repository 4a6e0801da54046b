package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"frontrunner/internal/model"
)

// Connect opens a pool and checks the database is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var tradeColumns = []string{
	"id", "pair", "network", "testing",
	"opportunity_feed_price", "opportunity_oracle_price", "opportunity_block_number",
	"traded", "traded_feed_price", "traded_oracle_price", "traded_projected_percent",
	"traded_projected_percent_hr", "traded_block_number", "traded_tx",
	"traded_source_tokens", "traded_source_token_symbol", "traded_dst_tokens",
	"traded_dst_token_symbol", "traded_gas_spent",
	"closed_trade", "closed_at", "closed_tx", "closed_price_diff", "closed_profit_loss",
	"closed_profit_loss_percent", "closed_profit_loss_percent_hr", "closed_feed_price",
	"closed_oracle_price", "closed_block_number", "closed_cut_losses",
	"closed_source_tokens", "closed_source_token_symbol", "closed_dst_tokens",
	"closed_dst_token_symbol", "closed_gas_spent",
}

var roamTradeColumns = []string{
	"id", "network", "testing",
	"opportunity_source_symbol", "opportunity_source_feed_price", "opportunity_source_oracle_price",
	"opportunity_source_usd_diff_percent", "opportunity_source_usd_diff_percent_hr",
	"opportunity_target_symbol", "opportunity_target_feed_price", "opportunity_target_oracle_price",
	"opportunity_target_usd_diff_percent", "opportunity_target_usd_diff_percent_hr",
	"opportunity_source_target_diff_percent", "opportunity_source_target_diff_percent_hr",
	"opportunity_block_number",
	"traded", "traded_tx", "traded_block_number", "traded_source_tokens", "traded_dst_tokens",
	"traded_actual_ratio", "traded_gas_spent", "traded_at",
	"closed_trade", "closed_source_usd_value", "closed_target_usd_value",
	"closed_source_target_diff_percent", "closed_source_target_diff_percent_hr",
	"closed_profit_loss_usd", "closed_source_oracle_price", "closed_target_oracle_price",
	"closed_block_number", "closed_at",
}

func insertSQL(table string, cols []string) string {
	params := make([]string, len(cols))
	for i, c := range cols {
		params[i] = "@" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING created_at, updated_at",
		table, strings.Join(cols, ", "), strings.Join(params, ", "))
}

func updateSQL(table string, cols []string) string {
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "id" {
			continue
		}
		sets = append(sets, c+" = @"+c)
	}
	sets = append(sets, "updated_at = NOW()")
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = @id RETURNING updated_at", table, strings.Join(sets, ", "))
}

// PostgresTradeRepository implements TradeRepository on a pgx pool.
type PostgresTradeRepository struct {
	Pool *pgxpool.Pool
}

var (
	insertTradeSQL = insertSQL("trades", tradeColumns)
	updateTradeSQL = updateSQL("trades", tradeColumns)
)

func tradeArgs(t *model.Trade) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":                            t.ID,
		"pair":                          string(t.Pair),
		"network":                       t.Network,
		"testing":                       t.Testing,
		"opportunity_feed_price":        t.OpportunityFeedPrice,
		"opportunity_oracle_price":      t.OpportunityOraclePrice,
		"opportunity_block_number":      t.OpportunityBlockNumber,
		"traded":                        t.Traded,
		"traded_feed_price":             t.TradedFeedPrice,
		"traded_oracle_price":           t.TradedOraclePrice,
		"traded_projected_percent":      t.TradedProjectedPercent,
		"traded_projected_percent_hr":   t.TradedProjectedPercentHR,
		"traded_block_number":           t.TradedBlockNumber,
		"traded_tx":                     t.TradedTx,
		"traded_source_tokens":          t.TradedSourceTokens,
		"traded_source_token_symbol":    t.TradedSourceTokenSymbol,
		"traded_dst_tokens":             t.TradedDstTokens,
		"traded_dst_token_symbol":       t.TradedDstTokenSymbol,
		"traded_gas_spent":              t.TradedGasSpent,
		"closed_trade":                  t.ClosedTrade,
		"closed_at":                     t.ClosedAt,
		"closed_tx":                     t.ClosedTx,
		"closed_price_diff":             t.ClosedPriceDiff,
		"closed_profit_loss":            t.ClosedProfitLoss,
		"closed_profit_loss_percent":    t.ClosedProfitLossPercent,
		"closed_profit_loss_percent_hr": t.ClosedProfitLossPercentHR,
		"closed_feed_price":             t.ClosedFeedPrice,
		"closed_oracle_price":           t.ClosedOraclePrice,
		"closed_block_number":           t.ClosedBlockNumber,
		"closed_cut_losses":             t.ClosedCutLosses,
		"closed_source_tokens":          t.ClosedSourceTokens,
		"closed_source_token_symbol":    t.ClosedSourceTokenSymbol,
		"closed_dst_tokens":             t.ClosedDstTokens,
		"closed_dst_token_symbol":       t.ClosedDstTokenSymbol,
		"closed_gas_spent":              t.ClosedGasSpent,
	}
}

// Create inserts a new trade under a fresh UUID.
func (r *PostgresTradeRepository) Create(ctx context.Context, t *model.Trade) (string, error) {
	t.ID = uuid.NewString()
	err := r.Pool.QueryRow(ctx, insertTradeSQL, tradeArgs(t)).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert trade: %w", err)
	}
	return t.ID, nil
}

// Update overwrites the trade row.
func (r *PostgresTradeRepository) Update(ctx context.Context, t *model.Trade) error {
	err := r.Pool.QueryRow(ctx, updateTradeSQL, tradeArgs(t)).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update trade %s: %w", t.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update trade %s: %w", t.ID, err)
	}
	return nil
}

func (r *PostgresTradeRepository) GetByID(ctx context.Context, id string) (model.Trade, error) {
	rows, _ := r.Pool.Query(ctx, "SELECT * FROM trades WHERE id = $1", id)
	t, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Trade])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Trade{}, ErrNotFound
	}
	if err != nil {
		return model.Trade{}, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

func (r *PostgresTradeRepository) GetOpenTrades(ctx context.Context) ([]model.Trade, error) {
	rows, _ := r.Pool.Query(ctx, "SELECT * FROM trades WHERE closed_trade = FALSE ORDER BY created_at")
	trades, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Trade])
	if err != nil {
		return nil, fmt.Errorf("get open trades: %w", err)
	}
	return trades, nil
}

// PostgresRoamTradeRepository implements RoamTradeRepository on a pgx pool.
type PostgresRoamTradeRepository struct {
	Pool *pgxpool.Pool
}

var (
	insertRoamTradeSQL = insertSQL("trades_roam", roamTradeColumns)
	updateRoamTradeSQL = updateSQL("trades_roam", roamTradeColumns)
)

func roamTradeArgs(t *model.RoamTrade) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":                                        t.ID,
		"network":                                   t.Network,
		"testing":                                   t.Testing,
		"opportunity_source_symbol":                 t.OpportunitySourceSymbol,
		"opportunity_source_feed_price":             t.OpportunitySourceFeedPrice,
		"opportunity_source_oracle_price":           t.OpportunitySourceOraclePrice,
		"opportunity_source_usd_diff_percent":       t.OpportunitySourceUSDDiffPercent,
		"opportunity_source_usd_diff_percent_hr":    t.OpportunitySourceUSDDiffPercentHR,
		"opportunity_target_symbol":                 t.OpportunityTargetSymbol,
		"opportunity_target_feed_price":             t.OpportunityTargetFeedPrice,
		"opportunity_target_oracle_price":           t.OpportunityTargetOraclePrice,
		"opportunity_target_usd_diff_percent":       t.OpportunityTargetUSDDiffPercent,
		"opportunity_target_usd_diff_percent_hr":    t.OpportunityTargetUSDDiffPercentHR,
		"opportunity_source_target_diff_percent":    t.OpportunitySourceTargetDiffPercent,
		"opportunity_source_target_diff_percent_hr": t.OpportunitySourceTargetDiffPercentHR,
		"opportunity_block_number":                  t.OpportunityBlockNumber,
		"traded":                                    t.Traded,
		"traded_tx":                                 t.TradedTx,
		"traded_block_number":                       t.TradedBlockNumber,
		"traded_source_tokens":                      t.TradedSourceTokens,
		"traded_dst_tokens":                         t.TradedDstTokens,
		"traded_actual_ratio":                       t.TradedActualRatio,
		"traded_gas_spent":                          t.TradedGasSpent,
		"traded_at":                                 t.TradedAt,
		"closed_trade":                              t.ClosedTrade,
		"closed_source_usd_value":                   t.ClosedSourceUSDValue,
		"closed_target_usd_value":                   t.ClosedTargetUSDValue,
		"closed_source_target_diff_percent":         t.ClosedSourceTargetDiffPercent,
		"closed_source_target_diff_percent_hr":      t.ClosedSourceTargetDiffPercentHR,
		"closed_profit_loss_usd":                    t.ClosedProfitLossUSD,
		"closed_source_oracle_price":                t.ClosedSourceOraclePrice,
		"closed_target_oracle_price":                t.ClosedTargetOraclePrice,
		"closed_block_number":                       t.ClosedBlockNumber,
		"closed_at":                                 t.ClosedAt,
	}
}

func (r *PostgresRoamTradeRepository) Create(ctx context.Context, t *model.RoamTrade) (string, error) {
	t.ID = uuid.NewString()
	err := r.Pool.QueryRow(ctx, insertRoamTradeSQL, roamTradeArgs(t)).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert roam trade: %w", err)
	}
	return t.ID, nil
}

func (r *PostgresRoamTradeRepository) Update(ctx context.Context, t *model.RoamTrade) error {
	err := r.Pool.QueryRow(ctx, updateRoamTradeSQL, roamTradeArgs(t)).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update roam trade %s: %w", t.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update roam trade %s: %w", t.ID, err)
	}
	return nil
}

func (r *PostgresRoamTradeRepository) GetByID(ctx context.Context, id string) (model.RoamTrade, error) {
	rows, _ := r.Pool.Query(ctx, "SELECT * FROM trades_roam WHERE id = $1", id)
	t, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.RoamTrade])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RoamTrade{}, ErrNotFound
	}
	if err != nil {
		return model.RoamTrade{}, fmt.Errorf("get roam trade %s: %w", id, err)
	}
	return t, nil
}

func (r *PostgresRoamTradeRepository) GetOpenTrades(ctx context.Context) ([]model.RoamTrade, error) {
	rows, _ := r.Pool.Query(ctx, "SELECT * FROM trades_roam WHERE closed_trade = FALSE ORDER BY created_at")
	trades, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.RoamTrade])
	if err != nil {
		return nil, fmt.Errorf("get open roam trades: %w", err)
	}
	return trades, nil
}
