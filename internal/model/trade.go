package model

import "time"

// Trade is one open-close position: sUSD into a synth and back.
type Trade struct {
	ID      string `db:"id" json:"id"`
	Pair    Pair   `db:"pair" json:"pair"`
	Network string `db:"network" json:"network"`
	Testing bool   `db:"testing" json:"testing"`

	OpportunityFeedPrice   float64 `db:"opportunity_feed_price" json:"opportunity_feed_price"`
	OpportunityOraclePrice float64 `db:"opportunity_oracle_price" json:"opportunity_oracle_price"`
	OpportunityBlockNumber uint64  `db:"opportunity_block_number" json:"opportunity_block_number"`

	Traded                   bool     `db:"traded" json:"traded"`
	TradedFeedPrice          *float64 `db:"traded_feed_price" json:"traded_feed_price,omitempty"`
	TradedOraclePrice        *float64 `db:"traded_oracle_price" json:"traded_oracle_price,omitempty"`
	TradedProjectedPercent   *float64 `db:"traded_projected_percent" json:"traded_projected_percent,omitempty"`
	TradedProjectedPercentHR *string  `db:"traded_projected_percent_hr" json:"traded_projected_percent_hr,omitempty"`
	TradedBlockNumber        *uint64  `db:"traded_block_number" json:"traded_block_number,omitempty"`
	TradedTx                 *string  `db:"traded_tx" json:"traded_tx,omitempty"`
	TradedSourceTokens       *float64 `db:"traded_source_tokens" json:"traded_source_tokens,omitempty"`
	TradedSourceTokenSymbol  *string  `db:"traded_source_token_symbol" json:"traded_source_token_symbol,omitempty"`
	TradedDstTokens          *float64 `db:"traded_dst_tokens" json:"traded_dst_tokens,omitempty"`
	TradedDstTokenSymbol     *string  `db:"traded_dst_token_symbol" json:"traded_dst_token_symbol,omitempty"`
	TradedGasSpent           *uint64  `db:"traded_gas_spent" json:"traded_gas_spent,omitempty"`

	ClosedTrade               bool       `db:"closed_trade" json:"closed_trade"`
	ClosedAt                  *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	ClosedTx                  *string    `db:"closed_tx" json:"closed_tx,omitempty"`
	ClosedPriceDiff           *float64   `db:"closed_price_diff" json:"closed_price_diff,omitempty"`
	ClosedProfitLoss          *float64   `db:"closed_profit_loss" json:"closed_profit_loss,omitempty"`
	ClosedProfitLossPercent   *float64   `db:"closed_profit_loss_percent" json:"closed_profit_loss_percent,omitempty"`
	ClosedProfitLossPercentHR *string    `db:"closed_profit_loss_percent_hr" json:"closed_profit_loss_percent_hr,omitempty"`
	ClosedFeedPrice           *float64   `db:"closed_feed_price" json:"closed_feed_price,omitempty"`
	ClosedOraclePrice         *float64   `db:"closed_oracle_price" json:"closed_oracle_price,omitempty"`
	ClosedBlockNumber         *uint64    `db:"closed_block_number" json:"closed_block_number,omitempty"`
	ClosedCutLosses           bool       `db:"closed_cut_losses" json:"closed_cut_losses"`
	ClosedSourceTokens        *float64   `db:"closed_source_tokens" json:"closed_source_tokens,omitempty"`
	ClosedSourceTokenSymbol   *string    `db:"closed_source_token_symbol" json:"closed_source_token_symbol,omitempty"`
	ClosedDstTokens           *float64   `db:"closed_dst_tokens" json:"closed_dst_tokens,omitempty"`
	ClosedDstTokenSymbol      *string    `db:"closed_dst_token_symbol" json:"closed_dst_token_symbol,omitempty"`
	ClosedGasSpent            *uint64    `db:"closed_gas_spent" json:"closed_gas_spent,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Key returns the pair the trade occupies.
func (t Trade) Key() Pair { return t.Pair }

// RoamTrade is one hop of the roam strategy: the held synth swapped into the
// synth with the best relative divergence.
type RoamTrade struct {
	ID      string `db:"id" json:"id"`
	Network string `db:"network" json:"network"`
	Testing bool   `db:"testing" json:"testing"`

	OpportunitySourceSymbol              string  `db:"opportunity_source_symbol" json:"opportunity_source_symbol"`
	OpportunitySourceFeedPrice           float64 `db:"opportunity_source_feed_price" json:"opportunity_source_feed_price"`
	OpportunitySourceOraclePrice         float64 `db:"opportunity_source_oracle_price" json:"opportunity_source_oracle_price"`
	OpportunitySourceUSDDiffPercent      float64 `db:"opportunity_source_usd_diff_percent" json:"opportunity_source_usd_diff_percent"`
	OpportunitySourceUSDDiffPercentHR    string  `db:"opportunity_source_usd_diff_percent_hr" json:"opportunity_source_usd_diff_percent_hr"`
	OpportunityTargetSymbol              string  `db:"opportunity_target_symbol" json:"opportunity_target_symbol"`
	OpportunityTargetFeedPrice           float64 `db:"opportunity_target_feed_price" json:"opportunity_target_feed_price"`
	OpportunityTargetOraclePrice         float64 `db:"opportunity_target_oracle_price" json:"opportunity_target_oracle_price"`
	OpportunityTargetUSDDiffPercent      float64 `db:"opportunity_target_usd_diff_percent" json:"opportunity_target_usd_diff_percent"`
	OpportunityTargetUSDDiffPercentHR    string  `db:"opportunity_target_usd_diff_percent_hr" json:"opportunity_target_usd_diff_percent_hr"`
	OpportunitySourceTargetDiffPercent   float64 `db:"opportunity_source_target_diff_percent" json:"opportunity_source_target_diff_percent"`
	OpportunitySourceTargetDiffPercentHR string  `db:"opportunity_source_target_diff_percent_hr" json:"opportunity_source_target_diff_percent_hr"`
	OpportunityBlockNumber               uint64  `db:"opportunity_block_number" json:"opportunity_block_number"`

	Traded             bool       `db:"traded" json:"traded"`
	TradedTx           *string    `db:"traded_tx" json:"traded_tx,omitempty"`
	TradedBlockNumber  *uint64    `db:"traded_block_number" json:"traded_block_number,omitempty"`
	TradedSourceTokens *float64   `db:"traded_source_tokens" json:"traded_source_tokens,omitempty"`
	TradedDstTokens    *float64   `db:"traded_dst_tokens" json:"traded_dst_tokens,omitempty"`
	TradedActualRatio  *float64   `db:"traded_actual_ratio" json:"traded_actual_ratio,omitempty"`
	TradedGasSpent     *uint64    `db:"traded_gas_spent" json:"traded_gas_spent,omitempty"`
	TradedAt           *time.Time `db:"traded_at" json:"traded_at,omitempty"`

	ClosedTrade                     bool       `db:"closed_trade" json:"closed_trade"`
	ClosedSourceUSDValue            *float64   `db:"closed_source_usd_value" json:"closed_source_usd_value,omitempty"`
	ClosedTargetUSDValue            *float64   `db:"closed_target_usd_value" json:"closed_target_usd_value,omitempty"`
	ClosedSourceTargetDiffPercent   *float64   `db:"closed_source_target_diff_percent" json:"closed_source_target_diff_percent,omitempty"`
	ClosedSourceTargetDiffPercentHR *string    `db:"closed_source_target_diff_percent_hr" json:"closed_source_target_diff_percent_hr,omitempty"`
	ClosedProfitLossUSD             *float64   `db:"closed_profit_loss_usd" json:"closed_profit_loss_usd,omitempty"`
	ClosedSourceOraclePrice         *float64   `db:"closed_source_oracle_price" json:"closed_source_oracle_price,omitempty"`
	ClosedTargetOraclePrice         *float64   `db:"closed_target_oracle_price" json:"closed_target_oracle_price,omitempty"`
	ClosedBlockNumber               *uint64    `db:"closed_block_number" json:"closed_block_number,omitempty"`
	ClosedAt                        *time.Time `db:"closed_at" json:"closed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TargetPair is the pair whose synth the roam trade bought.
func (r RoamTrade) TargetPair() Pair { return SynthToPair[r.OpportunityTargetSymbol] }

// Ptr returns a pointer to v. Used to fill nullable record columns.
func Ptr[T any](v T) *T { return &v }
