// Package divergence computes the relative difference between two prices.
package divergence

import (
	"github.com/shopspring/decimal"

	"frontrunner/internal/model"
)

// Get returns a/b - 1. The caller guarantees b != 0.
func Get(a, b float64) float64 {
	return a/b - 1
}

// HumanReadable formats a divergence as a percentage with two decimals,
// e.g. 0.0305 -> "3.05%".
func HumanReadable(x float64) string {
	return decimal.NewFromFloat(x).Shift(2).StringFixed(2) + "%"
}

// OracleToFeed computes oracle/feed - 1 for every pair that has both prices.
func OracleToFeed(s model.PriceSnapshot, pairs []model.Pair) map[model.Pair]float64 {
	out := make(map[model.Pair]float64, len(pairs))
	for _, p := range pairs {
		feed, ok := s.FeedPrices[p]
		if !ok || feed == 0 {
			continue
		}
		oracle, ok := s.OraclePrices[p]
		if !ok {
			continue
		}
		out[p] = Get(oracle, feed)
	}
	return out
}

// NewSet builds the immutable input of a decision cycle from a snapshot.
func NewSet(s model.PriceSnapshot, pairs []model.Pair) model.DivergenceSet {
	state := s.Clone()
	return model.DivergenceSet{
		State:        state,
		OracleToFeed: OracleToFeed(state, pairs),
	}
}

// HumanReadableSet formats every divergence of the set for logging.
func HumanReadableSet(m map[model.Pair]float64) map[model.Pair]string {
	out := make(map[model.Pair]string, len(m))
	for p, v := range m {
		out[p] = HumanReadable(v)
	}
	return out
}
