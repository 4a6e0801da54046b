package arbitrage

import "frontrunner/internal/model"

// Threshold is the minimum divergence that makes a pair an opportunity.
type Threshold interface {
	For(p model.Pair) (float64, bool)
}

// GlobalThreshold applies the same threshold to every pair.
type GlobalThreshold float64

func (g GlobalThreshold) For(model.Pair) (float64, bool) { return float64(g), true }

// DeviationTable holds a threshold per pair, usually the oracle's deviation.
// Pairs missing from the table are never opportunities.
type DeviationTable map[model.Pair]float64

func (d DeviationTable) For(p model.Pair) (float64, bool) {
	v, ok := d[p]
	return v, ok
}

// exceeds reports whether the divergence reaches the threshold of p.
func exceeds(t Threshold, p model.Pair, divergence float64) bool {
	limit, ok := t.For(p)
	return ok && divergence >= limit
}
