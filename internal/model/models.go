package model

import (
	"fmt"
	"strings"
)

// Pair is a normalized trading symbol quoted in USD.
type Pair string

const (
	BTCUSD  Pair = "BTCUSD"
	ETHUSD  Pair = "ETHUSD"
	LINKUSD Pair = "LINKUSD"
	UNIUSD  Pair = "UNIUSD"
	AAVEUSD Pair = "AAVEUSD"
)

// AllPairs lists every supported pair. The order is the tie-break order used
// wherever candidates are ranked.
var AllPairs = []Pair{BTCUSD, ETHUSD, LINKUSD, UNIUSD, AAVEUSD}

// SUSD is the synthetic dollar every open-close trade starts and ends in.
const SUSD = "sUSD"

// PairToSynth maps a pair to the synthetic token that tracks it.
var PairToSynth = map[Pair]string{
	BTCUSD:  "sBTC",
	ETHUSD:  "sETH",
	LINKUSD: "sLINK",
	UNIUSD:  "sUNI",
	AAVEUSD: "sAAVE",
}

// SynthToPair is the inverse of PairToSynth.
var SynthToPair = func() map[string]Pair {
	m := make(map[string]Pair, len(PairToSynth))
	for p, s := range PairToSynth {
		m[s] = p
	}
	return m
}()

// Base returns the base asset of the pair, e.g. "BTC" for BTCUSD.
func (p Pair) Base() string {
	return strings.TrimSuffix(string(p), "USD")
}

// Synth returns the synthetic token for the pair.
func (p Pair) Synth() string {
	return PairToSynth[p]
}

// Index returns the position of p in AllPairs, or len(AllPairs) if unknown.
func (p Pair) Index() int {
	for i, q := range AllPairs {
		if q == p {
			return i
		}
	}
	return len(AllPairs)
}

// ParsePair validates a configured pair name.
func ParsePair(s string) (Pair, error) {
	p := Pair(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := PairToSynth[p]; !ok {
		return "", fmt.Errorf("unknown pair %q", s)
	}
	return p, nil
}

// ParsePairs validates a list of configured pair names, preserving the
// canonical AllPairs ordering.
func ParsePairs(names []string) ([]Pair, error) {
	want := make(map[Pair]bool, len(names))
	for _, n := range names {
		p, err := ParsePair(n)
		if err != nil {
			return nil, err
		}
		want[p] = true
	}
	pairs := make([]Pair, 0, len(want))
	for _, p := range AllPairs {
		if want[p] {
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

// PriceSnapshot is the latest known market state.
type PriceSnapshot struct {
	Heartbeat    int64            `json:"heartbeat"`
	BlockNumber  uint64           `json:"blockNumber"`
	FeedPrices   map[Pair]float64 `json:"feedPrices"`
	OraclePrices map[Pair]float64 `json:"oraclePrices"`
	SynthPrices  map[Pair]float64 `json:"synthPrices"`
}

// Clone returns a deep copy of the snapshot.
func (s PriceSnapshot) Clone() PriceSnapshot {
	return PriceSnapshot{
		Heartbeat:    s.Heartbeat,
		BlockNumber:  s.BlockNumber,
		FeedPrices:   cloneMap(s.FeedPrices),
		OraclePrices: cloneMap(s.OraclePrices),
		SynthPrices:  cloneMap(s.SynthPrices),
	}
}

// DivergenceSet is the input of a single decision cycle. It is never mutated
// after construction.
type DivergenceSet struct {
	State        PriceSnapshot    `json:"state"`
	OracleToFeed map[Pair]float64 `json:"oracleToFeed"`
}

// PriceTick is a single trade print streamed from an exchange.
type PriceTick struct {
	Exchange  string  `json:"exchange"`
	Pair      Pair    `json:"pair"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"`
}

func cloneMap(m map[Pair]float64) map[Pair]float64 {
	out := make(map[Pair]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
