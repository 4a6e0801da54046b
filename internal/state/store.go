// Package state holds the latest known market snapshot.
package state

import (
	"sync"

	"frontrunner/internal/model"
)

// Store is the in-memory PriceSnapshot. The plexer is its only writer;
// readers get copies and tolerate staleness.
type Store struct {
	mu   sync.RWMutex
	snap model.PriceSnapshot
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{snap: model.PriceSnapshot{
		FeedPrices:   map[model.Pair]float64{},
		OraclePrices: map[model.Pair]float64{},
		SynthPrices:  map[model.Pair]float64{},
	}}
}

// ApplyFeed records the aggregated feed prices of a heartbeat.
func (s *Store) ApplyFeed(heartbeat int64, prices map[model.Pair]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Heartbeat = heartbeat
	for p, v := range prices {
		s.snap.FeedPrices[p] = v
	}
}

// ApplyBlock records the on-chain prices read at a block.
func (s *Store) ApplyBlock(block uint64, oracle, synth map[model.Pair]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.BlockNumber = block
	for p, v := range oracle {
		s.snap.OraclePrices[p] = v
	}
	for p, v := range synth {
		s.snap.SynthPrices[p] = v
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() model.PriceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Ready reports whether a decision cycle may run: a heartbeat and a block
// have been seen and every pair has a positive feed price and an oracle price.
func Ready(snap model.PriceSnapshot, pairs []model.Pair) bool {
	if snap.Heartbeat <= 0 || snap.BlockNumber == 0 {
		return false
	}
	for _, p := range pairs {
		if snap.FeedPrices[p] <= 0 {
			return false
		}
		if _, ok := snap.OraclePrices[p]; !ok {
			return false
		}
	}
	return true
}

// Ready reports whether the current state is ready for pairs.
func (s *Store) Ready(pairs []model.Pair) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Ready(s.snap, pairs)
}
