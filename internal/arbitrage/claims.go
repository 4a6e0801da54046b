package arbitrage

import (
	"errors"
	"fmt"
	"sync"

	"frontrunner/internal/model"
)

// ErrDuplicateOpenTrade means two open trades were found for one pair. The
// engine refuses to start on it.
var ErrDuplicateOpenTrade = errors.New("duplicate open trade")

// ClaimState is the lifecycle of a pair slot.
type ClaimState int

const (
	// Free: no trade on the pair.
	Free ClaimState = iota
	// Claimed: an opportunity was taken and the trade is being opened.
	Claimed
	// Committed: the trade is open.
	Committed
)

func (s ClaimState) String() string {
	switch s {
	case Free:
		return "free"
	case Claimed:
		return "claimed"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("ClaimState(%d)", int(s))
	}
}

type slot[T any] struct {
	state ClaimState
	trade T
}

// ClaimTable tracks the per-pair state free -> claimed -> committed. A pair
// is claimed before its trade record exists, so two opportunities on one
// pair can never both proceed.
type ClaimTable[T any] struct {
	mu    sync.Mutex
	slots map[model.Pair]*slot[T]
}

// NewClaimTable creates an empty table.
func NewClaimTable[T any]() *ClaimTable[T] {
	return &ClaimTable[T]{slots: make(map[model.Pair]*slot[T])}
}

// TryClaim moves p from free to claimed. It reports false if p is taken.
func (c *ClaimTable[T]) TryClaim(p model.Pair) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.slots[p]; taken {
		return false
	}
	c.slots[p] = &slot[T]{state: Claimed}
	return true
}

// Commit stores the open trade of a claimed or committed pair.
func (c *ClaimTable[T]) Commit(p model.Pair, trade T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[p]
	if !ok {
		return fmt.Errorf("commit %s: pair is not claimed", p)
	}
	s.state = Committed
	s.trade = trade
	return nil
}

// Release frees p.
func (c *ClaimTable[T]) Release(p model.Pair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, p)
}

// Restore commits a trade loaded at startup.
func (c *ClaimTable[T]) Restore(p model.Pair, trade T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.slots[p]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateOpenTrade, p)
	}
	c.slots[p] = &slot[T]{state: Committed, trade: trade}
	return nil
}

// State returns the state of p.
func (c *ClaimTable[T]) State(p model.Pair) ClaimState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[p]; ok {
		return s.state
	}
	return Free
}

// Get returns the open trade of p, if committed.
func (c *ClaimTable[T]) Get(p model.Pair) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[p]; ok && s.state == Committed {
		return s.trade, true
	}
	var zero T
	return zero, false
}

// Held returns every pair that is claimed or committed.
func (c *ClaimTable[T]) Held() map[model.Pair]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.Pair]bool, len(c.slots))
	for p := range c.slots {
		out[p] = true
	}
	return out
}

// Len returns the number of claimed or committed pairs.
func (c *ClaimTable[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Snapshot returns the committed trades in pair order.
func (c *ClaimTable[T]) Snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, 0, len(c.slots))
	for _, p := range model.AllPairs {
		if s, ok := c.slots[p]; ok && s.state == Committed {
			out = append(out, s.trade)
		}
	}
	return out
}
