package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const maxBackoff = 16 * time.Second

// HeadSubscriber is the part of ethclient.Client the watcher needs.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// BlockHandler is called once per new block, in order.
type BlockHandler interface {
	HandleBlock(ctx context.Context, number uint64) error
}

// BlockWatcher follows the chain head.
type BlockWatcher struct {
	logger     *zap.Logger
	sub        HeadSubscriber
	handler    BlockHandler
	minBackoff time.Duration
}

// NewBlockWatcher creates a new BlockWatcher.
func NewBlockWatcher(logger *zap.Logger, sub HeadSubscriber, handler BlockHandler) *BlockWatcher {
	return &BlockWatcher{
		logger:     logger.With(zap.String("component", "block_watcher")),
		sub:        sub,
		handler:    handler,
		minBackoff: time.Second,
	}
}

// Run subscribes to new heads until ctx is done, resubscribing with a
// doubling backoff when the subscription fails.
func (w *BlockWatcher) Run(ctx context.Context) error {
	backoff := w.minBackoff
	var last uint64
	for {
		if ctx.Err() != nil {
			return nil
		}

		heads := make(chan *types.Header, 16)
		sub, err := w.sub.SubscribeNewHead(ctx, heads)
		if err == nil {
			backoff = w.minBackoff
			err = w.follow(ctx, sub, heads, &last)
			sub.Unsubscribe()
		}
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Error("head subscription interrupted", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (w *BlockWatcher) follow(ctx context.Context, sub ethereum.Subscription, heads <-chan *types.Header, last *uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case h := <-heads:
			if h == nil || h.Number == nil {
				continue
			}
			n := h.Number.Uint64()
			if n == *last {
				continue
			}
			*last = n
			if err := w.handler.HandleBlock(ctx, n); err != nil {
				w.logger.Warn("skipping block", zap.Uint64("block", n), zap.Error(err))
			}
		}
	}
}
