package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"frontrunner/internal/model"
)

const maxBackoff = 16 * time.Second

// BitfinexStream implements TradeStream over the Bitfinex v2 websocket.
type BitfinexStream struct {
	logger *zap.Logger
	wsURL  string
	pairs  []model.Pair
	dialer *websocket.Dialer
}

// NewBitfinexStream creates a new BitfinexStream.
func NewBitfinexStream(logger *zap.Logger, wsURL string, pairs []model.Pair) *BitfinexStream {
	return &BitfinexStream{
		logger: logger.With(zap.String("source", "bitfinex_ws")),
		wsURL:  wsURL,
		pairs:  pairs,
		dialer: websocket.DefaultDialer,
	}
}

func (b *BitfinexStream) Name() string {
	return "bitfinex"
}

// StartStream connects to the Bitfinex websocket and streams trade executions.
// It reconnects with a doubling backoff and returns nil once ctx is done.
func (b *BitfinexStream) StartStream(ctx context.Context, ticks chan<- model.PriceTick) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			b.logger.Info("context cancelled, shutting down")
			return nil
		}

		b.logger.Info("connecting to WebSocket", zap.String("url", b.wsURL), zap.Duration("backoff", backoff))
		c, _, err := b.dialer.DialContext(ctx, b.wsURL, nil)
		if err == nil {
			err = b.subscribe(c)
			if err == nil {
				backoff = time.Second
				err = b.readLoop(ctx, c, ticks)
			}
			c.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		b.logger.Error("WebSocket stream interrupted", zap.Error(err))

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

func (b *BitfinexStream) subscribe(c *websocket.Conn) error {
	for _, p := range b.pairs {
		msg := map[string]string{
			"event":   "subscribe",
			"channel": "trades",
			"symbol":  bitfinexSymbols[p],
		}
		if err := c.WriteJSON(msg); err != nil {
			return err
		}
	}
	b.logger.Info("subscriptions sent", zap.Int("pairs", len(b.pairs)))
	return nil
}

// readLoop returns when the connection fails or ctx is done.
func (b *BitfinexStream) readLoop(ctx context.Context, c *websocket.Conn, ticks chan<- model.PriceTick) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	channels := make(map[int64]model.Pair)
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}
		msg := gjson.ParseBytes(message)

		if msg.IsObject() {
			switch msg.Get("event").String() {
			case "subscribed":
				if pair, ok := bitfinexPairs[msg.Get("symbol").String()]; ok {
					channels[msg.Get("chanId").Int()] = pair
					b.logger.Info("subscription confirmed", zap.String("pair", string(pair)))
				}
			case "error":
				return errors.New("bitfinex: " + msg.Get("msg").String())
			}
			continue
		}

		tick, ok := parseTradeMessage(msg, channels)
		if !ok {
			continue
		}
		select {
		case ticks <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseTradeMessage reads a [chanId, "te", [ID, MTS, AMOUNT, PRICE]] update.
// Snapshots, heartbeats and "tu" duplicates are skipped.
func parseTradeMessage(msg gjson.Result, channels map[int64]model.Pair) (model.PriceTick, bool) {
	parts := msg.Array()
	if len(parts) < 3 || parts[1].String() != "te" {
		return model.PriceTick{}, false
	}
	pair, ok := channels[parts[0].Int()]
	if !ok {
		return model.PriceTick{}, false
	}
	trade := parts[2].Array()
	if len(trade) < 4 {
		return model.PriceTick{}, false
	}
	return model.PriceTick{
		Exchange:  "bitfinex",
		Pair:      pair,
		Price:     trade[3].Float(),
		Amount:    trade[2].Float(),
		Timestamp: trade[1].Int(),
	}, true
}
