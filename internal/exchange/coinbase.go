package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontrunner/internal/model"
)

// CoinbaseSource reads spot prices from the Coinbase v2 API, one request per pair.
type CoinbaseSource struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
	pairs   []model.Pair
}

// NewCoinbaseSource creates a new CoinbaseSource.
func NewCoinbaseSource(logger *zap.Logger, client *http.Client, baseURL string, pairs []model.Pair) *CoinbaseSource {
	return &CoinbaseSource{
		logger:  logger.With(zap.String("source", "coinbase")),
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		pairs:   pairs,
	}
}

func (c *CoinbaseSource) Name() string {
	return "coinbase"
}

// FetchPrices implements PriceSource.
func (c *CoinbaseSource) FetchPrices(ctx context.Context) (map[model.Pair]float64, error) {
	var mu sync.Mutex
	prices := make(map[model.Pair]float64, len(c.pairs))

	g, ctx := errgroup.WithContext(ctx)
	for _, pair := range c.pairs {
		g.Go(func() error {
			url := fmt.Sprintf("%s/v2/prices/%s-USD/spot", c.baseURL, pair.Base())
			doc, err := getJSON(ctx, c.client, url)
			if err != nil {
				return err
			}
			data := doc.Get("data")
			if got := data.Get("base").String() + data.Get("currency").String(); got != string(pair) {
				return fmt.Errorf("coinbase: asked for %s, got %s", pair, got)
			}
			price, err := parsePrice(data.Get("amount"))
			if err != nil {
				return fmt.Errorf("coinbase %s: %w", pair, err)
			}
			mu.Lock()
			prices[pair] = price
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Debug("fetched prices", zap.Any("prices", prices))
	return prices, nil
}
