package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"frontrunner/internal/model"
)

// krakenPairs maps our pairs to Kraken's request names.
var krakenPairs = map[model.Pair]string{
	model.BTCUSD:  "XBTUSD",
	model.ETHUSD:  "ETHUSD",
	model.LINKUSD: "LINKUSD",
	model.UNIUSD:  "UNIUSD",
	model.AAVEUSD: "AAVEUSD",
}

// krakenResultKeys maps the keys Kraken answers with back to our pairs.
var krakenResultKeys = map[string]model.Pair{
	"XXBTZUSD": model.BTCUSD,
	"XBTUSD":   model.BTCUSD,
	"XETHZUSD": model.ETHUSD,
	"ETHUSD":   model.ETHUSD,
	"LINKUSD":  model.LINKUSD,
	"UNIUSD":   model.UNIUSD,
	"AAVEUSD":  model.AAVEUSD,
}

// KrakenSource reads last trade prices from the Kraken public Ticker endpoint.
type KrakenSource struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
	pairs   []model.Pair
}

// NewKrakenSource creates a new KrakenSource.
func NewKrakenSource(logger *zap.Logger, client *http.Client, baseURL string, pairs []model.Pair) *KrakenSource {
	return &KrakenSource{
		logger:  logger.With(zap.String("source", "kraken")),
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		pairs:   pairs,
	}
}

func (k *KrakenSource) Name() string {
	return "kraken"
}

// FetchPrices implements PriceSource.
func (k *KrakenSource) FetchPrices(ctx context.Context) (map[model.Pair]float64, error) {
	names := make([]string, 0, len(k.pairs))
	for _, p := range k.pairs {
		names = append(names, krakenPairs[p])
	}
	url := fmt.Sprintf("%s/0/public/Ticker?pair=%s", k.baseURL, strings.Join(names, ","))

	doc, err := getJSON(ctx, k.client, url)
	if err != nil {
		return nil, err
	}
	if errs := doc.Get("error").Array(); len(errs) > 0 {
		return nil, fmt.Errorf("kraken: %s", errs[0].String())
	}

	wanted := make(map[model.Pair]bool, len(k.pairs))
	for _, p := range k.pairs {
		wanted[p] = true
	}

	prices := make(map[model.Pair]float64, len(k.pairs))
	var parseErr error
	doc.Get("result").ForEach(func(key, ticker gjson.Result) bool {
		pair, ok := krakenResultKeys[key.String()]
		if !ok || !wanted[pair] {
			return true
		}
		price, err := parsePrice(ticker.Get("c.0"))
		if err != nil {
			parseErr = fmt.Errorf("kraken %s: %w", pair, err)
			return false
		}
		prices[pair] = price
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	k.logger.Debug("fetched prices", zap.Any("prices", prices))
	return prices, nil
}
