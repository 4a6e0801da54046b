package exchange

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"frontrunner/internal/model"
)

// bitfinexSymbols maps our pairs to Bitfinex trading symbols. Symbols with a
// base longer than three letters use the colon form.
var bitfinexSymbols = map[model.Pair]string{
	model.BTCUSD:  "tBTCUSD",
	model.ETHUSD:  "tETHUSD",
	model.LINKUSD: "tLINK:USD",
	model.UNIUSD:  "tUNIUSD",
	model.AAVEUSD: "tAAVE:USD",
}

var bitfinexPairs = func() map[string]model.Pair {
	m := make(map[string]model.Pair, len(bitfinexSymbols))
	for p, s := range bitfinexSymbols {
		m[s] = p
	}
	return m
}()

// Position of LAST_PRICE in a Bitfinex v2 trading ticker row.
const bitfinexLastPrice = 7

// BitfinexSource reads last prices from the Bitfinex v2 tickers endpoint.
type BitfinexSource struct {
	logger  *zap.Logger
	client  *http.Client
	baseURL string
	pairs   []model.Pair
}

// NewBitfinexSource creates a new BitfinexSource.
func NewBitfinexSource(logger *zap.Logger, client *http.Client, baseURL string, pairs []model.Pair) *BitfinexSource {
	return &BitfinexSource{
		logger:  logger.With(zap.String("source", "bitfinex")),
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		pairs:   pairs,
	}
}

func (b *BitfinexSource) Name() string {
	return "bitfinex"
}

// FetchPrices implements PriceSource.
func (b *BitfinexSource) FetchPrices(ctx context.Context) (map[model.Pair]float64, error) {
	symbols := make([]string, 0, len(b.pairs))
	for _, p := range b.pairs {
		symbols = append(symbols, bitfinexSymbols[p])
	}
	url := fmt.Sprintf("%s/v2/tickers?symbols=%s", b.baseURL, strings.Join(symbols, ","))

	doc, err := getJSON(ctx, b.client, url)
	if err != nil {
		return nil, err
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("bitfinex: unexpected response %s", doc.Raw)
	}

	prices := make(map[model.Pair]float64, len(b.pairs))
	for _, row := range doc.Array() {
		cols := row.Array()
		if len(cols) <= bitfinexLastPrice {
			continue
		}
		pair, ok := bitfinexPairs[cols[0].String()]
		if !ok {
			continue
		}
		price, err := parsePrice(cols[bitfinexLastPrice])
		if err != nil {
			return nil, fmt.Errorf("bitfinex %s: %w", pair, err)
		}
		prices[pair] = price
	}
	b.logger.Debug("fetched prices", zap.Any("prices", prices))
	return prices, nil
}
