package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"frontrunner/internal/model"
)

// PriceSource fetches the latest USD price of every pair it recognizes.
type PriceSource interface {
	Name() string
	FetchPrices(ctx context.Context) (map[model.Pair]float64, error)
}

// TradeStream streams trade prints from an exchange until ctx is done.
type TradeStream interface {
	Name() string
	StartStream(ctx context.Context, ticks chan<- model.PriceTick) error
}

// getJSON performs a GET and returns the parsed body. Non-2xx responses are errors.
func getJSON(ctx context.Context, client *http.Client, url string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("GET %s: invalid json", url)
	}
	return gjson.ParseBytes(body), nil
}

// parsePrice reads a price that may be encoded as a JSON string or number.
func parsePrice(v gjson.Result) (float64, error) {
	if !v.Exists() {
		return 0, fmt.Errorf("price missing")
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", v.String(), err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("non-positive price %s", d)
	}
	return d.InexactFloat64(), nil
}
