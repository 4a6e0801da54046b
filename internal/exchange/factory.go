package exchange

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"frontrunner/internal/config"
	"frontrunner/internal/model"
)

// ErrUnknownSource is returned for a source name with no client.
var ErrUnknownSource = errors.New("unknown price source")

// NewSource creates a price source based on the given name and configuration.
func NewSource(name string, logger *zap.Logger, client *http.Client, cfg config.SourceConfig, pairs []model.Pair) (PriceSource, error) {
	if client == nil {
		client = http.DefaultClient
	}
	switch name {
	case "coinbase":
		return NewCoinbaseSource(logger, client, cfg.BaseURL, pairs), nil
	case "kraken":
		return NewKrakenSource(logger, client, cfg.BaseURL, pairs), nil
	case "bitfinex":
		return NewBitfinexSource(logger, client, cfg.BaseURL, pairs), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
}

// NewSources creates every enabled source, in name order.
func NewSources(logger *zap.Logger, client *http.Client, cfgs map[string]config.SourceConfig, pairs []model.Pair) ([]PriceSource, error) {
	names := make([]string, 0, len(cfgs))
	for name, c := range cfgs {
		if c.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	sources := make([]PriceSource, 0, len(names))
	for _, name := range names {
		s, err := NewSource(name, logger, client, cfgs[name], pairs)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, nil
}
