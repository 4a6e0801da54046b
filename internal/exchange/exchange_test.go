package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"frontrunner/internal/config"
	"frontrunner/internal/model"
)

var coinbaseFixture = map[string]string{
	"BTC":  "44420.54",
	"ETH":  "3101.06",
	"LINK": "24.34831",
	"UNI":  "27.7587",
	"AAVE": "374.85",
}

const krakenFixture = `{"error":[],"result":{
	"AAVEUSD":{"c":["374.51000","0.1"]},
	"LINKUSD":{"c":["24.330690","3.2"]},
	"UNIUSD":{"c":["27.74000","1.0"]},
	"XETHZUSD":{"c":["3100.62000","0.02"]},
	"XXBTZUSD":{"c":["44373.70000","0.001"]}}}`

const bitfinexFixture = `[
	["tBTCUSD",44330,1,44331,1,0,0,44331,100,45000,44000],
	["tETHUSD",3096,1,3096.4,1,0,0,3096.3,100,3200,3000],
	["tLINK:USD",24.27,1,24.29,1,0,0,24.28,100,25,24],
	["tUNIUSD",27.7,1,27.71,1,0,0,27.703,100,28,27],
	["tAAVE:USD",374.4,1,374.5,1,0,0,374.44,100,380,370]]`

func TestCoinbaseSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/prices/"), "-USD/spot")
		amount, ok := coinbaseFixture[base]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"data":{"base":%q,"currency":"USD","amount":%q}}`, base, amount)
	}))
	defer srv.Close()

	src := NewCoinbaseSource(zap.NewNop(), srv.Client(), srv.URL, model.AllPairs)
	prices, err := src.FetchPrices(context.Background())
	require.NoError(t, err)

	assert.Len(t, prices, 5)
	assert.Equal(t, 44420.54, prices[model.BTCUSD])
	assert.Equal(t, 24.34831, prices[model.LINKUSD])
}

func TestKrakenSource(t *testing.T) {
	t.Run("normalizes result keys", func(t *testing.T) {
		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("pair")
			fmt.Fprint(w, krakenFixture)
		}))
		defer srv.Close()

		src := NewKrakenSource(zap.NewNop(), srv.Client(), srv.URL, model.AllPairs)
		prices, err := src.FetchPrices(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "XBTUSD,ETHUSD,LINKUSD,UNIUSD,AAVEUSD", gotQuery)
		assert.Equal(t, map[model.Pair]float64{
			model.BTCUSD:  44373.7,
			model.ETHUSD:  3100.62,
			model.LINKUSD: 24.33069,
			model.UNIUSD:  27.74,
			model.AAVEUSD: 374.51,
		}, prices)
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error":["EGeneral:Too many requests"]}`)
		}))
		defer srv.Close()

		_, err := NewKrakenSource(zap.NewNop(), srv.Client(), srv.URL, model.AllPairs).FetchPrices(context.Background())
		assert.ErrorContains(t, err, "Too many requests")
	})
}

func TestBitfinexSource(t *testing.T) {
	t.Run("last price column", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "tBTCUSD,tETHUSD,tLINK:USD,tUNIUSD,tAAVE:USD", r.URL.Query().Get("symbols"))
			fmt.Fprint(w, bitfinexFixture)
		}))
		defer srv.Close()

		prices, err := NewBitfinexSource(zap.NewNop(), srv.Client(), srv.URL, model.AllPairs).FetchPrices(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 44331.0, prices[model.BTCUSD])
		assert.Equal(t, 24.28, prices[model.LINKUSD])
		assert.Equal(t, 374.44, prices[model.AAVEUSD])
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewBitfinexSource(zap.NewNop(), srv.Client(), srv.URL, model.AllPairs).FetchPrices(context.Background())
		assert.Error(t, err)
	})
}

func TestNewSources(t *testing.T) {
	sources, err := NewSources(zap.NewNop(), nil, map[string]config.SourceConfig{
		"kraken":   {Enabled: true},
		"coinbase": {Enabled: true},
		"bitfinex": {Enabled: false},
	}, model.AllPairs)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "coinbase", sources[0].Name())
	assert.Equal(t, "kraken", sources[1].Name())

	_, err = NewSource("binance", zap.NewNop(), nil, config.SourceConfig{}, model.AllPairs)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestBitfinexStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var sub map[string]string
		if err := c.ReadJSON(&sub); err != nil {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribed","channel":"trades","chanId":17,"symbol":"tBTCUSD"}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`[17,[[1,1600000000000,0.5,44000]]]`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`[17,"hb"]`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`[17,"te",[2,1600000000001,-0.25,44010.5]]`))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ticks := make(chan model.PriceTick, 1)
	stream := NewBitfinexStream(zap.NewNop(), "ws"+strings.TrimPrefix(srv.URL, "http"), []model.Pair{model.BTCUSD})
	done := make(chan error, 1)
	go func() { done <- stream.StartStream(ctx, ticks) }()

	select {
	case tick := <-ticks:
		assert.Equal(t, model.PriceTick{Exchange: "bitfinex", Pair: model.BTCUSD, Price: 44010.5, Amount: -0.25, Timestamp: 1600000000001}, tick)
	case <-ctx.Done():
		t.Fatal("no trade received")
	}

	cancel()
	assert.NoError(t, <-done)
}
