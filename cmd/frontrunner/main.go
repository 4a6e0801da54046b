package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontrunner/internal/arbitrage"
	"frontrunner/internal/chain"
	"frontrunner/internal/config"
	"frontrunner/internal/database"
	"frontrunner/internal/events"
	"frontrunner/internal/exchange"
	"frontrunner/internal/heartbeat"
	"frontrunner/internal/logging"
	"frontrunner/internal/model"
	"frontrunner/internal/plexer"
	"frontrunner/internal/pricefeed"
	"frontrunner/internal/state"
	"frontrunner/internal/status"
)

// engine is the strategy-independent view of an arbitrage.Engine.
type engine interface {
	plexer.Decider
	status.TradeLister
	Rehydrate(ctx context.Context) error
}

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	var alerter logging.Alerter
	if cfg.Alert.WebhookURL != "" {
		alerter = logging.NewWebhookAlerter(cfg.Alert.WebhookURL, &http.Client{Timeout: cfg.Alert.Timeout})
	}
	logger, err := logging.New(cfg.Log, alerter, cfg.Alert)
	if err != nil {
		log.Fatalf("cannot build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("frontrunner stopped", zap.Error(err))
	}
	logger.Info("frontrunner stopped")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	pairs, err := cfg.App.ParsedPairs()
	if err != nil {
		return err
	}
	logger.Info("starting frontrunner",
		zap.String("network", cfg.App.Network),
		zap.String("strategy", cfg.App.Strategy),
		zap.Bool("testing", cfg.App.Testing),
		zap.Strings("pairs", cfg.App.Pairs),
	)

	// Storage
	if err := database.Migrate(cfg.Database.DSN()); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer pool.Close()

	// Chain
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Chain.RPCURL, err)
	}
	defer client.Close()

	oracle, err := chain.NewOracleReader(logger, client, cfg.Chain, pairs, cfg.App.Concurrency)
	if err != nil {
		return err
	}
	var rates chain.RateReader
	if cfg.Chain.ExchangeRates != "" {
		if rates, err = chain.NewSynthRates(client, cfg.Chain.ExchangeRates, cfg.App.Concurrency); err != nil {
			return err
		}
	}

	executor, err := newExecutor(logger, cfg, client)
	if err != nil {
		return err
	}
	eng := newEngine(logger, cfg, pairs, pool, executor)
	if err := eng.Rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}

	// Pipeline
	bus := events.NewBus(logger, 64)
	store := state.NewStore()
	plex, err := plexer.New(logger, bus, store, eng, pairs, cfg.App.HeartbeatLogUpdate)
	if err != nil {
		return err
	}
	if _, err := pricefeed.NewProcessor(logger, bus, pairs); err != nil {
		return err
	}
	if err := bus.Subscribe(events.BitfinexTrade, "trade_log", func(_ context.Context, ev events.Event) error {
		logger.Debug("bitfinex trade", zap.Any("trade", ev.Payload))
		return nil
	}); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.App.FetchPriceTimeout}
	sources, err := exchange.NewSources(logger, httpClient, cfg.Sources, pairs)
	if err != nil {
		return err
	}
	aggregator := pricefeed.NewAggregator(logger, sources, pairs, cfg.App.Concurrency, cfg.App.FetchPriceTimeout)
	beat := heartbeat.New(logger, aggregator, bus, cfg.App.Heartbeat)

	watcher := chain.NewBlockWatcher(logger, client, chain.NewNewBlockPublisher(logger, oracle, rates, bus, pairs))
	statusSrv := status.NewServer(logger, cfg.Status.Addr, cfg.App.Strategy, store, eng, pairs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(statusSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return statusSrv.Shutdown(shutdownCtx)
	})
	if src, ok := cfg.Sources["bitfinex"]; ok && src.Enabled && src.WSURL != "" {
		stream := exchange.NewBitfinexStream(logger, src.WSURL, pairs)
		g.Go(func() error { return streamTrades(gctx, stream, bus) })
	}
	if err := beat.Start(gctx); err != nil {
		return err
	}

	err = g.Wait()
	logger.Info("shutting down")
	beat.Stop()
	bus.Close()
	plex.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newExecutor(logger *zap.Logger, cfg config.Config, client *ethclient.Client) (arbitrage.Executor, error) {
	if cfg.App.Testing {
		return arbitrage.SimulatedExecutor{Delay: cfg.App.SimulatedTradeDelay}, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.Chain.ChainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	return chain.NewSynthExchanger(logger, client, cfg.Chain.Synthetix, opts)
}

func newEngine(logger *zap.Logger, cfg config.Config, pairs []model.Pair, pool *pgxpool.Pool, exec arbitrage.Executor) engine {
	if cfg.App.Strategy == config.StrategyRoam {
		strategy := arbitrage.NewRoamStrategy(logger, &database.PostgresRoamTradeRepository{Pool: pool}, exec, arbitrage.RoamParams{
			Pairs:        pairs,
			Threshold:    cfg.App.DivergenceThreshold,
			StartSymbol:  cfg.App.RoamStartSymbol,
			PositionSize: cfg.App.PositionSize,
			Network:      cfg.App.Network,
			Testing:      cfg.App.Testing,
		})
		return arbitrage.NewEngine[model.RoamTrade](logger, strategy)
	}

	var threshold arbitrage.Threshold = arbitrage.GlobalThreshold(cfg.App.DivergenceThreshold)
	if cfg.App.ThresholdMode == config.ThresholdDeviation {
		threshold = arbitrage.DeviationTable(cfg.Chain.Deviations(pairs))
	}
	strategy := arbitrage.NewOpenCloseStrategy(logger, &database.PostgresTradeRepository{Pool: pool}, exec, arbitrage.OpenCloseParams{
		Pairs:            pairs,
		Threshold:        threshold,
		PositionSize:     cfg.App.PositionSize,
		SourceSymbol:     cfg.App.SourceSymbol,
		Network:          cfg.App.Network,
		Testing:          cfg.App.Testing,
		CloseConcurrency: cfg.App.Concurrency,
	})
	return arbitrage.NewEngine[model.Trade](logger, strategy)
}

// streamTrades forwards Bitfinex trades to the bus until ctx is done.
func streamTrades(ctx context.Context, stream exchange.TradeStream, bus *events.Bus) error {
	ticks := make(chan model.PriceTick, 64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ticks:
				_ = bus.Publish(ctx, events.Event{Kind: events.BitfinexTrade, Payload: tick})
			}
		}
	}()
	return stream.StartStream(ctx, ticks)
}
