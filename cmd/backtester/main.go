package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ridopark/eventtrader/internal/config"
	"github.com/ridopark/eventtrader/internal/data"
	"github.com/ridopark/eventtrader/pkg/backtester"
	"github.com/ridopark/eventtrader/pkg/broker"
	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/feed"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/ridopark/eventtrader/pkg/portfolio"
	"github.com/ridopark/eventtrader/pkg/strategy"
	"github.com/ridopark/eventtrader/pkg/strategy/examples"
	"github.com/rs/zerolog"
)

func main() {
	// Load environment variables from .env file
	envLoaded, envErr := config.LoadDotEnv()

	configPath := flag.String("config", "", "Path to a YAML config file (TRADER_* env vars override it)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	closer := logging.Initialize(cfg.Logging)
	defer closer.Close()
	logger := logging.GetLogger("main")

	// Log environment loading status
	switch {
	case envErr != nil:
		logger.Warn().Err(envErr).Msg("Could not parse .env file, using system environment variables")
	case envLoaded:
		logger.Debug().Msg("Successfully loaded .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		stop()
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	engineCfg := cfg.Engine()

	provider, closeProvider, err := newProvider(ctx, cfg.Data)
	if err != nil {
		return err
	}
	defer closeProvider()

	dataFeed := feed.NewHistoricalFeed(provider, engineCfg.Symbols, engineCfg.Timeframe, engineCfg.StartDate, engineCfg.EndDate)
	if err := dataFeed.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to load market data: %w", err)
	}
	defer dataFeed.Close()

	commission, err := broker.ParseCommission(cfg.Broker.Commission, cfg.Broker.CommissionRate)
	if err != nil {
		return err
	}
	simBroker := broker.NewSimulatedBroker(dataFeed, commission, cfg.Broker.Slippage)

	pf, err := newPortfolio(cfg, dataFeed, simBroker)
	if err != nil {
		return err
	}

	strat, err := examples.New(cfg.Strategy, dataFeed)
	if err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}

	var opts []backtester.Option
	if engineCfg.Mode == backtester.ModeLive {
		opts = append(opts, backtester.WithPoller(feed.NewLivePoller(provider, dataFeed)))
	}
	engine, err := backtester.NewEngine(engineCfg, dataFeed, []strategy.Strategy{strat}, pf, simBroker, opts...)
	if err != nil {
		return err
	}

	logger.Info().
		Str("mode", string(engineCfg.Mode)).
		Strs("symbols", engineCfg.Symbols).
		Str("strategy", strat.GetName()).
		Str("source", cfg.Data.Source).
		Float64("initial_capital", engineCfg.InitialCapital).
		Str("commission", cfg.Broker.Commission).
		Float64("slippage", cfg.Broker.Slippage).
		Msg("Running engine")

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("engine stopped: %w", err)
	}

	results, err := engine.Results()
	if err != nil {
		return err
	}
	fmt.Println(results.Summary())

	if path := cfg.Output.EquityCurve; path != "" {
		if err := results.WriteEquityCurveCSV(path); err != nil {
			return err
		}
		logger.Info().Str("path", path).Int("rows", len(results.EquityCurve)).Msg("Equity curve written")
	}
	return nil
}

func newProvider(ctx context.Context, cfg config.DataConfig) (feed.HistoricalDataProvider, func(), error) {
	var (
		provider feed.HistoricalDataProvider
		closers  []io.Closer
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	switch cfg.Source {
	case "csv":
		csvProvider, err := data.NewCSVProvider(cfg.CSVDir)
		if err != nil {
			return nil, nil, err
		}
		provider = csvProvider
	default:
		db, err := data.NewTimescaleDBProvider(ctx, cfg.Postgres.ConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create data provider: %w", err)
		}
		closers = append(closers, db)
		provider = db
	}

	if cfg.CacheDSN != "" {
		store, err := data.NewSQLiteStore(ctx, cfg.CacheDSN)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, store)
		provider = data.NewCachingProvider(provider, store)
	}
	return provider, closeAll, nil
}

func newPortfolio(cfg *config.Config, dh feed.DataHandler, sink portfolio.LimitOrderSink) (*portfolio.Portfolio, error) {
	sizing, err := portfolio.ParseSizing(cfg.Portfolio.Sizing, cfg.Portfolio.SizingValue)
	if err != nil {
		return nil, err
	}
	policy, err := portfolio.ParseOrderPolicy(cfg.Portfolio.Policy)
	if err != nil {
		return nil, err
	}
	rebalance, err := portfolio.ParseRebalance(cfg.Portfolio.Rebalance)
	if err != nil {
		return nil, err
	}

	return portfolio.NewPortfolio(portfolio.Config{
		InitialCapital: cfg.InitialCapital,
		StartDate:      cfg.StartDate,
		Sizing:         sizing,
		OrderKind:      event.OrderKind(cfg.Portfolio.OrderKind),
		LimitExpiry:    cfg.Portfolio.LimitExpiry,
	}, dh, policy, rebalance, sink)
}
