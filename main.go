package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"quotrading/config"
	"quotrading/internal/backtest"
	"quotrading/internal/confidence"
	"quotrading/internal/exits"
	"quotrading/internal/experience"
	"quotrading/internal/features"
	"quotrading/internal/feed"
	"quotrading/internal/indicators"
	"quotrading/internal/logging"
	"quotrading/internal/market"
	"quotrading/internal/regime"
	"quotrading/internal/similarity"
)

func main() {
	backtestFile := flag.String("backtest", "", "Run a backtest over the given CSV bar file instead of live trading")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Msg("Structured logging initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Experience stores, hydrated from the configured backend.
	store := experience.NewStore()
	exitStore := experience.NewExitStore()

	var fileStore *experience.FileStore
	var pgStore *experience.PostgresStore

	switch cfg.StoreConfig.Backend {
	case "file":
		fileStore = experience.NewFileStore(cfg.StoreConfig.FilePath, cfg.StoreConfig.ExitFilePath)
		if err := hydrateFromFile(fileStore, store, exitStore); err != nil {
			logger.Fatal().Err(err).Msg("Failed to load experience files")
		}
	case "postgres":
		pgStore, err = experience.NewPostgresStore(ctx, cfg.DatabaseConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to experience database")
		}
		defer pgStore.Close()
		if err := hydrateFromPostgres(ctx, pgStore, store, exitStore); err != nil {
			logger.Fatal().Err(err).Msg("Failed to load experience history")
		}
	case "memory":
		// Fresh session, nothing to hydrate.
	default:
		logger.Fatal().Str("backend", cfg.StoreConfig.Backend).Msg("Unknown store backend")
	}

	logger.Info().
		Str("backend", cfg.StoreConfig.Backend).
		Int("experiences", store.Len()).
		Int("exit_experiences", exitStore.Len()).
		Msg("Experience store ready")

	// Decision pipeline.
	detector := regime.NewDetector(cfg.RegimeConfig, logger)
	engine := similarity.NewEngine(cfg.SimilarityConfig)
	calculator := confidence.NewCalculator(cfg.ConfidenceConfig, engine, logger)

	patternSource := exits.NewPatternSource(cfg.ExitConfig, exitStore, logger)
	var exitSource exits.Source = patternSource
	if cfg.ExitConfig.ModelFile != "" {
		learned, err := exits.NewLearnedSource(cfg.ExitConfig.ModelFile, patternSource, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Exit model unavailable, running pattern-only")
		} else {
			exitSource = learned
			logger.Info().Str("model", cfg.ExitConfig.ModelFile).Msg("Learned exit source enabled")
		}
	}

	if *backtestFile != "" {
		runBacktest(cfg, *backtestFile, detector, calculator, exitSource, store, exitStore, logger, fileStore)
		return
	}

	runLive(ctx, cfg, detector, calculator, exitSource, store, exitStore, logger)
}

func hydrateFromFile(fs *experience.FileStore, store *experience.Store, exitStore *experience.ExitStore) error {
	experiences, err := fs.LoadExperiences()
	if err != nil {
		return err
	}
	exitRecords, err := fs.LoadExitExperiences()
	if err != nil {
		return err
	}
	store.Replace(experiences)
	exitStore.Replace(exitRecords)
	return nil
}

func hydrateFromPostgres(ctx context.Context, pg *experience.PostgresStore, store *experience.Store, exitStore *experience.ExitStore) error {
	experiences, err := pg.LoadExperiences(ctx)
	if err != nil {
		return err
	}
	exitRecords, err := pg.LoadExitExperiences(ctx)
	if err != nil {
		return err
	}
	store.Replace(experiences)
	exitStore.Replace(exitRecords)
	return nil
}

func runBacktest(
	cfg *config.Config,
	csvPath string,
	detector *regime.Detector,
	calculator *confidence.Calculator,
	exitSource exits.Source,
	store *experience.Store,
	exitStore *experience.ExitStore,
	logger zerolog.Logger,
	fileStore *experience.FileStore,
) {
	bars, err := market.LoadCSV(csvPath)
	if err != nil {
		logger.Fatal().Err(err).Str("file", csvPath).Msg("Failed to load bar data")
	}
	logger.Info().Int("bars", len(bars)).Str("file", csvPath).Msg("Bar data loaded")

	engine := backtest.NewEngine(cfg.BacktestConfig, detector, calculator, exitSource, store, exitStore, logger)
	result, err := engine.Run(bars, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Backtest failed")
	}

	printResults(result)

	if fileStore != nil {
		if err := fileStore.SaveExperiences(store.All()); err != nil {
			logger.Error().Err(err).Msg("Failed to save experiences")
		}
		if err := fileStore.SaveExitExperiences(exitStore.All()); err != nil {
			logger.Error().Err(err).Msg("Failed to save exit experiences")
		}
	}
}

func printResults(result *backtest.Result) {
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Total Trades: %d\n", result.TotalTrades)
	fmt.Printf("Skipped by Confidence Gate: %d\n", result.SkippedTrades)
	fmt.Printf("Winning Trades: %d (%.1f%%)\n", result.WinningTrades, result.WinRate)
	fmt.Printf("Losing Trades: %d\n", result.LosingTrades)
	fmt.Printf("Net Profit: $%.2f\n", result.NetProfit)
	fmt.Printf("ROI: %.2f%%\n", result.ROI)
	fmt.Printf("Profit Factor: %.2f\n", result.ProfitFactor)
	fmt.Printf("Max Drawdown: %.2f%%\n", result.MaxDrawdown)
	fmt.Printf("Average Win: $%.2f\n", result.AverageWin)
	fmt.Printf("Average Loss: $%.2f\n", result.AverageLoss)
	fmt.Printf("Sharpe Ratio: %.2f\n", result.SharpeRatio)

	fmt.Println("\n=== REGIME PERFORMANCE ===")
	for r, stats := range result.RegimeStats {
		fmt.Printf("%s: %d trades, %.1f%% win rate, Net: $%.2f\n",
			r, stats.TotalTrades, stats.WinRate, stats.NetProfit)
	}
}

func runLive(
	ctx context.Context,
	cfg *config.Config,
	detector *regime.Detector,
	calculator *confidence.Calculator,
	exitSource exits.Source,
	store *experience.Store,
	exitStore *experience.ExitStore,
	logger zerolog.Logger,
) {
	if !cfg.FeedConfig.Enabled {
		logger.Fatal().Msg("Live feed disabled and no -backtest file given")
	}

	// Shared experience view for multi-instance deployments.
	if cfg.RedisConfig.Enabled {
		cache := experience.NewSharedCache(cfg.RedisConfig, logger)
		defer cache.Close()

		if err := cache.Refresh(ctx, store, exitStore); err != nil {
			logger.Warn().Err(err).Msg("Initial shared refresh failed, starting from local state")
		}
		go cache.Run(ctx, store, exitStore)
		logger.Info().Msg("Shared experience cache enabled")
	}

	streamer := feed.NewStreamer(cfg.FeedConfig, logger)
	streamer.SetBarHandler(func(symbol string, bar market.Bar) {
		window := streamer.Window(symbol)
		if window == nil {
			return
		}
		bars := window.Bars()

		currentATR := indicators.CalculateATR(bars, cfg.RegimeConfig.ATRPeriod)
		r := detector.Detect(bars, currentATR)
		state := features.Extract(bars, features.AccountContext{Side: "long"}, r)
		decision := calculator.Evaluate(state, store)
		params := exitSource.Select(symbol, r, state)

		logger.Info().
			Str("symbol", symbol).
			Str("regime", string(r)).
			Float64("close", bar.Close).
			Float64("confidence", decision.Confidence).
			Bool("take_trade", decision.TakeTrade).
			Str("reason", decision.Reason).
			Float64("breakeven_ticks", params.BreakevenTicks).
			Float64("trailing_ticks", params.TrailingTicks).
			Msg("Decision")
	})

	logger.Info().
		Strs("symbols", cfg.FeedConfig.Symbols).
		Str("interval", cfg.FeedConfig.Interval).
		Msg("Starting live decision loop")

	if err := streamer.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Feed terminated")
		os.Exit(1)
	}

	logger.Info().Msg("Shutdown complete")
}
