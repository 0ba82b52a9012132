package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lp-hedge-backtest/internal/app"
	"lp-hedge-backtest/internal/config"
	"lp-hedge-backtest/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	csvPath := flag.String("csv", "", "read prices from this timestamp,price file instead of the API")
	ethAmount := flag.Float64("eth", 0, "override backtest.eth_amount")
	threshold := flag.Float64("threshold", 0, "override strategy.rebalance_threshold")
	outPath := flag.String("out", "", "override backtest.output_csv")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *csvPath != "" {
		cfg.Data.Source = config.SourceCSV
		cfg.Data.CSVPath = *csvPath
	}
	if *ethAmount > 0 {
		cfg.Backtest.EthAmount = *ethAmount
	}
	if *threshold > 0 {
		cfg.Strategy.Threshold = *threshold
	}
	if *outPath != "" {
		cfg.Backtest.OutputCSV = *outPath
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("config loaded", zap.String("path", *configPath))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, application); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("backtest failed", zap.Error(err))
		_ = application.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, application *app.App) error {
	points, err := application.LoadPrices(ctx)
	if err != nil {
		return err
	}
	_, err = application.RunBacktest(ctx, points)
	return err
}
