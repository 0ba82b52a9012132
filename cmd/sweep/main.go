package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"lp-hedge-backtest/internal/app"
	"lp-hedge-backtest/internal/config"
	"lp-hedge-backtest/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	csvPath := flag.String("csv", "", "read prices from this timestamp,price file instead of the API")
	ethAmounts := flag.String("eth", "", "comma separated eth amounts, overrides sweep.eth_amounts")
	thresholds := flag.String("thresholds", "", "comma separated thresholds, overrides sweep.thresholds")
	workers := flag.Int("workers", 0, "override sweep.workers")
	outPath := flag.String("out", "", "override sweep.output_csv")
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
	if err := overrideFloats(&cfg.Sweep.EthAmounts, *ethAmounts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -eth: %v\n", err)
		os.Exit(2)
	}
	if err := overrideFloats(&cfg.Sweep.Thresholds, *thresholds); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -thresholds: %v\n", err)
		os.Exit(2)
	}
	if *workers > 0 {
		cfg.Sweep.Workers = *workers
	}
	if *outPath != "" {
		cfg.Sweep.OutputCSV = *outPath
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

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := application.ServeMetrics(metricsCtx); err != nil {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	err = run(ctx, application)
	stopMetrics()
	<-metricsDone
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("sweep failed", zap.Error(err))
		_ = application.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, application *app.App) error {
	points, err := application.LoadPrices(ctx)
	if err != nil {
		return err
	}
	_, err = application.RunSweep(ctx, points)
	return err
}

func overrideFloats(dst *[]float64, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	*dst = out
	return nil
}
