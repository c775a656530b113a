// Command ingest loads dataset CSVs into the ClickHouse bars table so the
// backtest can run with -source clickhouse.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sp500-backtest/services/clickhouse"
	"sp500-backtest/services/config"
	"sp500-backtest/services/marketdata"
)

func main() {
	configPath := flag.String("config", "config/settings.json", "Settings file (JSON)")
	assets := flag.String("assets", strings.Join(marketdata.Assets, ","), "Comma-separated assets to ingest")
	dataDir := flag.String("data-dir", "", "Dataset directory; overrides settings")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.ClickHouse.Enabled() {
		logger.Fatal("clickhouse.addr is empty")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse)
	if err != nil {
		logger.Fatal("Failed to create ClickHouse client", zap.Error(err))
	}
	defer ch.Close()

	table := cfg.ClickHouse.Table
	if err := marketdata.EnsureBarsTable(ctx, ch, table); err != nil {
		logger.Fatal("Failed to ensure schema", zap.Error(err))
	}

	version := uint64(time.Now().UnixMilli())
	src := marketdata.CSVSource{Dir: cfg.DataDir}
	failed := 0
	for _, asset := range strings.Split(*assets, ",") {
		asset = strings.TrimSpace(asset)
		if asset == "" {
			continue
		}
		start := time.Now()
		bars, err := src.Load(ctx, asset)
		if err == nil {
			err = marketdata.Ingest(ctx, ch, table, asset, bars, version)
		}
		if err != nil {
			failed++
			logger.Error("Ingest failed", zap.String("asset", asset), zap.Error(err))
			continue
		}
		logger.Info("Ingested",
			zap.String("asset", asset),
			zap.String("table", table),
			zap.Int("bars", len(bars)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	if failed > 0 {
		logger.Fatal("Some assets failed to ingest", zap.Int("failed", failed))
	}
}
