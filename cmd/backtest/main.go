// Command backtest runs one backtest from the settings file and prints the
// summary, optionally writing the trade log, equity curve and Arrow series.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sp500-backtest/services/arrowpipeline"
	"sp500-backtest/services/clickhouse"
	"sp500-backtest/services/config"
	"sp500-backtest/services/engine"
	"sp500-backtest/services/journal"
	"sp500-backtest/services/marketdata"
	"sp500-backtest/services/report"
)

func main() {
	configPath := flag.String("config", "config/settings.json", "Settings file (JSON)")
	asset := flag.String("asset", "", "Asset to test; overrides settings")
	dataDir := flag.String("data-dir", "", "Dataset directory; overrides settings")
	csvPath := flag.String("csv", "", "Path to a local CSV; skips the dataset lookup")
	source := flag.String("source", "csv", "Bar source: csv or clickhouse")
	from := flag.String("from", "", "ClickHouse window start (inclusive)")
	to := flag.String("to", "", "ClickHouse window end (exclusive)")
	capital := flag.Float64("capital", 0, "Starting capital; overrides settings")
	outCSV := flag.String("out", "", "Write the trade log with a summary block to this CSV")
	equityCSV := flag.String("equity", "", "Write the annotated series and equity curve to this CSV")
	arrowOut := flag.String("arrow", "", "Write the annotated series as an Arrow IPC stream")
	logJournal := flag.Bool("journal", false, "Send trades to the configured journal sinks")
	show := flag.Int("trades", 20, "Trades to print (0 hides the table)")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *asset != "" {
		settings.Asset = *asset
	}
	if *dataDir != "" {
		settings.DataDir = *dataDir
	}
	if *capital != 0 {
		settings.StartingCapital = *capital
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	logger, err := config.NewLogger(settings.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connected only when bars or the journal need it
	var ch *clickhouse.Client
	if *source == "clickhouse" || settings.Journal.ClickHouseTable != "" {
		if !settings.ClickHouse.Enabled() {
			logger.Fatal("ClickHouse requested but clickhouse.addr is empty")
		}
		ch, err = clickhouse.NewClient(ctx, settings.ClickHouse)
		if err != nil {
			logger.Fatal("Failed to create ClickHouse client", zap.Error(err))
		}
		defer ch.Close()
	}

	bars, err := loadBars(ctx, settings, ch, *source, *csvPath, *from, *to)
	if err != nil {
		logger.Fatal("Failed to load market data", zap.String("asset", settings.Asset), zap.Error(err))
	}

	res, err := engine.New(logger).Run(bars, settings.RunConfig())
	if err != nil {
		logger.Fatal("Backtest failed", zap.Error(err))
	}

	fmt.Printf("\n%s  %s  starting capital %s\n\n", settings.Asset, res.Rule,
		decimal.NewFromFloat(settings.StartingCapital).StringFixed(2))
	if err := report.PrintSummary(os.Stdout, res.Summary, res.Trades, *show); err != nil {
		logger.Fatal("Failed to print summary", zap.Error(err))
	}

	if *outCSV != "" {
		if err := report.ExportCSV(*outCSV, res); err != nil {
			logger.Fatal("Failed to export trades", zap.Error(err))
		}
		logger.Info("Trades exported", zap.String("path", *outCSV))
	}
	if *equityCSV != "" {
		if err := report.ExportEquityCSV(*equityCSV, res.Series); err != nil {
			logger.Fatal("Failed to export equity curve", zap.Error(err))
		}
		logger.Info("Equity curve exported", zap.String("path", *equityCSV))
	}
	if *arrowOut != "" {
		if err := writeArrow(ctx, *arrowOut, res, logger); err != nil {
			logger.Fatal("Failed to export Arrow series", zap.Error(err))
		}
		logger.Info("Arrow series exported", zap.String("path", *arrowOut))
	}

	if *logJournal {
		var ins journal.Inserter
		if ch != nil {
			ins = ch
		}
		sinks, err := journal.Open(ctx, settings.Journal, ins, logger)
		if err != nil {
			logger.Fatal("Failed to open journal", zap.Error(err))
		}
		defer sinks.Close()
		notices := journal.Publish(ctx, logger, journal.Record{
			RunID:     uuid.New().String(),
			Asset:     settings.Asset,
			Trades:    res.Trades,
			Summary:   res.Summary,
			CreatedAt: time.Now().UTC(),
		}, sinks.Exporters...)
		for _, n := range notices {
			fmt.Fprintf(os.Stderr, "journal: %s\n", n)
		}
	}
}

func loadBars(ctx context.Context, s *config.Settings, ch *clickhouse.Client, source, csvPath, from, to string) ([]engine.Bar, error) {
	if csvPath != "" {
		return marketdata.LoadCSV(csvPath)
	}
	switch source {
	case "csv":
		return marketdata.CSVSource{Dir: s.DataDir}.Load(ctx, s.Asset)
	case "clickhouse":
		src, err := marketdata.NewClickHouseSource(ch, s.ClickHouse.Table)
		if err != nil {
			return nil, err
		}
		if from != "" {
			if src.From, err = marketdata.ParseDate(from); err != nil {
				return nil, fmt.Errorf("-from: %w", err)
			}
		}
		if to != "" {
			if src.To, err = marketdata.ParseDate(to); err != nil {
				return nil, fmt.Errorf("-to: %w", err)
			}
		}
		return src.Load(ctx, s.Asset)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

func writeArrow(ctx context.Context, path string, res *engine.Result, logger *zap.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()
	return arrowpipeline.NewPipeline(arrowpipeline.Config{}, logger).WriteStream(ctx, f, res.Series)
}
