// Package main implements the backtesting service: the REST API for the
// dashboard and a gRPC health endpoint
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"sp500-backtest/services/api"
	"sp500-backtest/services/arrowpipeline"
	"sp500-backtest/services/clickhouse"
	"sp500-backtest/services/config"
	"sp500-backtest/services/journal"
	"sp500-backtest/services/marketdata"
	"sp500-backtest/services/monitoring"
)

func main() {
	configPath := flag.String("config", "config/settings.json", "Settings file (JSON)")
	source := flag.String("source", "csv", "Bar source: csv or clickhouse")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtesting service",
		zap.String("environment", cfg.Environment),
		zap.String("source", *source),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var ch *clickhouse.Client
	if cfg.ClickHouse.Enabled() {
		ch, err = clickhouse.NewClient(ctx, cfg.ClickHouse)
		if err != nil {
			logger.Fatal("Failed to create ClickHouse client", zap.Error(err))
		}
		defer ch.Close()
	}

	var bars marketdata.Source
	switch *source {
	case "csv":
		bars = marketdata.CSVSource{Dir: cfg.DataDir}
	case "clickhouse":
		if ch == nil {
			logger.Fatal("ClickHouse source requested but clickhouse.addr is empty")
		}
		src, err := marketdata.NewClickHouseSource(ch, cfg.ClickHouse.Table)
		if err != nil {
			logger.Fatal("Failed to create ClickHouse source", zap.Error(err))
		}
		bars = src
	default:
		logger.Fatal("Unknown source", zap.String("source", *source))
	}

	var ins journal.Inserter
	if ch != nil {
		ins = ch
	}
	sinks, err := journal.Open(ctx, cfg.Journal, ins, logger)
	if err != nil {
		logger.Fatal("Failed to open journal sinks", zap.Error(err))
	}
	defer sinks.Close()

	service := api.NewService(cfg, api.Deps{
		Source:    bars,
		Exporters: sinks.Exporters,
		Pipeline:  arrowpipeline.NewPipeline(arrowpipeline.Config{}, logger),
		Metrics:   monitoring.New(),
		Logger:    logger,
	})

	grpcServer, healthServer := newGRPCServer()

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           service.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on gRPC port: %w", err)
		}
		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve HTTP: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers...")
		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Servers stopped")
}

// newGRPCServer registers health and reflection only. Health is reported for
// the whole server ("") since no other gRPC service is registered.
func newGRPCServer() (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)
	return grpcServer, healthServer
}
