package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stageflow/stageflow/pkg/apiserver"
	"github.com/stageflow/stageflow/pkg/config"
	"github.com/stageflow/stageflow/pkg/consumer"
	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/store/postgres"
	redisclient "github.com/stageflow/stageflow/pkg/store/redis"
	"github.com/stageflow/stageflow/pkg/trigger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	redis, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	bus := eventbus.NewBus(redis.Client())

	queue := postgres.NewQueueRepository(db.DB(), cfg.Queue.LockTimeout)
	workflows := postgres.NewWorkflowRepository(db.DB())
	runs := postgres.NewRunRepository(db.DB())

	evaluator := trigger.NewEvaluator(workflows, runs, bus, logger)
	cons := consumer.New(queue, evaluator, logger, cfg.Queue.BatchSize)

	server := apiserver.NewServer(queue, cons, evaluator, cfg, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.ReadTimeout * 2,
	}

	go func() {
		logger.Info("Starting API server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("Starting metrics listener", zap.Int("port", cfg.Server.MetricsPort))
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics listener error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
