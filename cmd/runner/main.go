// The runner is the in-process alternative to an external cron scheduler:
// it invokes the consumer tick on a fixed interval. Overlap with HTTP-driven
// ticks is safe; the queue's lock protocol resolves it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stageflow/stageflow/pkg/config"
	"github.com/stageflow/stageflow/pkg/consumer"
	"github.com/stageflow/stageflow/pkg/eventbus"
	"github.com/stageflow/stageflow/pkg/metrics"
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
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redis, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	bus := eventbus.NewBus(redis.Client())

	queue := postgres.NewQueueRepository(db.DB(), cfg.Queue.LockTimeout)
	workflows := postgres.NewWorkflowRepository(db.DB())
	runs := postgres.NewRunRepository(db.DB())

	evaluator := trigger.NewEvaluator(workflows, runs, bus, logger)
	cons := consumer.New(queue, evaluator, logger, cfg.Queue.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Info("runner starting", zap.Duration("poll_interval", cfg.Queue.PollInterval))

		ticker := time.NewTicker(cfg.Queue.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := cons.Tick(ctx); err != nil {
					logger.Error("tick failed", zap.Error(err))
				}
				if depth, err := queue.Depth(ctx); err == nil {
					metrics.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("runner shutting down")
}
