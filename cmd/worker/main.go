// Package main runs the background job worker (poll finalization, group provisioning).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/confera/backend/config"
	"github.com/confera/backend/internal/analytics"
	"github.com/confera/backend/internal/conferences"
	"github.com/confera/backend/internal/groups"
	"github.com/confera/backend/internal/questions"
	"github.com/confera/backend/internal/worker"
	"github.com/confera/backend/pkg/database"
	"github.com/confera/backend/pkg/queue"
	"github.com/confera/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	questionRepo := questions.NewRepository(pool)
	analyticsRepo := analytics.NewRepository(pool)
	confRepo := conferences.NewRepository(pool)
	groupRepo := groups.NewRepository(pool)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	finalizer := worker.NewFinalizer(questionRepo, analyticsRepo, logger)
	processor := worker.NewProcessor(finalizer, confRepo, groupRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
