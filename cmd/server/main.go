// Package main runs the conference polling HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/confera/backend/config"
	"github.com/confera/backend/internal/analytics"
	"github.com/confera/backend/internal/auth"
	"github.com/confera/backend/internal/conferences"
	"github.com/confera/backend/internal/groups"
	"github.com/confera/backend/internal/middleware"
	"github.com/confera/backend/internal/polling"
	"github.com/confera/backend/internal/questions"
	"github.com/confera/backend/internal/realtime"
	"github.com/confera/backend/internal/worker"
	"github.com/confera/backend/pkg/database"
	"github.com/confera/backend/pkg/queue"
	"github.com/confera/backend/pkg/redis"
	"github.com/confera/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis is optional: without it every fast-state service runs in-memory
	// and the deployment is single-process.
	rdb := redis.NewOptional(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Repositories
	authRepo := auth.NewRepository(pool)
	confRepo := conferences.NewRepository(pool)
	groupRepo := groups.NewRepository(pool)
	questionRepo := questions.NewRepository(pool)
	analyticsRepo := analytics.NewRepository(pool)

	// Fast-state services: Redis-backed when available, in-memory otherwise.
	var (
		locker    polling.Locker
		registry  polling.Registry
		lifecycle polling.Lifecycle
		stats     polling.Stats
		presence  polling.Presence
		jobQueue  *queue.Queue
		sink      polling.FinalizeSink
		pub       realtime.RedisPublisher
		sub       realtime.RedisSubscriber
	)
	finalizer := worker.NewFinalizer(questionRepo, analyticsRepo, logger)
	if rdb != nil {
		locker = polling.NewRedisLocker(rdb.Client)
		registry = polling.NewRedisRegistry(rdb.Client, confRepo)
		lifecycle = polling.NewRedisLifecycle(rdb.Client)
		stats = polling.NewRedisStats(rdb.Client)
		presence = polling.NewRedisPresence(rdb.Client)
		jobQueue = queue.NewQueue(rdb.Client, logger)
		sink = worker.NewQueueSink(jobQueue)
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		pub, sub = pubsub, pubsub
	} else {
		locker = polling.NewMemoryLocker()
		registry = polling.NewMemoryRegistry(confRepo)
		lifecycle = polling.NewMemoryLifecycle()
		stats = polling.NewMemoryStats()
		presence = polling.NewMemoryPresence()
		sink = finalizer
	}
	ledger := polling.NewPostgresLedger(pool)

	hub := realtime.NewHub(logger, pub, sub)
	coordinator := polling.NewCoordinator(polling.Deps{
		Logger:      logger,
		Locker:      locker,
		Registry:    registry,
		Lifecycle:   lifecycle,
		Stats:       stats,
		Presence:    presence,
		Ledger:      ledger,
		Questions:   questionRepo,
		Broadcaster: hub,
		Sink:        sink,
	}, polling.Options{
		DefaultDuration: time.Duration(cfg.Polling.DefaultQuestionSeconds) * time.Second,
		PushLockTTL:     time.Duration(cfg.Polling.PushLockSeconds) * time.Second,
		VoteLockTTL:     time.Duration(cfg.Polling.VoteLockSeconds) * time.Second,
		SlideLockTTL:    time.Duration(cfg.Polling.SlideLockMillis) * time.Millisecond,
		CleanupDelay:    time.Duration(cfg.Polling.CleanupDelaySeconds) * time.Second,
		VotedRetention:  time.Duration(cfg.Polling.VotedRetentionMinutes) * time.Minute,
	})
	defer coordinator.Shutdown()

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	confHandler := conferences.NewHandler(confRepo, groupRepo, registry, coordinator, jobQueue, logger)
	questionHandler := questions.NewHandler(questionRepo, confRepo, logger)
	analyticsHandler := analytics.NewHandler(analyticsRepo, confRepo)

	jwtValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Conferences
		api.GET("/conferences", confHandler.List)
		api.POST("/conferences", middleware.RequireRole("host", "speaker"), confHandler.Create)
		api.GET("/conferences/code/:code", confHandler.GetByCode)
		api.GET("/conferences/:id", confHandler.GetByID)
		api.PUT("/conferences/:id", confHandler.Update)
		api.DELETE("/conferences/:id", confHandler.Delete)
		api.POST("/conferences/:id/activate", confHandler.Activate)
		api.POST("/conferences/:id/end", confHandler.End)
		api.POST("/conferences/:id/speakers", confHandler.AddSpeaker)
		api.GET("/conferences/:id/speakers", confHandler.ListSpeakers)

		// Questions
		api.POST("/conferences/:id/questions", middleware.RequireRole("host", "speaker"), questionHandler.Create)
		api.GET("/conferences/:id/questions", middleware.RequireRole("host", "speaker"), questionHandler.List)
		api.PUT("/questions/:id", middleware.RequireRole("host", "speaker"), questionHandler.Update)
		api.DELETE("/questions/:id", middleware.RequireRole("host", "speaker"), questionHandler.Delete)

		// Analytics
		api.GET("/conferences/:id/analytics", analyticsHandler.ListByConference)
		api.GET("/conferences/:id/analytics/summary", analyticsHandler.Summary)
		api.GET("/questions/:id/analytics", analyticsHandler.GetByQuestion)
	}

	// WebSocket (token in query; browsers cannot set headers on WS dials)
	router.GET("/ws", realtime.ServeWs(hub, coordinator, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Without Redis there is no worker binary consuming the queue, so the
	// finalize processor is unnecessary; the inline sink already persisted.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if jobQueue != nil && os.Getenv("INLINE_WORKER") == "true" {
		processor := worker.NewProcessor(finalizer, confRepo, groupRepo, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("inline worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
