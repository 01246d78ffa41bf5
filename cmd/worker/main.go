// Package main runs the background worker that sweeps completed gigs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campus-gigs/backend/config"
	"github.com/campus-gigs/backend/internal/gigs"
	"github.com/campus-gigs/backend/internal/realtime"
	"github.com/campus-gigs/backend/internal/sweeper"
	"github.com/campus-gigs/backend/pkg/database"
	"github.com/campus-gigs/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	// One sweep at a time needs few connections.
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        min(cfg.Database.MaxConns, 2),
		MaxConnIdleTime: time.Duration(cfg.Database.MaxConnIdleMin) * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	// Without Redis, connected clients see the sweep on the next change.
	var publisher sweeper.ChangePublisher
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: 2,
		}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		publisher = realtime.NewRedisPubSub(rdb.Client, logger)
	}

	retention := time.Duration(cfg.Retention.CompletedHours) * time.Hour
	sw := sweeper.New(gigs.NewRepository(pool), publisher, retention, logger)

	sched, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := time.Duration(cfg.Retention.IntervalMin) * time.Minute
	if _, err := sw.Schedule(workerCtx, sched, interval); err != nil {
		logger.Fatal("schedule sweep", zap.Error(err))
	}
	sched.Start()
	logger.Info("worker started", zap.Duration("interval", interval), zap.Duration("retention", retention))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
