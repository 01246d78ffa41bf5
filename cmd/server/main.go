// Package main runs the campus gigs HTTP server with WebSocket snapshots and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campus-gigs/backend/config"
	"github.com/campus-gigs/backend/internal/assistant"
	"github.com/campus-gigs/backend/internal/auth"
	"github.com/campus-gigs/backend/internal/gigs"
	"github.com/campus-gigs/backend/internal/middleware"
	"github.com/campus-gigs/backend/internal/realtime"
	"github.com/campus-gigs/backend/pkg/database"
	"github.com/campus-gigs/backend/pkg/redis"
	"github.com/campus-gigs/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnIdleTime: time.Duration(cfg.Database.MaxConnIdleMin) * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	gigRepo := gigs.NewRepository(pool)

	// Redis is only needed when several server instances share one database.
	var hub *realtime.Hub
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, gigRepo, redisPubSub, redisPubSub)
	} else {
		logger.Info("redis not configured, change fan-out is local only")
		hub = realtime.NewHub(logger, gigRepo, nil, nil)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Gigs
	gigHandler := gigs.NewHandler(gigRepo, hub, logger)

	// Assistant
	gemini := assistant.NewGeminiClient(assistant.GeminiConfig{
		APIKey:         cfg.Assistant.APIKey,
		Model:          cfg.Assistant.Model,
		BaseURL:        cfg.Assistant.BaseURL,
		TimeoutSeconds: cfg.Assistant.TimeoutSeconds,
	})
	if gemini == nil {
		logger.Warn("GEMINI_API_KEY not set, assistant returns fallback text")
	}
	assistantHandler := assistant.NewHandler(assistant.NewService(gemini, logger), gigRepo, logger)

	wsValidate := func(token string) (string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.ParticipantID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	router.POST("/auth/anonymous", authHandler.Anonymous)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		gigHandler.Register(api.Group("/gigs"))

		api.POST("/assistant/draft", assistantHandler.Draft)
		api.GET("/assistant/pulse", assistantHandler.Pulse)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, wsValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
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
