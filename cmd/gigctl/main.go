// Package main runs gigctl, the terminal client for the campus gig board.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/campus-gigs/backend/config"
	"github.com/campus-gigs/backend/internal/assistant"
	"github.com/campus-gigs/backend/internal/cli"
	"github.com/campus-gigs/backend/internal/collection"
	"github.com/campus-gigs/backend/internal/gigsync"
	"github.com/campus-gigs/backend/internal/identity"
	"github.com/campus-gigs/backend/internal/kvstore"
	"github.com/campus-gigs/backend/internal/lifecycle"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	profile, err := kvstore.OpenSQLite(cfg.Client.ProfilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer profile.Close()

	provider := identity.NewHTTPProvider(cfg.Client.ServerURL, profile)
	channel := collection.NewRemote(cfg.Client.ServerURL, provider.Token, logger)

	app := &cli.App{
		Binding:   identity.NewBinding(provider, profile, logger),
		Engine:    gigsync.NewEngine(channel, gigsync.WithLogger(logger)),
		Machine:   lifecycle.NewMachine(channel, logger),
		Assistant: assistant.NewRemote(cfg.Client.ServerURL, provider.Token, logger),
		Out:       os.Stdout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// newLogger keeps the terminal quiet: warnings and above, unless GIGCTL_DEBUG is set.
func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if os.Getenv("GIGCTL_DEBUG") != "" {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, _ := config.Build()
	return logger
}
