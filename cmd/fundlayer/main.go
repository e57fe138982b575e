// Package main runs the fund layer service: pooled deposits, share
// accounting, yield allocation across Neo N3 strategies, and the
// device-rental escrow API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/fund_layer/internal/app"
	"github.com/R3E-Network/fund_layer/internal/config"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("main").WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Component: "fundlayer",
		Level:     cfg.Logging.Level,
		JSON:      cfg.Logging.JSON,
	})

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to build application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("application run failed")
	}

	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
	log.Info("fund layer stopped")
}
