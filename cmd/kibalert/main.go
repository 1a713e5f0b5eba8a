package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kibalert/internal/app"
	"kibalert/internal/config"
	"kibalert/internal/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	res, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	cfg := res.Config

	logger, closeLog, err := logging.New(cfg.Log.Level, cfg.Files.AppLogFile, cfg.Log.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer closeLog()
	for _, w := range res.Warnings {
		logger.Warn("config", "warning", w)
	}
	logger.Info("starting kibalert", "kibana", cfg.Kibana.URL, "interval", cfg.Interval().String(), "admin", cfg.Admin.Addr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init failed", "err", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("shutdown with error", "err", err)
		os.Exit(1)
	}
}
