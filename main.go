package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/database"
	"github.com/oskarb/kepler/elprisetjustnu"
	"github.com/oskarb/kepler/forecast"
	"github.com/oskarb/kepler/livestate"
	"github.com/oskarb/kepler/logging"
	"github.com/oskarb/kepler/nordpool"
	"github.com/oskarb/kepler/notify"
	"github.com/oskarb/kepler/planner"
	"github.com/oskarb/kepler/task"
)

var Version = "?.?.?"

func main() {
	defer func() {
		if err := recover(); err != nil {
			exitWithError(slog.Default(), fmt.Errorf("application panicked: %v", err))
		} else {
			slog.Default().Info("application is shutting down...")
		}
	}()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consoleHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      cnfg.Logging.GetConsoleLevel(),
		TimeFormat: time.RFC3339,
	})
	slog.New(consoleHandler).Debug("kepler is starting...", slog.String("version", Version))

	db, err := database.New(ctx, cnfg.Database.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to connect to database: %v", err))
	}
	defer db.Close()

	logger := slog.New(logging.NewMultiHandler(
		consoleHandler,
		logging.NewSQLiteHandler(db, cnfg.Logging.GetDbLevel(), cnfg.Logging.GetDbAttrsFormat())))
	slog.SetDefault(logger)

	// Now we can use the logger to log database operations into the database itself
	db.SetLogger(logger.With("module", "database"))

	if issues, err := cnfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	} else {
		for _, issue := range issues {
			logger.Warn("configuration issue", slog.String("code", string(issue.Code)), slog.String("message", issue.Message))
		}
	}

	prices := planner.NewPriceFallback(logger,
		elprisetjustnu.New(cnfg.Prices.GetArea()), // Primary provider
		nordpool.New(cnfg.Prices.GetArea()),       // Secondary provider
	)
	forecasts := forecast.New(logger, cnfg, db)

	live := livestate.New(cnfg.Mqtt)
	publisher := notify.New(cnfg.Mqtt)
	if isDevMode() {
		logger.Info("dev mode, skipping MQTT connections")
	} else {
		if err := live.Connect(); err != nil {
			panic(fmt.Sprintf("live state connection error: %v", err))
		}
		defer live.Disconnect()
		if err := publisher.Connect(); err != nil {
			// Notifications are best effort, runs proceed without them.
			logger.Warn("notification broker unavailable", slog.Any("error", err))
		}
		defer publisher.Disconnect()
	}

	pipeline := planner.NewPipeline(logger, cnfg, db, prices, forecasts, live, forecasts, publisher)

	tasks := task.NewTasks(db, pipeline, cnfg)
	if isDevMode() {
		logger.Info("dev mode, skipping task scheduling")
	} else {
		tasks.Run()
		defer tasks.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("main context done")
	case sig := <-sigCh:
		logger.Info("received signal", slog.Any("signal", sig))
		cancel()
	}
}

func isDevMode() bool {
	return strings.EqualFold(os.Getenv("APP_ENV"), "development")
}

func exitWithError(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("application shutting down with error", slog.Any("error", err))
	}
	if syncer, ok := logger.Handler().(interface{ Sync() error }); ok {
		if syncErr := syncer.Sync(); syncErr != nil {
			logger.Error("failed to flush logger", slog.Any("error", syncErr))
		}
	}

	time.Sleep(2 * time.Second)
	os.Exit(1)
}
