package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/database"
	"github.com/oskarb/kepler/elprisetjustnu"
	"github.com/oskarb/kepler/forecast"
	"github.com/oskarb/kepler/livestate"
	"github.com/oskarb/kepler/nordpool"
	"github.com/oskarb/kepler/planner"
)

// Runs one planning cycle immediately and prints the run result.
// Useful for poking at config changes without waiting for the cron
// trigger. Live state comes from MQTT if reachable, otherwise the
// pipeline falls back to its conservative defaults.
func main() {
	w := os.Stdout
	logger := slog.New(tint.NewHandler(w, nil))
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC3339Nano,
		}),
	))

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cnfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	db, err := database.New(context.Background(), cnfg.Database.Path)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	prices := planner.NewPriceFallback(logger,
		elprisetjustnu.New(cnfg.Prices.GetArea()),
		nordpool.New(cnfg.Prices.GetArea()))
	forecasts := forecast.New(logger, cnfg, db)

	live := livestate.New(cnfg.Mqtt)
	if err := live.Connect(); err != nil {
		logger.Warn("live state unavailable", slog.Any("error", err))
	} else {
		defer live.Disconnect()
	}

	pipeline := planner.NewPipeline(logger, cnfg, db, prices, forecasts, live, forecasts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	res := pipeline.Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		panic(err)
	}
}
