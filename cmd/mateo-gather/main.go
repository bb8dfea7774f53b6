package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mateo/internal/config"
	"mateo/internal/gather"
	"mateo/internal/store"
	"mateo/internal/util"
)

func main() {
	job := flag.String("job", "all", "gather job to run: asset-sync, stock-daily, crypto-daily, or all")
	flag.Parse()

	godotenv.Load()

	cfgPath := "config/mateo.yaml"
	if p := os.Getenv("MATEO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	bars := store.NewParquetStore(cfg.Storage.DataDir)
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite store: %v", err)
	}
	defer db.Close()

	gatherers := map[string]gather.Gatherer{
		"asset-sync": gather.NewAssetSyncGatherer(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, db),
		"stock-daily": gather.NewStockDailyGatherer(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, bars, db,
			cfg.Gather.StockDaily.BatchSize, cfg.Gather.StockDaily.MaxWorkers,
			cfg.Gather.StockDaily.RateLimitPerMin, cfg.Gather.StockDaily.StartDate),
		"crypto-daily": gather.NewCryptoDailyGatherer(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, bars, db,
			cfg.Gather.CryptoDaily.BatchSize, cfg.Gather.CryptoDaily.MaxWorkers,
			cfg.Gather.CryptoDaily.RateLimitPerMin, cfg.Gather.CryptoDaily.StartDate),
	}

	var selected []gather.Gatherer
	if *job == "all" {
		// Asset sync first so the daily jobs see a fresh universe.
		selected = []gather.Gatherer{gatherers["asset-sync"], gatherers["stock-daily"], gatherers["crypto-daily"]}
	} else {
		g, ok := gatherers[*job]
		if !ok {
			log.Fatalf("unknown job %q", *job)
		}
		selected = []gather.Gatherer{g}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, g := range selected {
		if ctx.Err() != nil {
			break
		}
		logger.Info("running gatherer", "name", g.Name())
		if err := g.Run(ctx); err != nil {
			log.Fatalf("%s failed: %v", g.Name(), err)
		}
	}
}
