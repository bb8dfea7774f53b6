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
	"mateo/internal/refresh"
	"mateo/internal/store"
	"mateo/internal/util"
)

func main() {
	assetType := flag.String("asset-type", "stock", "asset type to refresh: stock or crypto")
	workers := flag.Int("workers", 4, "concurrent analysis workers")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	r := refresh.NewRefresher(bars, db, db, *workers, logger)
	n, err := r.Refresh(ctx, *assetType)
	if err != nil {
		log.Fatalf("refresh failed: %v", err)
	}
	logger.Info("refreshed", "assetType", *assetType, "rows", n)
}
