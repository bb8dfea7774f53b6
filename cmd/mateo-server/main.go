package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mateo/internal/config"
	"mateo/internal/httpapi"
	"mateo/internal/sim"
	"mateo/internal/store"
	"mateo/internal/util"
)

func main() {
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

	loader := sim.NewStoreLoader(bars, db)
	engine := sim.NewEngine(loader, cfg.Simulation.BenchmarkSymbol, logger)
	comp := sim.NewComparator(engine, cfg.Simulation.MaxWorkers, logger)

	api := httpapi.NewServer(bars, db, db, engine, comp, httpapi.Defaults{
		Capital:    cfg.Simulation.DefaultCapital,
		Benchmark:  cfg.Simulation.BenchmarkSymbol,
		Iterations: cfg.Simulation.DefaultIterations,
		Timeout:    time.Duration(cfg.Simulation.TimeoutSeconds) * time.Second,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go api.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mateo-server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}
}
