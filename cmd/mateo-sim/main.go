package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mateo/internal/config"
	"mateo/internal/domain"
	"mateo/internal/sim"
	"mateo/internal/store"
	"mateo/internal/util"
)

func main() {
	start := flag.String("start", "", "simulation start date (YYYY-MM-DD, required)")
	end := flag.String("end", util.Today(), "simulation end date (YYYY-MM-DD)")
	capital := flag.Float64("capital", 0, "initial capital (default from config)")
	symbols := flag.String("symbols", "", "comma-separated symbols (default: full universe)")
	assetType := flag.String("asset-type", "stock", "asset type: stock or crypto")
	exchange := flag.String("exchange", "", "restrict universe to one exchange")
	flag.Parse()

	if *start == "" {
		flag.Usage()
		os.Exit(2)
	}

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

	initialCapital := *capital
	if initialCapital <= 0 {
		initialCapital = cfg.Simulation.DefaultCapital
	}

	var symbolList []string
	if *symbols != "" {
		for _, s := range strings.Split(*symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbolList = append(symbolList, s)
			}
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := sim.NewEngine(sim.NewStoreLoader(bars, db), cfg.Simulation.BenchmarkSymbol, logger)
	result, err := engine.Run(ctx, sim.RunRequest{
		StartDate:      *start,
		EndDate:        *end,
		InitialCapital: initialCapital,
		Params:         domain.DefaultStrategyParams(),
		Symbols:        symbolList,
		AssetType:      *assetType,
		Exchange:       *exchange,
	})
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	printResult(result)
}

func printResult(r *domain.SimulationResult) {
	fmt.Printf("Period:            %s .. %s\n", r.StartDate, r.EndDate)
	fmt.Printf("Initial capital:   %.2f\n", r.InitialCapital)
	fmt.Printf("Final value:       %.2f\n", r.FinalValue)
	fmt.Printf("Total return:      %.2f (%.2f%%)\n", r.TotalReturn, r.TotalReturnPct)
	fmt.Printf("Annualized:        %.2f%%\n", r.AnnualizedReturn)
	fmt.Printf("Benchmark return:  %.2f%%\n", r.BenchmarkRetPct)
	fmt.Printf("Max drawdown:      %.2f (%.2f%%)\n", r.MaxDrawdown, r.MaxDrawdownPct)
	fmt.Printf("Sharpe ratio:      %.2f\n", r.SharpeRatio)
	fmt.Printf("Trades:            %d (%d wins, %d losses, %.1f%% win rate)\n",
		r.TotalTrades, r.WinningTrades, r.LosingTrades, r.WinRate)
	fmt.Printf("Avg win / loss:    %.2f / %.2f\n", r.AvgWin, r.AvgLoss)
	if r.BestTrade != nil {
		fmt.Printf("Best trade:        %s %s %+.2f\n", r.BestTrade.Date, r.BestTrade.Symbol, deref(r.BestTrade.PnL))
	}
	if r.WorstTrade != nil {
		fmt.Printf("Worst trade:       %s %s %+.2f\n", r.WorstTrade.Date, r.WorstTrade.Symbol, deref(r.WorstTrade.PnL))
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
