package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"mateo/pkg/mateo"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: mateo-cli [flags] <command> [args]

Commands:
  stats                signal cache summary
  symbols              stored symbols
  top                  top gainers, losers, and strong buys
  detail <SYMBOL>      per-symbol summary and indicators
  range                stored bar date range

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	server := flag.String("server", "http://localhost:3000", "mateo-server base URL")
	assetType := flag.String("asset-type", "stock", "asset type: stock or crypto")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := mateo.NewClient(*server)

	switch args[0] {
	case "stats":
		resp, err := client.Stats(ctx, *assetType)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%-8s total=%d buy=%d sell=%d hold=%d updated=%s\n",
			resp.AssetType, resp.Stats.Total, resp.Stats.Buys, resp.Stats.Sells,
			resp.Stats.Holds, resp.Stats.LastUpdate.Format(time.RFC3339))

	case "symbols":
		symbols, err := client.Symbols(ctx, *assetType)
		if err != nil {
			log.Fatal(err)
		}
		for _, s := range symbols {
			fmt.Println(s)
		}

	case "top":
		resp, err := client.TopPerformers(ctx, *assetType, 10)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("Top gainers:")
		for _, p := range resp.TopGainers {
			fmt.Printf("  %-8s %10.2f %+7.2f%%\n", p.Symbol, p.Price, p.ChangePercent)
		}
		fmt.Println("Top losers:")
		for _, p := range resp.TopLosers {
			fmt.Printf("  %-8s %10.2f %+7.2f%%\n", p.Symbol, p.Price, p.ChangePercent)
		}
		fmt.Println("Strong buys:")
		for _, p := range resp.StrongBuys {
			fmt.Printf("  %-8s %10.2f RSI %.1f\n", p.Symbol, p.Price, p.RSI)
		}

	case "detail":
		if len(args) < 2 {
			log.Fatal("detail requires a symbol")
		}
		detail, err := client.StockDetail(ctx, args[1], *assetType)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s (%s, %s)\n", detail.Symbol, detail.Name, detail.Exchange)
		fmt.Printf("signal=%s strength=%.2f rsi=%.1f price=%.2f\n",
			detail.Summary.Signal, detail.Summary.SignalStrength,
			detail.Summary.RSI, detail.Summary.Price)
		if n := len(detail.Indicators); n > 0 {
			last := detail.Indicators[n-1]
			fmt.Printf("latest %s: hist=%.4f adx=%.1f ma50=%.2f\n",
				last.Date, last.Histogram, last.ADX, last.MA50)
		}

	case "range":
		start, end, err := client.DataRange(ctx, *assetType)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s: %s .. %s\n", *assetType, start, end)

	default:
		usage()
		os.Exit(2)
	}
}
