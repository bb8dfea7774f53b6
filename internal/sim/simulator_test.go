package sim

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"mateo/internal/domain"
)

// fakeLoader serves in-memory symbol data, applying the same window slicing
// and minimum-history filter a real loader would.
type fakeLoader struct {
	data []SymbolData
}

func (l *fakeLoader) LoadPriceData(_ context.Context, symbols []string, start, end, _, _ string) ([]SymbolData, error) {
	data := l.data
	if len(symbols) > 0 {
		want := make(map[string]bool, len(symbols))
		for _, s := range symbols {
			want[strings.ToUpper(s)] = true
		}
		var filtered []SymbolData
		for _, sd := range data {
			if want[sd.Symbol] {
				filtered = append(filtered, sd)
			}
		}
		data = filtered
	}
	return sliceWindow(data, start, end), nil
}

// dateSeq returns n consecutive calendar dates starting at start.
func dateSeq(t *testing.T, start string, n int) []string {
	t.Helper()
	d, err := time.Parse("2006-01-02", start)
	if err != nil {
		t.Fatalf("bad start date %q: %v", start, err)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = d.AddDate(0, 0, i).Format("2006-01-02")
	}
	return out
}

// barsFromCloses builds a bar series over consecutive dates.
func barsFromCloses(t *testing.T, start string, closes []float64) []domain.Bar {
	t.Helper()
	dates := dateSeq(t, start, len(closes))
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = domain.Bar{
			Date:   dates[i],
			Open:   open,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func repeat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

// goldenCrossCloses is a flat base followed by a rise with periodic
// pullbacks, so the crossover fires while RSI stays below overbought.
func goldenCrossCloses(base float64, flatBars, riseBars int) []float64 {
	closes := repeat(base, flatBars)
	price := base
	for i := 0; i < riseBars; i++ {
		if i%2 == 0 {
			price += 1.5
		} else {
			price -= 1.0
		}
		closes = append(closes, price)
	}
	return closes
}

func defaultEngine(data ...SymbolData) *Engine {
	return NewEngine(&fakeLoader{data: data}, "SPY", nil)
}

func runDefault(t *testing.T, e *Engine, start, end string) *domain.SimulationResult {
	t.Helper()
	res, err := e.Run(context.Background(), RunRequest{
		StartDate:      start,
		EndDate:        end,
		InitialCapital: 10000,
		Params:         domain.DefaultStrategyParams(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestRunFlatYearProducesNoTrades(t *testing.T) {
	flat := SymbolData{Symbol: "FLAT", Bars: barsFromCloses(t, "2024-01-01", repeat(100, 252))}
	res := runDefault(t, defaultEngine(flat), "2024-01-01", "2024-12-31")

	if res.TotalTrades != 0 {
		t.Errorf("flat series produced %d trades, want 0", res.TotalTrades)
	}
	if res.TotalReturnPct != 0 {
		t.Errorf("TotalReturnPct = %v, want 0", res.TotalReturnPct)
	}
	if res.FinalValue != 10000 {
		t.Errorf("FinalValue = %v, want 10000", res.FinalValue)
	}
	if len(res.Timeline) != 252 {
		t.Errorf("timeline has %d snapshots, want 252", len(res.Timeline))
	}
}

func TestRunGoldenCrossOpensSinglePosition(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-01", goldenCrossCloses(100, 40, 120))}
	flat := SymbolData{Symbol: "ZFLAT", Bars: barsFromCloses(t, "2024-01-01", repeat(100, 160))}

	res := runDefault(t, defaultEngine(grow, flat), "2024-01-01", "2024-12-31")

	var buys []domain.TradeRecord
	for _, tr := range res.Trades {
		if tr.Action == domain.ActionBuy {
			buys = append(buys, tr)
		}
	}
	if len(buys) == 0 {
		t.Fatal("golden cross produced no buys")
	}
	for _, b := range buys {
		if b.Symbol != "GROW" {
			t.Errorf("bought %s, only GROW should be eligible", b.Symbol)
		}
		if b.Total > 2500 {
			t.Errorf("buy total %v exceeds 25%% position cap", b.Total)
		}
	}
	// Only one position may be open at a time.
	open := 0
	for _, tr := range res.Trades {
		if tr.Action == domain.ActionBuy {
			open++
		} else {
			open--
		}
		if open > 1 {
			t.Fatalf("more than one concurrent position in trade sequence")
		}
	}
	if res.FinalValue <= res.InitialCapital {
		t.Errorf("FinalValue = %v, want > initial %v", res.FinalValue, res.InitialCapital)
	}
}

func TestRunCashNeverNegative(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-01", goldenCrossCloses(100, 40, 120))}
	res := runDefault(t, defaultEngine(grow), "2024-01-01", "2024-12-31")

	const eps = 1e-9
	for _, snap := range res.Timeline {
		if snap.Cash < -eps {
			t.Fatalf("cash went negative on %s: %v", snap.Date, snap.Cash)
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-01", goldenCrossCloses(100, 40, 120))}
	flat := SymbolData{Symbol: "ZFLAT", Bars: barsFromCloses(t, "2024-01-01", repeat(100, 160))}

	a := runDefault(t, defaultEngine(grow, flat), "2024-01-01", "2024-12-31")
	b := runDefault(t, defaultEngine(grow, flat), "2024-01-01", "2024-12-31")

	aj, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	bj, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(aj) != string(bj) {
		t.Error("two runs over identical inputs produced different results")
	}
}

func TestRunDrawdownMatchesTimeline(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-01", goldenCrossCloses(100, 40, 120))}
	res := runDefault(t, defaultEngine(grow), "2024-01-01", "2024-12-31")

	peak := res.InitialCapital
	want := 0.0
	for _, snap := range res.Timeline {
		if snap.PortfolioValue > peak {
			peak = snap.PortfolioValue
		}
		dd := (peak - snap.PortfolioValue) / peak * 100
		if dd > want {
			want = dd
		}
	}
	if diff := res.MaxDrawdownPct - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MaxDrawdownPct = %v, recomputed from timeline = %v", res.MaxDrawdownPct, want)
	}
}

func TestRunNoDataFailsFast(t *testing.T) {
	e := defaultEngine()
	_, err := e.Run(context.Background(), RunRequest{
		StartDate:      "2024-01-01",
		EndDate:        "2024-12-31",
		InitialCapital: 10000,
		Params:         domain.DefaultStrategyParams(),
	})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Run with no data: err = %v, want ErrNoData", err)
	}
}

func TestRunCancelled(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-01", goldenCrossCloses(100, 40, 120))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := defaultEngine(grow).Run(ctx, RunRequest{
		StartDate:      "2024-01-01",
		EndDate:        "2024-12-31",
		InitialCapital: 10000,
		Params:         domain.DefaultStrategyParams(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled run: err = %v, want context.Canceled", err)
	}
}

// simulateDirect runs the core loop against hand-built indicator state,
// bypassing the indicator engine.
func simulateDirect(t *testing.T, data []SymbolData, params domain.StrategyParams) *ledger {
	t.Helper()
	led, err := simulate(context.Background(), data, 10000, params)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	return led
}

// scriptedSymbol builds a symbol whose crossover/RSI state is scripted per
// day, with a constant histogram strong enough to pass the entry filter.
func scriptedSymbol(t *testing.T, symbol, start string, closes []float64, crossover []bool) SymbolData {
	t.Helper()
	if len(closes) != len(crossover) {
		t.Fatalf("scriptedSymbol: %d closes vs %d crossover flags", len(closes), len(crossover))
	}
	bars := barsFromCloses(t, start, closes)
	snaps := make([]domain.IndicatorSnapshot, len(bars))
	for i := range bars {
		snaps[i] = domain.IndicatorSnapshot{
			Crossover:    crossover[i],
			RSI:          50,
			HistogramAdj: 0.001, // 10 on the strength scale, above the default minimum
			Price:        bars[i].Close,
			Date:         bars[i].Date,
		}
	}
	return SymbolData{Symbol: symbol, Bars: bars, Indicators: snaps}
}

func TestSimulateStopLossAlwaysFires(t *testing.T) {
	// Crossover stays active while the price collapses past the stop.
	closes := []float64{100, 100, 100, 85, 85}
	cross := []bool{true, true, true, true, true}
	sd := scriptedSymbol(t, "DROP", "2024-01-01", closes, cross)

	params := domain.DefaultStrategyParams()
	params.MinHoldDays = 30 // suppresses signal exits, must not suppress the stop

	led := simulateDirect(t, []SymbolData{sd}, params)

	var sell *domain.TradeRecord
	for i := range led.trades {
		if led.trades[i].Action == domain.ActionSell {
			sell = &led.trades[i]
		}
	}
	if sell == nil {
		t.Fatal("stop loss never fired")
	}
	if !strings.HasPrefix(sell.Reason, "Stop loss") {
		t.Errorf("sell reason = %q, want stop loss", sell.Reason)
	}
	if sell.PnL == nil || *sell.PnL >= 0 {
		t.Errorf("stop-loss PnL = %v, want negative", sell.PnL)
	}
}

func TestSimulateMinHoldSuppressesSignalExit(t *testing.T) {
	// Crossover flips to false the day after entry; with a holding period the
	// signal exit must wait until the period elapses.
	closes := repeat(100, 8)
	cross := []bool{true, true, false, false, false, false, false, false}
	sd := scriptedSymbol(t, "HOLDME", "2024-01-01", closes, cross)

	params := domain.DefaultStrategyParams()
	params.MinHoldDays = 4

	led := simulateDirect(t, []SymbolData{sd}, params)

	var sellDate string
	for _, tr := range led.trades {
		if tr.Action == domain.ActionSell {
			sellDate = tr.Date
			break
		}
	}
	if sellDate == "" {
		t.Fatal("signal exit never fired after the holding period")
	}
	// Entry on day 0; exit must wait until day 4 (2024-01-05).
	if sellDate != "2024-01-05" {
		t.Errorf("sell date = %s, want 2024-01-05 (after 4-day hold)", sellDate)
	}
}

func TestSimulateMaxTradesPerDay(t *testing.T) {
	// Three eligible symbols on the same day with a cap of 2.
	var data []SymbolData
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		data = append(data, scriptedSymbol(t, sym, "2024-01-01",
			repeat(10, 3), []bool{true, true, true}))
	}

	params := domain.DefaultStrategyParams()
	params.MaxTradesPerDay = 2
	params.MaxPositionPct = 10

	led := simulateDirect(t, data, params)

	byDay := make(map[string]int)
	for _, tr := range led.trades {
		byDay[tr.Date]++
	}
	for date, n := range byDay {
		if n > 2 {
			t.Errorf("%s has %d trades, cap is 2", date, n)
		}
	}
	if byDay["2024-01-01"] != 2 {
		t.Errorf("first day filled %d trades, want the full cap of 2", byDay["2024-01-01"])
	}
}

func TestSimulateOpenPriceExecution(t *testing.T) {
	closes := []float64{100, 110, 120}
	cross := []bool{true, true, true}
	sd := scriptedSymbol(t, "GAP", "2024-01-01", closes, cross)

	params := domain.DefaultStrategyParams()
	params.UseEndOfDayPrices = false

	led := simulateDirect(t, []SymbolData{sd}, params)
	if len(led.trades) == 0 {
		t.Fatal("no trades")
	}
	// Day 0's open equals its close; day 1 buys would fill at the 100 open.
	first := led.trades[0]
	if first.Price != sd.Bars[0].Open {
		t.Errorf("fill price = %v, want day open %v", first.Price, sd.Bars[0].Open)
	}
}

func TestSimulateEmptyData(t *testing.T) {
	_, err := simulate(context.Background(), nil, 10000, domain.DefaultStrategyParams())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("simulate(nil) err = %v, want ErrNoData", err)
	}
}
