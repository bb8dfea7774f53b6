package sim

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"mateo/internal/domain"
)

func compareSpec(strategies ...domain.NamedStrategy) CompareSpec {
	return CompareSpec{
		Strategies:     strategies,
		Periods:        []int{1},
		InitialCapital: 10000,
		Iterations:     3,
		EndDate:        "2024-12-31",
	}
}

func namedDefault(name string) domain.NamedStrategy {
	return domain.NamedStrategy{Name: name, Params: domain.DefaultStrategyParams()}
}

func TestCompareDeterministicWithSeed(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-02", goldenCrossCloses(100, 40, 200))}
	spy := SymbolData{Symbol: "SPY", Bars: barsFromCloses(t, "2024-01-02", goldenCrossCloses(200, 40, 200))}

	run := func() *domain.StrategyComparison {
		engine := defaultEngine(grow, spy)
		c := NewComparator(engine, 3, nil)
		c.Seed(42)
		out, err := c.Compare(context.Background(), compareSpec(namedDefault("default")))
		if err != nil {
			t.Fatalf("Compare: %v", err)
		}
		return out
	}

	a, _ := json.Marshal(run())
	b, _ := json.Marshal(run())
	if string(a) != string(b) {
		t.Error("same seed produced different comparison results")
	}
}

func TestCompareShape(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-02", goldenCrossCloses(100, 40, 200))}
	engine := defaultEngine(grow)
	c := NewComparator(engine, 2, nil)
	c.Seed(7)

	spec := compareSpec(namedDefault("one"), namedDefault("two"))
	spec.Periods = []int{1, 5}
	out, err := c.Compare(context.Background(), spec)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if len(out.Strategies) != 2 {
		t.Fatalf("got %d strategies, want 2", len(out.Strategies))
	}
	for _, sr := range out.Strategies {
		if len(sr.Results) != 2 {
			t.Fatalf("strategy %s has %d period results, want 2", sr.Name, len(sr.Results))
		}
		for _, pr := range sr.Results {
			if pr.SampleCount == 0 {
				t.Errorf("strategy %s period %s has no samples", sr.Name, pr.Period)
			}
			if pr.SampleCount > spec.Iterations {
				t.Errorf("period %s ran %d samples, cap is %d", pr.Period, pr.SampleCount, spec.Iterations)
			}
		}
	}
	if out.Strategies[0].Results[0].Period != "1y" || out.Strategies[0].Results[1].Period != "5y" {
		t.Errorf("period labels = %s/%s, want 1y/5y",
			out.Strategies[0].Results[0].Period, out.Strategies[0].Results[1].Period)
	}
}

func TestCompareNoDataReportsZeroSample(t *testing.T) {
	engine := defaultEngine() // empty universe
	c := NewComparator(engine, 2, nil)

	out, err := c.Compare(context.Background(), compareSpec(namedDefault("default")))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	pr := out.Strategies[0].Results[0]
	if pr.SampleCount != 0 {
		t.Errorf("SampleCount = %d, want 0", pr.SampleCount)
	}
	if pr.AvgReturn != 0 || pr.WinRate != 0 || pr.SharpeRatio != 0 {
		t.Errorf("zero-sample period has nonzero metrics: %+v", pr)
	}
	if pr.Period != "1y" || pr.Years != 1 {
		t.Errorf("zero-sample period labeled %s/%d, want 1y/1", pr.Period, pr.Years)
	}
}

func TestCompareIterationsReducedForShortHistory(t *testing.T) {
	// 70 trading days leaves a 10-day draw span, fewer than the requested
	// iterations.
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-09-01", goldenCrossCloses(100, 30, 40))}
	engine := defaultEngine(grow)
	c := NewComparator(engine, 2, nil)
	c.Seed(1)

	spec := compareSpec(namedDefault("default"))
	spec.Iterations = 50
	out, err := c.Compare(context.Background(), spec)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	pr := out.Strategies[0].Results[0]
	if pr.SampleCount > 10 {
		t.Errorf("SampleCount = %d, want at most the 10-day draw span", pr.SampleCount)
	}
}

func TestCompareProgressReachesTotal(t *testing.T) {
	// 70 trading days leaves a 10-day draw span, so the requested 50
	// iterations shrink to 10 per strategy. The reported total must reflect
	// the shrunk counts and the final event must reach it.
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-09-01", goldenCrossCloses(100, 30, 40))}
	c := NewComparator(defaultEngine(grow), 2, nil)
	c.Seed(5)

	var events [][2]int
	c.Progress = func(completed, total int) { events = append(events, [2]int{completed, total}) }

	spec := compareSpec(namedDefault("one"), namedDefault("two"))
	spec.Iterations = 50
	if _, err := c.Compare(context.Background(), spec); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("progress callback never invoked")
	}
	last := events[len(events)-1]
	if last[0] != last[1] {
		t.Errorf("final progress %d of %d, want completion", last[0], last[1])
	}
	for _, ev := range events {
		if ev[1] != last[1] {
			t.Errorf("total changed mid-run: %d vs %d", ev[1], last[1])
		}
	}
	if want := 2 * 10; last[1] != want {
		t.Errorf("total = %d, want %d", last[1], want)
	}
}

func TestCompareCancelled(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-02", goldenCrossCloses(100, 40, 200))}
	c := NewComparator(defaultEngine(grow), 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Compare(ctx, compareSpec(namedDefault("default"))); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled compare: err = %v, want context.Canceled", err)
	}
}

func TestCompareProgress(t *testing.T) {
	grow := SymbolData{Symbol: "GROW", Bars: barsFromCloses(t, "2024-01-02", goldenCrossCloses(100, 40, 200))}
	c := NewComparator(defaultEngine(grow), 1, nil)
	c.Seed(3)

	var calls int
	c.Progress = func(completed, total int) { calls++ }

	if _, err := c.Compare(context.Background(), compareSpec(namedDefault("default"))); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if calls == 0 {
		t.Error("progress callback never invoked")
	}
}

func TestSliceWindow(t *testing.T) {
	sd := SymbolData{Symbol: "AAA", Bars: barsFromCloses(t, "2024-01-01", repeat(100, 100))}
	out := sliceWindow([]SymbolData{sd}, "2024-01-20", "2024-03-01")
	if len(out) != 1 {
		t.Fatalf("sliceWindow dropped the symbol")
	}
	if out[0].Bars[0].Date != "2024-01-20" {
		t.Errorf("window starts at %s, want 2024-01-20", out[0].Bars[0].Date)
	}
	if last := out[0].Bars[len(out[0].Bars)-1].Date; last != "2024-03-01" {
		t.Errorf("window ends at %s, want 2024-03-01", last)
	}

	// Narrow windows fall under the minimum history and are dropped.
	out = sliceWindow([]SymbolData{sd}, "2024-01-01", "2024-01-10")
	if len(out) != 0 {
		t.Errorf("short window kept %d symbols, want 0", len(out))
	}
}
