package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"mateo/internal/domain"
	"mateo/internal/indicator"
)

// Engine runs simulations against data supplied by a Loader.
type Engine struct {
	loader    Loader
	benchmark string
	log       *slog.Logger
}

// NewEngine creates an engine. benchmark is the reference symbol for relative
// returns; empty defaults to SPY.
func NewEngine(loader Loader, benchmark string, log *slog.Logger) *Engine {
	if benchmark == "" {
		benchmark = "SPY"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{loader: loader, benchmark: benchmark, log: log}
}

// RunRequest is a fully resolved simulation request. Params must already be
// resolved against defaults; the engine never layers partial parameters.
type RunRequest struct {
	StartDate      string
	EndDate        string
	InitialCapital float64
	Params         domain.StrategyParams
	Symbols        []string
	AssetType      string
	Exchange       string
}

// Run loads the requested window, computes indicators, simulates, and
// returns the aggregated result. Fails with ErrNoData when no symbol has
// enough history in the window.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*domain.SimulationResult, error) {
	data, err := e.loader.LoadPriceData(ctx, req.Symbols, req.StartDate, req.EndDate, req.AssetType, req.Exchange)
	if err != nil {
		return nil, err
	}

	e.log.Debug("simulation data loaded",
		"symbols", len(data), "start", req.StartDate, "end", req.EndDate)

	return runLoaded(ctx, data, req.InitialCapital, req.Params, req.StartDate, req.EndDate, e.benchmark)
}

// runLoaded is the shared path for Run and the comparator's sliced windows.
// It takes ownership of data's Indicators fields.
func runLoaded(ctx context.Context, data []SymbolData, capital float64, params domain.StrategyParams, start, end, benchmark string) (*domain.SimulationResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoData, start, end)
	}
	for i := range data {
		data[i].Indicators = indicator.Compute(data[i].Bars, params)
	}
	led, err := simulate(ctx, data, capital, params)
	if err != nil {
		return nil, err
	}
	return buildResult(data, led, capital, params, start, end, benchmark), nil
}

// ---------------------------------------------------------------------------
// Core day-stepped loop
// ---------------------------------------------------------------------------

// ledger is the raw output of one simulation pass, before statistics.
type ledger struct {
	trades         []domain.TradeRecord
	timeline       []domain.PortfolioSnapshot
	dates          []string
	maxDrawdown    float64
	maxDrawdownPct float64
}

// position is the per-symbol holding state owned by one simulate call.
type position struct {
	quantity int64
	avgCost  float64
	entryDay int
}

// signalHistory tracks crossover flips per symbol for the preferNewBuys
// scoring.
type signalHistory struct {
	lastSignal    bool
	lastChangeDay int
	changeCount   int
}

// candidate is one symbol's state on the day being stepped.
type candidate struct {
	symbol      string
	bar         domain.Bar
	ind         domain.IndicatorSnapshot
	histAdj     float64
	newBuyScore float64
}

// simulate steps through the union of all symbols' dates in ascending order,
// evaluating exits before entries each day. All iteration orders are
// deterministic: symbols are visited in sorted order and candidate ranking
// uses a stable sort, so identical inputs produce identical ledgers.
func simulate(ctx context.Context, data []SymbolData, initialCapital float64, params domain.StrategyParams) (*ledger, error) {
	dates := unionDates(data)
	if len(dates) == 0 {
		return nil, ErrNoData
	}

	// Per-symbol date→bar index, so each day is O(symbols).
	barIdx := make([]map[string]int, len(data))
	for i, sd := range data {
		m := make(map[string]int, len(sd.Bars))
		for j, b := range sd.Bars {
			m[b.Date] = j
		}
		barIdx[i] = m
	}

	cash := initialCapital
	positions := make(map[string]*position)
	history := make(map[string]*signalHistory)
	led := &ledger{dates: dates}
	peakValue := initialCapital

	for dayIdx, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates := make([]candidate, 0, len(data))
		bySymbol := make(map[string]candidate, len(data))
		for i, sd := range data {
			j, ok := barIdx[i][date]
			if !ok || j >= len(sd.Indicators) {
				continue
			}
			bar := sd.Bars[j]
			ind := sd.Indicators[j]

			h := history[sd.Symbol]
			if h == nil {
				history[sd.Symbol] = &signalHistory{lastSignal: ind.Crossover, lastChangeDay: dayIdx}
			} else if ind.Crossover != h.lastSignal {
				h.lastSignal = ind.Crossover
				h.lastChangeDay = dayIdx
				h.changeCount++
			}

			score := 0.0
			if params.PreferNewBuys && ind.Crossover {
				h := history[sd.Symbol]
				daysSince := dayIdx - h.lastChangeDay
				if daysSince >= 0 && daysSince <= params.NewBuyLookbackDays {
					avgDaysBetween := float64(dayIdx)
					if h.changeCount > 0 {
						avgDaysBetween = float64(dayIdx) / float64(h.changeCount)
					}
					recency := 1 - float64(daysSince)/float64(params.NewBuyLookbackDays+1)
					rarity := math.Min(avgDaysBetween/20, 5)
					score = recency * rarity
				}
			}

			c := candidate{
				symbol:      sd.Symbol,
				bar:         bar,
				ind:         ind,
				histAdj:     ind.HistogramAdj,
				newBuyScore: score,
			}
			candidates = append(candidates, c)
			bySymbol[sd.Symbol] = c
		}

		if len(candidates) == 0 {
			continue
		}

		tradesToday := 0
		capReached := func() bool {
			return params.MaxTradesPerDay > 0 && tradesToday >= params.MaxTradesPerDay
		}

		// Exits, in sorted symbol order.
		for _, sym := range sortedPositionSymbols(positions) {
			if capReached() {
				break
			}
			pos := positions[sym]
			cand, ok := bySymbol[sym]
			if !ok {
				continue
			}

			px := execPrice(cand.bar, params)
			pnlPct := (px - pos.avgCost) / pos.avgCost * 100
			heldLongEnough := dayIdx-pos.entryDay >= params.MinHoldDays

			var reason string
			switch {
			case !cand.ind.Crossover && heldLongEnough:
				reason = "MACD sell signal"
			case cand.ind.RSI > params.RSIOverbought && heldLongEnough:
				reason = fmt.Sprintf("RSI overbought (%.1f)", cand.ind.RSI)
			case pnlPct <= -params.StopLossPct:
				reason = fmt.Sprintf("Stop loss (%.1f%%)", pnlPct)
			case pnlPct >= params.TakeProfitPct:
				reason = fmt.Sprintf("Take profit (%.1f%%)", pnlPct)
			default:
				continue
			}

			total := float64(pos.quantity) * px
			pnl := total - float64(pos.quantity)*pos.avgCost
			cash += total
			pnlRounded := round2(pnl)
			pnlPctRounded := round2(pnlPct)
			led.trades = append(led.trades, domain.TradeRecord{
				Date:     date,
				Symbol:   sym,
				Action:   domain.ActionSell,
				Quantity: pos.quantity,
				Price:    px,
				Total:    total,
				Reason:   reason,
				PnL:      &pnlRounded,
				PnLPct:   &pnlPctRounded,
			})
			delete(positions, sym)
			tradesToday++
		}

		// Rank entry candidates. Stable sort keeps the loader's symbol order
		// as the final tie-break.
		sort.SliceStable(candidates, func(i, j int) bool {
			if params.PreferNewBuys && candidates[i].newBuyScore != candidates[j].newBuyScore {
				return candidates[i].newBuyScore > candidates[j].newBuyScore
			}
			return candidates[i].histAdj > candidates[j].histAdj
		})

		for i := range candidates {
			cand := &candidates[i]
			if cash <= params.MinCashReserve || capReached() {
				break
			}
			if _, held := positions[cand.symbol]; held {
				continue
			}
			px := execPrice(cand.bar, params)
			if px > params.MaxSharePrice || px <= 0 {
				continue
			}
			eligible := cand.ind.Crossover &&
				cand.ind.HistogramAdj*10000 > params.MinBuySignal &&
				cand.ind.RSI < params.RSIOverbought
			if !eligible {
				continue
			}

			maxAllocation := initialCapital * params.MaxPositionPct / 100
			available := math.Min(cash-params.MinCashReserve, maxAllocation)
			if available <= 0 {
				continue
			}
			quantity := int64(math.Floor(available / px))
			if quantity <= 0 {
				continue
			}

			total := float64(quantity) * px
			cash -= total
			positions[cand.symbol] = &position{quantity: quantity, avgCost: px, entryDay: dayIdx}
			tradesToday++

			reason := fmt.Sprintf("MACD buy signal (adj: %.2f, RSI: %.1f)", cand.ind.HistogramAdj*10000, cand.ind.RSI)
			if params.PreferNewBuys && cand.newBuyScore > 0 {
				reason += fmt.Sprintf(" | New buy score: %.2f", cand.newBuyScore)
			}
			led.trades = append(led.trades, domain.TradeRecord{
				Date:     date,
				Symbol:   cand.symbol,
				Action:   domain.ActionBuy,
				Quantity: quantity,
				Price:    px,
				Total:    total,
				Reason:   reason,
			})
		}

		// Mark open positions and record the day's snapshot.
		positionsValue := 0.0
		posSnapshot := make(map[string]domain.PositionDetail, len(positions))
		for _, sym := range sortedPositionSymbols(positions) {
			pos := positions[sym]
			px := pos.avgCost
			if cand, ok := bySymbol[sym]; ok {
				px = execPrice(cand.bar, params)
			}
			value := float64(pos.quantity) * px
			positionsValue += value
			posSnapshot[sym] = domain.PositionDetail{
				Quantity:     pos.quantity,
				AvgCost:      pos.avgCost,
				CurrentPrice: px,
				Value:        value,
				PnL:          (px - pos.avgCost) * float64(pos.quantity),
			}
		}

		portfolioValue := cash + positionsValue
		totalReturn := portfolioValue - initialCapital

		if portfolioValue > peakValue {
			peakValue = portfolioValue
		}
		drawdown := peakValue - portfolioValue
		drawdownPct := 0.0
		if peakValue > 0 {
			drawdownPct = drawdown / peakValue * 100
		}
		if drawdown > led.maxDrawdown {
			led.maxDrawdown = drawdown
		}
		if drawdownPct > led.maxDrawdownPct {
			led.maxDrawdownPct = drawdownPct
		}

		prevValue := initialCapital
		if n := len(led.timeline); n > 0 {
			prevValue = led.timeline[n-1].PortfolioValue
		}

		led.timeline = append(led.timeline, domain.PortfolioSnapshot{
			Date:           date,
			PortfolioValue: portfolioValue,
			Cash:           cash,
			PositionsValue: positionsValue,
			DayReturn:      portfolioValue - prevValue,
			TotalReturn:    totalReturn,
			TotalReturnPct: totalReturn / initialCapital * 100,
			Positions:      posSnapshot,
		})
	}

	return led, nil
}

// execPrice is the fill and marking price for a bar.
func execPrice(bar domain.Bar, params domain.StrategyParams) float64 {
	if params.UseEndOfDayPrices {
		return bar.Close
	}
	return bar.Open
}

func unionDates(data []SymbolData) []string {
	seen := make(map[string]bool)
	for _, sd := range data {
		for _, b := range sd.Bars {
			seen[b.Date] = true
		}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func sortedPositionSymbols(positions map[string]*position) []string {
	syms := make([]string, 0, len(positions))
	for sym := range positions {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	return syms
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
