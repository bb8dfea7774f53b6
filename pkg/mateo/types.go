package mateo

import "time"

// Signal classification constants.
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"
)

// Trade actions recorded by the simulator.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Market regime conditions derived from a benchmark series.
const (
	ConditionBull     = "bull"
	ConditionBear     = "bear"
	ConditionSideways = "sideways"
)

// Asset types understood by the API.
const (
	AssetTypeStock  = "stock"
	AssetTypeCrypto = "crypto"
)

// IndicatorSnapshot holds the per-day indicator state derived from the bar
// series up to and including that day. Snapshots are never revised once
// computed.
type IndicatorSnapshot struct {
	EMAFast      float64 `json:"emaFast"`
	EMASlow      float64 `json:"emaSlow"`
	MACDLine     float64 `json:"macdFast"`
	MACDSignal   float64 `json:"macdSlow"`
	Histogram    float64 `json:"macdHistogram"`
	HistogramAdj float64 `json:"macdHistogramAdjusted"`
	Crossover    bool    `json:"buySignal"`
	RSI          float64 `json:"rsi"`
	ADX          float64 `json:"adx"`
	MA50         float64 `json:"ma50"`
	BollingerBW  float64 `json:"bollingerBandwidth"`
	Price        float64 `json:"price"`
	Date         string  `json:"date"`
}

// TradeRecord is an immutable fact describing one fill made by the simulator.
// PnL fields are populated only on SELL, matched against the most recently
// opened still-open BUY for the symbol.
type TradeRecord struct {
	Date     string   `json:"date"`
	Symbol   string   `json:"symbol"`
	Action   string   `json:"action"`
	Quantity int64    `json:"quantity"`
	Price    float64  `json:"price"`
	Total    float64  `json:"total"`
	Reason   string   `json:"reason"`
	PnL      *float64 `json:"pnl,omitempty"`
	PnLPct   *float64 `json:"pnlPct,omitempty"`
}

// PositionDetail is the per-position mark inside a PortfolioSnapshot.
type PositionDetail struct {
	Quantity     int64   `json:"quantity"`
	AvgCost      float64 `json:"avgCost"`
	CurrentPrice float64 `json:"currentPrice"`
	Value        float64 `json:"value"`
	PnL          float64 `json:"pnl"`
}

// PortfolioSnapshot captures the portfolio at the end of one simulated
// trading day. The ordered sequence of snapshots forms the timeline.
type PortfolioSnapshot struct {
	Date           string                    `json:"date"`
	PortfolioValue float64                   `json:"portfolioValue"`
	Cash           float64                   `json:"cash"`
	PositionsValue float64                   `json:"positionsValue"`
	DayReturn      float64                   `json:"dayReturn"`
	TotalReturn    float64                   `json:"totalReturn"`
	TotalReturnPct float64                   `json:"totalReturnPct"`
	Positions      map[string]PositionDetail `json:"positions"`
}

// SimulationResult is the terminal aggregate of one simulation call.
type SimulationResult struct {
	StrategyParams   StrategyParams      `json:"strategyParams"`
	StartDate        string              `json:"startDate"`
	EndDate          string              `json:"endDate"`
	InitialCapital   float64             `json:"initialCapital"`
	FinalValue       float64             `json:"finalValue"`
	TotalReturn      float64             `json:"totalReturn"`
	TotalReturnPct   float64             `json:"totalReturnPct"`
	AnnualizedReturn float64             `json:"annualizedReturn"`
	MaxDrawdown      float64             `json:"maxDrawdown"`
	MaxDrawdownPct   float64             `json:"maxDrawdownPct"`
	SharpeRatio      float64             `json:"sharpeRatio"`
	WinRate          float64             `json:"winRate"`
	TotalTrades      int                 `json:"totalTrades"`
	WinningTrades    int                 `json:"winningTrades"`
	LosingTrades     int                 `json:"losingTrades"`
	AvgWin           float64             `json:"avgWin"`
	AvgLoss          float64             `json:"avgLoss"`
	BestTrade        *TradeRecord        `json:"bestTrade"`
	WorstTrade       *TradeRecord        `json:"worstTrade"`
	Timeline         []PortfolioSnapshot `json:"timeline"`
	Trades           []TradeRecord       `json:"trades"`
	BenchmarkReturn  float64             `json:"benchmarkReturn"`
	BenchmarkRetPct  float64             `json:"benchmarkReturnPct"`
}

// PeriodResult aggregates randomized simulation outcomes for one strategy
// over one lookback horizon.
type PeriodResult struct {
	Period         string  `json:"period"`
	Years          int     `json:"years"`
	AvgReturn      float64 `json:"avgReturn"`
	AvgReturnPct   float64 `json:"avgReturnPct"`
	AvgAnnualized  float64 `json:"avgAnnualized"`
	WinRate        float64 `json:"winRate"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
	SharpeRatio    float64 `json:"sharpeRatio"`
	SampleCount    int     `json:"sampleCount"`
}

// StrategyResult holds the per-horizon results for one named strategy.
type StrategyResult struct {
	Name    string         `json:"name"`
	Params  StrategyParams `json:"params"`
	Results []PeriodResult `json:"results"`
}

// StrategyComparison is the output of the strategy comparator.
type StrategyComparison struct {
	Strategies []StrategyResult `json:"strategies"`
}

// StrategyPerformance summarizes a strategy's outcomes within one regime.
type StrategyPerformance struct {
	StrategyName   string  `json:"strategyName"`
	AvgReturnPct   float64 `json:"avgReturnPct"`
	AvgAnnualized  float64 `json:"avgAnnualized"`
	WinRate        float64 `json:"winRate"`
	MaxDrawdownPct float64 `json:"maxDrawdownPct"`
}

// MarketConditionResult reports regime-conditional performance for all
// strategies under one condition.
type MarketConditionResult struct {
	Condition           string                `json:"condition"`
	PeriodCount         int                   `json:"periodCount"`
	AvgDuration         int                   `json:"avgDuration"`
	StrategyPerformance []StrategyPerformance `json:"strategyPerformance"`
}

// StockAnalysis is the precomputed per-symbol dashboard summary.
type StockAnalysis struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Exchange         string  `json:"exchange"`
	Sector           string  `json:"sector"`
	Price            float64 `json:"price"`
	Change           float64 `json:"change"`
	ChangePercent    float64 `json:"changePercent"`
	Signal           string  `json:"signal"`
	MACDHistogram    float64 `json:"macdHistogram"`
	MACDHistogramAdj float64 `json:"macdHistogramAdjusted"`
	RSI              float64 `json:"rsi"`
	SignalStrength   float64 `json:"signalStrength"`
	LastSignalChange string  `json:"lastSignalChange"`
	SignalChanges    int     `json:"signalChanges"`
	DataPoints       int     `json:"dataPoints"`
	Volume           int64   `json:"volume"`
}

// StockDetail bundles a symbol's summary with its recent indicator history.
type StockDetail struct {
	Symbol     string              `json:"symbol"`
	Name       string              `json:"name"`
	Exchange   string              `json:"exchange"`
	Sector     string              `json:"sector"`
	Indicators []IndicatorSnapshot `json:"indicators"`
	Summary    StockAnalysis       `json:"summary"`
}

// TopPerformer is a compact row for the gainers/losers/strong-buy lists.
type TopPerformer struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
	Signal        string  `json:"signal"`
	RSI           float64 `json:"rsi"`
}

// SignalStats summarizes the signal cache for the dashboard header.
type SignalStats struct {
	Total      int       `json:"total"`
	Buys       int       `json:"buys"`
	Sells      int       `json:"sells"`
	Holds      int       `json:"holds"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// SimulationRequest is the API payload for a single simulation run.
type SimulationRequest struct {
	StartDate      string      `json:"startDate"`
	EndDate        string      `json:"endDate,omitempty"`
	InitialCapital float64     `json:"initialCapital"`
	Strategy       ParamsPatch `json:"strategy"`
	Symbols        []string    `json:"symbols,omitempty"`
	AssetType      string      `json:"assetType,omitempty"`
	Exchange       string      `json:"exchange,omitempty"`
}

// PatchedStrategy pairs a display name with a partial parameter patch.
type PatchedStrategy struct {
	Name   string      `json:"name"`
	Params ParamsPatch `json:"params"`
}

// CompareRequest is the API payload for a randomized strategy comparison.
type CompareRequest struct {
	Strategies     []PatchedStrategy `json:"strategies"`
	Periods        []int             `json:"periods,omitempty"`
	InitialCapital float64           `json:"initialCapital"`
	Iterations     int               `json:"iterations"`
	Symbols        []string          `json:"symbols,omitempty"`
	AssetType      string            `json:"assetType,omitempty"`
	Exchange       string            `json:"exchange,omitempty"`
}

// MarketConditionsRequest is the API payload for regime-conditional analysis.
type MarketConditionsRequest struct {
	Strategies     []PatchedStrategy `json:"strategies"`
	InitialCapital float64           `json:"initialCapital"`
	Benchmark      string            `json:"benchmark,omitempty"`
	Symbols        []string          `json:"symbols,omitempty"`
	AssetType      string            `json:"assetType,omitempty"`
	Exchange       string            `json:"exchange,omitempty"`
}

// ---------------------------------------------------------------------------
// Response envelopes
// ---------------------------------------------------------------------------

// StockListResponse is a filtered, paged slice of the signal cache.
type StockListResponse struct {
	Stocks []StockAnalysis `json:"stocks"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// TopPerformersResponse groups the dashboard mover lists.
type TopPerformersResponse struct {
	TopGainers []TopPerformer `json:"topGainers"`
	TopLosers  []TopPerformer `json:"topLosers"`
	StrongBuys []TopPerformer `json:"strongBuys"`
}

// StatsResponse is the signal cache summary for one asset type.
type StatsResponse struct {
	AssetType string      `json:"assetType"`
	Stats     SignalStats `json:"stats"`
}

// SymbolsResponse lists the stored symbols for one asset type.
type SymbolsResponse struct {
	AssetType string   `json:"assetType"`
	Symbols   []string `json:"symbols"`
}

// DataRangeResponse reports the stored bar date boundaries.
type DataRangeResponse struct {
	AssetType string `json:"assetType"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// MarketConditionsResponse wraps the per-condition results.
type MarketConditionsResponse struct {
	Conditions []MarketConditionResult `json:"conditions"`
}
