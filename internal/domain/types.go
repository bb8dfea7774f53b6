// Package domain defines the value types shared across the mateo platform:
// price bars, indicator snapshots, strategy parameters, and the result
// records produced by the simulation engine. The API-visible types are owned
// by pkg/mateo so external SDK consumers can name them; this package aliases
// those and adds the server-only types.
package domain

import "mateo/pkg/mateo"

// Signal classification constants.
const (
	SignalBuy  = mateo.SignalBuy
	SignalSell = mateo.SignalSell
	SignalHold = mateo.SignalHold
)

// Trade actions recorded by the simulator.
const (
	ActionBuy  = mateo.ActionBuy
	ActionSell = mateo.ActionSell
)

// Market regime conditions derived from a benchmark series.
const (
	ConditionBull     = mateo.ConditionBull
	ConditionBear     = mateo.ConditionBear
	ConditionSideways = mateo.ConditionSideways
)

// Asset types understood by the bar loader.
const (
	AssetTypeStock  = mateo.AssetTypeStock
	AssetTypeCrypto = mateo.AssetTypeCrypto
)

// Wire types shared with the SDK.
type (
	IndicatorSnapshot       = mateo.IndicatorSnapshot
	TradeRecord             = mateo.TradeRecord
	PositionDetail          = mateo.PositionDetail
	PortfolioSnapshot       = mateo.PortfolioSnapshot
	SimulationResult        = mateo.SimulationResult
	PeriodResult            = mateo.PeriodResult
	StrategyResult          = mateo.StrategyResult
	StrategyComparison      = mateo.StrategyComparison
	StrategyPerformance     = mateo.StrategyPerformance
	MarketConditionResult   = mateo.MarketConditionResult
	StockAnalysis           = mateo.StockAnalysis
	StockDetail             = mateo.StockDetail
	TopPerformer            = mateo.TopPerformer
	SimulationRequest       = mateo.SimulationRequest
	PatchedStrategy         = mateo.PatchedStrategy
	CompareRequest          = mateo.CompareRequest
	MarketConditionsRequest = mateo.MarketConditionsRequest
)

// Bar is one daily OHLCV bar for a symbol. Date is an ISO calendar date
// ("2006-01-02"); within a series dates strictly increase.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// MarketPeriod is a contiguous date range of one market regime. Consecutive
// periods never share a condition.
type MarketPeriod struct {
	Condition string `json:"condition"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// SymbolMeta is the reference metadata for one listed symbol.
type SymbolMeta struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Exchange  string `json:"exchange"`
	Sector    string `json:"sector"`
	AssetType string `json:"assetType"`
}

// NamedStrategy pairs a display name with fully resolved parameters.
type NamedStrategy struct {
	Name   string         `json:"name"`
	Params StrategyParams `json:"params"`
}
