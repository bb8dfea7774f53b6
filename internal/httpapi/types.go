// Package httpapi provides the HTTP REST API over the stores and the
// simulation engine, serving the dashboard and scripting clients in JSON.
// Response envelopes are owned by pkg/mateo and aliased here so the server
// and the SDK share one wire definition.
package httpapi

import "mateo/pkg/mateo"

type (
	StockListResponse        = mateo.StockListResponse
	TopPerformersResponse    = mateo.TopPerformersResponse
	StatsResponse            = mateo.StatsResponse
	SymbolsResponse          = mateo.SymbolsResponse
	DataRangeResponse        = mateo.DataRangeResponse
	MarketConditionsResponse = mateo.MarketConditionsResponse
)
