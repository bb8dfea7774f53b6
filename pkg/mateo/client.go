// Package mateo provides a Go SDK for the mateo-server HTTP API.
package mateo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client provides typed access to the mateo-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. The default request timeout is five
// minutes so long-running comparisons are not cut off mid-flight.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// StockListOptions filters and pages the stock list.
type StockListOptions struct {
	AssetType string
	Signal    string
	Search    string
	SortBy    string
	SortAsc   bool
	Limit     int
	Offset    int
}

// RunSimulation runs one backtest and returns the full result.
func (c *Client) RunSimulation(ctx context.Context, req SimulationRequest) (*SimulationResult, error) {
	var result SimulationResult
	if err := c.post(ctx, "/api/simulation/run", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CompareStrategies runs the randomized strategy comparison.
func (c *Client) CompareStrategies(ctx context.Context, req CompareRequest) (*StrategyComparison, error) {
	var result StrategyComparison
	if err := c.post(ctx, "/api/simulation/compare", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarketConditions runs the regime-conditional strategy analysis.
func (c *Client) MarketConditions(ctx context.Context, req MarketConditionsRequest) ([]MarketConditionResult, error) {
	var result MarketConditionsResponse
	if err := c.post(ctx, "/api/simulation/market-conditions", req, &result); err != nil {
		return nil, err
	}
	return result.Conditions, nil
}

// ListStocks returns a filtered page of the signal cache.
func (c *Client) ListStocks(ctx context.Context, opts StockListOptions) (*StockListResponse, error) {
	q := url.Values{}
	if opts.AssetType != "" {
		q.Set("assetType", opts.AssetType)
	}
	if opts.Signal != "" {
		q.Set("signal", opts.Signal)
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.SortBy != "" {
		q.Set("sortBy", opts.SortBy)
	}
	if opts.SortAsc {
		q.Set("sortDir", "asc")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var result StockListResponse
	if err := c.get(ctx, "/api/stocks", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TopPerformers returns the gainer, loser, and strong-buy lists.
func (c *Client) TopPerformers(ctx context.Context, assetType string, limit int) (*TopPerformersResponse, error) {
	q := url.Values{}
	if assetType != "" {
		q.Set("assetType", assetType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var result TopPerformersResponse
	if err := c.get(ctx, "/api/stocks/top-performers", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StockDetail returns one symbol's summary plus recent indicator history.
func (c *Client) StockDetail(ctx context.Context, symbol, assetType string) (*StockDetail, error) {
	q := url.Values{}
	if assetType != "" {
		q.Set("assetType", assetType)
	}

	var result StockDetail
	if err := c.get(ctx, "/api/stocks/"+url.PathEscape(symbol), q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats returns the signal cache summary.
func (c *Client) Stats(ctx context.Context, assetType string) (*StatsResponse, error) {
	q := url.Values{}
	if assetType != "" {
		q.Set("assetType", assetType)
	}

	var result StatsResponse
	if err := c.get(ctx, "/api/stats", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Symbols returns the stored symbols for the asset type.
func (c *Client) Symbols(ctx context.Context, assetType string) ([]string, error) {
	q := url.Values{}
	if assetType != "" {
		q.Set("assetType", assetType)
	}

	var result SymbolsResponse
	if err := c.get(ctx, "/api/symbols", q, &result); err != nil {
		return nil, err
	}
	return result.Symbols, nil
}

// DataRange returns the stored bar date boundaries for the asset type.
func (c *Client) DataRange(ctx context.Context, assetType string) (start, end string, err error) {
	q := url.Values{}
	if assetType != "" {
		q.Set("assetType", assetType)
	}

	var result DataRangeResponse
	if err := c.get(ctx, "/api/data-range", q, &result); err != nil {
		return "", "", err
	}
	return result.Start, result.End, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := string(data)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
