package mateo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:3000"
	c := NewClient(baseURL)

	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != baseURL {
		t.Errorf("expected baseURL %q, got %q", baseURL, c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestParamsPatchDefaults(t *testing.T) {
	fast := 8
	got := ParamsPatch{MACDFastPeriod: &fast}.WithDefaults()
	if got.MACDFastPeriod != 8 {
		t.Errorf("MACDFastPeriod = %d, want patched 8", got.MACDFastPeriod)
	}
	if got.MACDSlowPeriod != 26 || got.RSIPeriod != 12 {
		t.Errorf("unpatched fields not defaulted: %+v", got)
	}
}

func TestRunSimulation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/simulation/run" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req SimulationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.StartDate != "2024-01-01" {
			t.Errorf("startDate = %q", req.StartDate)
		}
		json.NewEncoder(w).Encode(SimulationResult{FinalValue: 11000, InitialCapital: 10000})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.RunSimulation(context.Background(), SimulationRequest{StartDate: "2024-01-01"})
	if err != nil {
		t.Fatalf("RunSimulation: %v", err)
	}
	if result.FinalValue != 11000 {
		t.Errorf("FinalValue = %v, want 11000", result.FinalValue)
	}
}

func TestListStocksQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("signal") != "BUY" || q.Get("limit") != "5" || q.Get("sortDir") != "asc" {
			t.Errorf("unexpected query: %v", q)
		}
		json.NewEncoder(w).Encode(StockListResponse{
			Stocks: []StockAnalysis{{Symbol: "AAPL"}},
			Total:  1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.ListStocks(context.Background(), StockListOptions{Signal: "BUY", Limit: 5, SortAsc: true})
	if err != nil {
		t.Fatalf("ListStocks: %v", err)
	}
	if resp.Total != 1 || resp.Stocks[0].Symbol != "AAPL" {
		t.Errorf("response: %+v", resp)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no data for XYZ"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.StockDetail(context.Background(), "XYZ", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "no data for XYZ" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestDataRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(DataRangeResponse{AssetType: "stock", Start: "2015-01-02", End: "2026-08-29"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	start, end, err := c.DataRange(context.Background(), "stock")
	if err != nil {
		t.Fatalf("DataRange: %v", err)
	}
	if start != "2015-01-02" || end != "2026-08-29" {
		t.Errorf("range = %s..%s", start, end)
	}
}
