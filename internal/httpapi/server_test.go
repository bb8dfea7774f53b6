package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mateo/internal/domain"
	"mateo/internal/sim"
	"mateo/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.ParquetStore, *store.SQLiteStore) {
	t.Helper()
	dir := t.TempDir()
	bars := store.NewParquetStore(filepath.Join(dir, "data"))
	db, err := store.NewSQLiteStore(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	loader := sim.NewStoreLoader(bars, db)
	engine := sim.NewEngine(loader, "SPY", nil)
	comp := sim.NewComparator(engine, 2, nil)

	s := NewServer(bars, db, db, engine, comp, Defaults{
		Capital:    10000,
		Benchmark:  "SPY",
		Iterations: 5,
		Timeout:    30 * time.Second,
	}, nil)
	return s, bars, db
}

func flatBars(start string, n int, price float64) []domain.Bar {
	day, _ := time.Parse("2006-01-02", start)
	bars := make([]domain.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = domain.Bar{
			Date:   day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
	return rec
}

func TestHandleSimulationRun(t *testing.T) {
	s, bars, _ := newTestServer(t)
	h := s.Handler()

	if err := bars.WriteBars(context.Background(), "stock", "AAPL", flatBars("2024-01-01", 120, 100)); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	var result domain.SimulationResult
	rec := doJSON(t, h, "POST", "/api/simulation/run",
		`{"startDate":"2024-01-01","endDate":"2024-06-30","symbols":["AAPL"],"strategy":{}}`,
		&result)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if result.InitialCapital != 10000 {
		t.Errorf("InitialCapital = %v, want default 10000", result.InitialCapital)
	}
	if result.TotalTrades != 0 {
		t.Errorf("flat series should trade 0 times, got %d", result.TotalTrades)
	}
	if len(result.Timeline) == 0 {
		t.Error("timeline empty")
	}
}

func TestHandleSimulationRunValidation(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/simulation/run", `{"symbols":["AAPL"]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing startDate: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/simulation/run", `not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", rec.Code)
	}

	// No stored data at all.
	rec = doJSON(t, h, "POST", "/api/simulation/run", `{"startDate":"2024-01-01"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("no data: status = %d, want 404", rec.Code)
	}
}

func TestHandleCompare(t *testing.T) {
	s, bars, _ := newTestServer(t)
	h := s.Handler()

	series := flatBars("2023-01-01", 500, 100)
	if err := bars.WriteBars(context.Background(), "stock", "AAPL", series); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	var comparison domain.StrategyComparison
	rec := doJSON(t, h, "POST", "/api/simulation/compare",
		`{"strategies":[{"name":"default","params":{}}],"periods":[1],"iterations":2}`,
		&comparison)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(comparison.Strategies) != 1 {
		t.Fatalf("got %d strategies, want 1", len(comparison.Strategies))
	}
	if comparison.Strategies[0].Name != "default" {
		t.Errorf("strategy name = %q", comparison.Strategies[0].Name)
	}
	if len(comparison.Strategies[0].Results) != 1 {
		t.Errorf("got %d period results, want 1", len(comparison.Strategies[0].Results))
	}
}

func TestHandleCompareValidation(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/simulation/compare", `{"strategies":[]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty strategies: status = %d, want 400", rec.Code)
	}
}

func TestHandleMarketConditionsMissingBenchmark(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/simulation/market-conditions",
		`{"strategies":[{"name":"default","params":{}}]}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing benchmark: status = %d, want 404", rec.Code)
	}
}

func TestHandleListStocks(t *testing.T) {
	s, _, db := newTestServer(t)
	h := s.Handler()

	rows := []domain.StockAnalysis{
		{Symbol: "AAPL", Name: "Apple Inc", Signal: "BUY", Price: 190, ChangePercent: 2.5},
		{Symbol: "MSFT", Name: "Microsoft", Signal: "SELL", Price: 410, ChangePercent: -1.0},
		{Symbol: "GOOG", Name: "Alphabet", Signal: "HOLD", Price: 150, ChangePercent: 0.2},
	}
	if err := db.SaveAnalyses(context.Background(), "stock", rows, time.Now()); err != nil {
		t.Fatalf("SaveAnalyses: %v", err)
	}

	var resp StockListResponse
	rec := doJSON(t, h, "GET", "/api/stocks", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Total != 3 || len(resp.Stocks) != 3 {
		t.Fatalf("total = %d, rows = %d, want 3/3", resp.Total, len(resp.Stocks))
	}

	resp = StockListResponse{}
	doJSON(t, h, "GET", "/api/stocks?signal=BUY", "", &resp)
	if resp.Total != 1 || resp.Stocks[0].Symbol != "AAPL" {
		t.Errorf("BUY filter: %+v", resp)
	}

	resp = StockListResponse{}
	doJSON(t, h, "GET", "/api/stocks?limit=2&offset=2", "", &resp)
	if resp.Total != 3 || len(resp.Stocks) != 1 {
		t.Errorf("paging: total = %d, rows = %d, want 3/1", resp.Total, len(resp.Stocks))
	}
}

func TestHandleTopPerformers(t *testing.T) {
	s, _, db := newTestServer(t)
	h := s.Handler()

	rows := []domain.StockAnalysis{
		{Symbol: "UP", Signal: "BUY", Price: 10, ChangePercent: 5, SignalStrength: 8},
		{Symbol: "DOWN", Signal: "SELL", Price: 10, ChangePercent: -5},
	}
	if err := db.SaveAnalyses(context.Background(), "stock", rows, time.Now()); err != nil {
		t.Fatalf("SaveAnalyses: %v", err)
	}

	var resp TopPerformersResponse
	rec := doJSON(t, h, "GET", "/api/stocks/top-performers", "", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(resp.TopGainers) == 0 || resp.TopGainers[0].Symbol != "UP" {
		t.Errorf("gainers: %+v", resp.TopGainers)
	}
	if len(resp.TopLosers) == 0 || resp.TopLosers[0].Symbol != "DOWN" {
		t.Errorf("losers: %+v", resp.TopLosers)
	}
	if len(resp.StrongBuys) == 0 || resp.StrongBuys[0].Symbol != "UP" {
		t.Errorf("strong buys: %+v", resp.StrongBuys)
	}
}

func TestHandleStockDetail(t *testing.T) {
	s, bars, db := newTestServer(t)
	h := s.Handler()
	ctx := context.Background()

	series := flatBars(time.Now().UTC().AddDate(0, 0, -119).Format("2006-01-02"), 120, 100)
	if err := bars.WriteBars(ctx, "stock", "AAPL", series); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	err := db.SaveSymbolMeta(ctx, []domain.SymbolMeta{
		{Symbol: "AAPL", Name: "Apple Inc", Exchange: "NASDAQ", AssetType: "stock"},
	})
	if err != nil {
		t.Fatalf("SaveSymbolMeta: %v", err)
	}

	var detail domain.StockDetail
	rec := doJSON(t, h, "GET", "/api/stocks/AAPL", "", &detail)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if detail.Symbol != "AAPL" || detail.Name != "Apple Inc" {
		t.Errorf("detail header: %+v", detail)
	}
	if len(detail.Indicators) == 0 || len(detail.Indicators) > 90 {
		t.Errorf("got %d indicator snapshots, want 1..90", len(detail.Indicators))
	}

	rec = doJSON(t, h, "GET", "/api/stocks/UNKNOWN", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown symbol: status = %d, want 404", rec.Code)
	}
}

func TestHandleStatsSymbolsDataRange(t *testing.T) {
	s, bars, db := newTestServer(t)
	h := s.Handler()
	ctx := context.Background()

	if err := bars.WriteBars(ctx, "stock", "AAPL", flatBars("2024-01-01", 10, 100)); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	rows := []domain.StockAnalysis{{Symbol: "AAPL", Signal: "BUY"}}
	if err := db.SaveAnalyses(ctx, "stock", rows, time.Now()); err != nil {
		t.Fatalf("SaveAnalyses: %v", err)
	}

	var stats StatsResponse
	if rec := doJSON(t, h, "GET", "/api/stats", "", &stats); rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	if stats.Stats.Total != 1 || stats.Stats.Buys != 1 {
		t.Errorf("stats: %+v", stats.Stats)
	}

	var symbols SymbolsResponse
	if rec := doJSON(t, h, "GET", "/api/symbols", "", &symbols); rec.Code != http.StatusOK {
		t.Fatalf("symbols status = %d", rec.Code)
	}
	if len(symbols.Symbols) != 1 || symbols.Symbols[0] != "AAPL" {
		t.Errorf("symbols: %+v", symbols.Symbols)
	}

	var dr DataRangeResponse
	if rec := doJSON(t, h, "GET", "/api/data-range", "", &dr); rec.Code != http.StatusOK {
		t.Fatalf("data-range status = %d", rec.Code)
	}
	if dr.Start != "2024-01-01" || dr.End != "2024-01-10" {
		t.Errorf("data range = %s..%s, want 2024-01-01..2024-01-10", dr.Start, dr.End)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest("OPTIONS", "/api/stocks", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
}

func TestBroadcastProgressPercent(t *testing.T) {
	hub := NewHub(nil)

	// No clients connected: events are queued then dropped, never blocking.
	for i := 0; i <= 100; i++ {
		hub.BroadcastProgress(i, 100)
	}

	select {
	case payload := <-hub.broadcast:
		var ev ProgressEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.Type != "progress" || ev.Total != 100 {
			t.Errorf("event: %+v", ev)
		}
		if ev.Percent != float64(ev.Completed) {
			t.Errorf("percent = %v for completed %d of 100", ev.Percent, ev.Completed)
		}
	default:
		t.Fatal("no event queued")
	}
}

func TestWebSocketRejectsClientsAfterShutdown(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx) // returns immediately and marks the hub done

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A handler reaching a stopped hub must close the connection instead of
	// blocking on registration.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the server to close the connection")
	}
}
