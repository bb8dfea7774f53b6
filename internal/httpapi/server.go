package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mateo/internal/domain"
	"mateo/internal/indicator"
	"mateo/internal/sim"
	"mateo/internal/store"
)

const (
	detailSnapshots  = 90
	detailLookback   = 400
	defaultBenchmark = "SPY"
)

// defaultPeriods are the comparison horizons used when a request names none.
var defaultPeriods = []int{5, 10, 20}

// Defaults carries the request fallbacks configured at startup.
type Defaults struct {
	Capital    float64
	Benchmark  string
	Iterations int
	Timeout    time.Duration
}

// Server serves the REST API over the stores and the simulation engine.
type Server struct {
	bars     store.BarStore
	meta     store.MetadataStore
	signals  store.SignalStore
	engine   *sim.Engine
	comp     *sim.Comparator
	hub      *Hub
	defaults Defaults
	log      *slog.Logger
}

// NewServer creates a Server wired to the given stores and engine. The
// comparator's progress callback is attached to the WebSocket hub.
func NewServer(bars store.BarStore, meta store.MetadataStore, signals store.SignalStore, engine *sim.Engine, comp *sim.Comparator, defaults Defaults, log *slog.Logger) *Server {
	if defaults.Capital <= 0 {
		defaults.Capital = 10000
	}
	if defaults.Benchmark == "" {
		defaults.Benchmark = defaultBenchmark
	}
	if defaults.Iterations < 1 {
		defaults.Iterations = 10
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		bars:     bars,
		meta:     meta,
		signals:  signals,
		engine:   engine,
		comp:     comp,
		hub:      NewHub(log),
		defaults: defaults,
		log:      log,
	}
	if comp != nil {
		comp.Progress = s.hub.BroadcastProgress
	}
	return s
}

// Run starts the hub's broadcast loop. It should be launched as a goroutine
// before serving.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/simulation/run", s.handleSimulationRun)
	mux.HandleFunc("POST /api/simulation/compare", s.handleCompare)
	mux.HandleFunc("POST /api/simulation/market-conditions", s.handleMarketConditions)
	mux.HandleFunc("GET /api/stocks", s.handleListStocks)
	mux.HandleFunc("GET /api/stocks/top-performers", s.handleTopPerformers)
	mux.HandleFunc("GET /api/stocks/{symbol}", s.handleStockDetail)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/data-range", s.handleDataRange)
	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Simulation handlers
// ---------------------------------------------------------------------------

func (s *Server) handleSimulationRun(w http.ResponseWriter, r *http.Request) {
	var req domain.SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StartDate == "" {
		writeError(w, http.StatusBadRequest, "startDate required")
		return
	}
	endDate := req.EndDate
	if endDate == "" {
		endDate = time.Now().UTC().Format("2006-01-02")
	}
	capital := req.InitialCapital
	if capital <= 0 {
		capital = s.defaults.Capital
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.defaults.Timeout)
	defer cancel()

	result, err := s.engine.Run(ctx, sim.RunRequest{
		StartDate:      req.StartDate,
		EndDate:        endDate,
		InitialCapital: capital,
		Params:         req.Strategy.WithDefaults(),
		Symbols:        req.Symbols,
		AssetType:      req.AssetType,
		Exchange:       req.Exchange,
	})
	if err != nil {
		s.simError(w, err, "simulation failed")
		return
	}
	writeJSON(w, result)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req domain.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Strategies) == 0 {
		writeError(w, http.StatusBadRequest, "at least one strategy required")
		return
	}
	periods := req.Periods
	if len(periods) == 0 {
		periods = defaultPeriods
	}
	capital := req.InitialCapital
	if capital <= 0 {
		capital = s.defaults.Capital
	}
	iterations := req.Iterations
	if iterations < 1 {
		iterations = s.defaults.Iterations
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.defaults.Timeout)
	defer cancel()

	comparison, err := s.comp.Compare(ctx, sim.CompareSpec{
		Strategies:     resolveStrategies(req.Strategies),
		Periods:        periods,
		InitialCapital: capital,
		Iterations:     iterations,
		Symbols:        req.Symbols,
		AssetType:      req.AssetType,
		Exchange:       req.Exchange,
	})
	if err != nil {
		s.simError(w, err, "comparison failed")
		return
	}
	writeJSON(w, comparison)
}

func (s *Server) handleMarketConditions(w http.ResponseWriter, r *http.Request) {
	var req domain.MarketConditionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Strategies) == 0 {
		writeError(w, http.StatusBadRequest, "at least one strategy required")
		return
	}
	capital := req.InitialCapital
	if capital <= 0 {
		capital = s.defaults.Capital
	}
	benchmark := req.Benchmark
	if benchmark == "" {
		benchmark = s.defaults.Benchmark
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.defaults.Timeout)
	defer cancel()

	conditions, err := s.comp.MarketConditions(ctx, sim.MarketConditionsSpec{
		Strategies:     resolveStrategies(req.Strategies),
		InitialCapital: capital,
		Benchmark:      benchmark,
		Symbols:        req.Symbols,
		AssetType:      req.AssetType,
		Exchange:       req.Exchange,
	})
	if err != nil {
		s.simError(w, err, "market conditions analysis failed")
		return
	}
	writeJSON(w, MarketConditionsResponse{Conditions: conditions})
}

// simError maps engine errors to HTTP statuses.
func (s *Server) simError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, sim.ErrNoData), errors.Is(err, sim.ErrNoBenchmark):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusBadRequest, "request cancelled")
	default:
		s.log.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

// resolveStrategies merges each partial patch onto the built-in defaults.
func resolveStrategies(patched []domain.PatchedStrategy) []domain.NamedStrategy {
	out := make([]domain.NamedStrategy, 0, len(patched))
	for _, p := range patched {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("strategy-%d", len(out)+1)
		}
		out = append(out, domain.NamedStrategy{Name: name, Params: p.Params.WithDefaults()})
	}
	return out
}

// ---------------------------------------------------------------------------
// Stock list handlers
// ---------------------------------------------------------------------------

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AnalysisFilter{
		AssetType: assetTypeParam(r),
		Signal:    strings.ToUpper(q.Get("signal")),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortAsc:   q.Get("sortDir") == "asc",
		Limit:     intParam(q.Get("limit"), 100),
		Offset:    intParam(q.Get("offset"), 0),
	}

	rows, total, err := s.signals.ListAnalyses(r.Context(), filter)
	if err != nil {
		s.log.Error("listing stocks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list stocks")
		return
	}
	if rows == nil {
		rows = []domain.StockAnalysis{}
	}
	writeJSON(w, StockListResponse{Stocks: rows, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (s *Server) handleTopPerformers(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query().Get("limit"), 10)

	gainers, losers, strongBuys, err := s.signals.TopPerformers(r.Context(), assetTypeParam(r), limit)
	if err != nil {
		s.log.Error("loading top performers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load top performers")
		return
	}
	resp := TopPerformersResponse{TopGainers: gainers, TopLosers: losers, StrongBuys: strongBuys}
	if resp.TopGainers == nil {
		resp.TopGainers = []domain.TopPerformer{}
	}
	if resp.TopLosers == nil {
		resp.TopLosers = []domain.TopPerformer{}
	}
	if resp.StrongBuys == nil {
		resp.StrongBuys = []domain.TopPerformer{}
	}
	writeJSON(w, resp)
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	assetType := assetTypeParam(r)
	ctx := r.Context()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -detailLookback)
	bars, err := s.bars.ReadBars(ctx, assetType, symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		s.log.Error("reading bars", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read price data")
		return
	}
	if len(bars) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no data for %s", symbol))
		return
	}

	snaps := indicator.Compute(bars, domain.DefaultStrategyParams())
	if len(snaps) > detailSnapshots {
		snaps = snaps[len(snaps)-detailSnapshots:]
	}

	detail := domain.StockDetail{Symbol: symbol, Indicators: snaps}

	if row, err := s.signals.GetAnalysis(ctx, symbol); err == nil && row != nil {
		detail.Summary = *row
		detail.Name = row.Name
		detail.Exchange = row.Exchange
		detail.Sector = row.Sector
	} else if meta, err := s.meta.GetSymbolMeta(ctx, symbol); err == nil && meta != nil {
		detail.Name = meta.Name
		detail.Exchange = meta.Exchange
		detail.Sector = meta.Sector
	}

	writeJSON(w, detail)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	assetType := assetTypeParam(r)
	stats, err := s.signals.Stats(r.Context(), assetType)
	if err != nil {
		s.log.Error("loading stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, StatsResponse{AssetType: assetType, Stats: *stats})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	assetType := assetTypeParam(r)
	symbols, err := s.bars.ListSymbols(r.Context(), assetType)
	if err != nil {
		s.log.Error("listing symbols", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list symbols")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, SymbolsResponse{AssetType: assetType, Symbols: symbols})
}

func (s *Server) handleDataRange(w http.ResponseWriter, r *http.Request) {
	assetType := assetTypeParam(r)
	minDate, maxDate, err := s.bars.DataRange(r.Context(), assetType)
	if err != nil {
		s.log.Error("reading data range", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read data range")
		return
	}
	writeJSON(w, DataRangeResponse{AssetType: assetType, Start: minDate, End: maxDate})
}

// ---------------------------------------------------------------------------
// Query helpers
// ---------------------------------------------------------------------------

func assetTypeParam(r *http.Request) string {
	assetType := r.URL.Query().Get("assetType")
	if assetType == "" {
		return domain.AssetTypeStock
	}
	return strings.ToLower(assetType)
}

func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
