package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"mateo/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<assetType>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, assetType, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	groups := make(map[int][]BarRecord)
	for _, b := range bars {
		t, err := parseDate(b.Date)
		if err != nil {
			return fmt.Errorf("bar for %s: %w", symbol, err)
		}
		groups[t.Year()] = append(groups[t.Year()], BarRecord{
			Symbol:    strings.ToUpper(symbol),
			Timestamp: t.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for year, records := range groups {
		path := s.barPath(assetType, symbol, year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and date range.
func (s *ParquetStore) ReadBars(_ context.Context, assetType, symbol, start, end string) ([]domain.Bar, error) {
	startT, err := parseDate(start)
	if err != nil {
		return nil, err
	}
	endT, err := parseDate(end)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for year := startT.Year(); year <= endT.Year(); year++ {
		path := s.barPath(assetType, symbol, year)

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			// File doesn't exist for this year — skip.
			continue
		}

		for _, r := range records {
			date := formatDate(r.Timestamp)
			if date >= start && date <= end {
				bars = append(bars, domain.Bar{
					Date:   date,
					Open:   r.Open,
					High:   r.High,
					Low:    r.Low,
					Close:  r.Close,
					Volume: r.Volume,
				})
			}
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars, nil
}

// ListSymbols lists all symbols that have bar data for the given asset type.
func (s *ParquetStore) ListSymbols(_ context.Context, assetType string) ([]string, error) {
	dir := filepath.Join(s.DataDir, assetType, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// DataRange scans year file names to find the boundary years, then reads only
// the boundary-year files to resolve exact dates.
func (s *ParquetStore) DataRange(ctx context.Context, assetType string) (string, string, error) {
	symbols, err := s.ListSymbols(ctx, assetType)
	if err != nil {
		return "", "", err
	}

	minYear, maxYear := 0, 0
	for _, sym := range symbols {
		years, err := s.listYears(assetType, sym)
		if err != nil {
			return "", "", err
		}
		for _, y := range years {
			if minYear == 0 || y < minYear {
				minYear = y
			}
			if y > maxYear {
				maxYear = y
			}
		}
	}
	if minYear == 0 {
		return "", "", nil
	}

	minDate, maxDate := "", ""
	for _, sym := range symbols {
		for _, year := range []int{minYear, maxYear} {
			records, err := readParquetFile[BarRecord](s.barPath(assetType, sym, year))
			if err != nil {
				continue
			}
			for _, r := range records {
				date := formatDate(r.Timestamp)
				if minDate == "" || date < minDate {
					minDate = date
				}
				if date > maxDate {
					maxDate = date
				}
			}
		}
	}
	return minDate, maxDate, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<assetType>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(assetType, symbol string, year int) string {
	return filepath.Join(s.DataDir, assetType, "daily", strings.ToUpper(symbol), strconv.Itoa(year)+".parquet")
}

// listYears returns the years with stored files for a symbol, ascending.
func (s *ParquetStore) listYears(assetType, symbol string) ([]int, error) {
	dir := filepath.Join(s.DataDir, assetType, "daily", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var years []int
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".parquet")
		if year, err := strconv.Atoi(name); err == nil {
			years = append(years, year)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by timestamp, preferring new
// records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

func parseDate(date string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

func formatDate(unixMs int64) string {
	return time.UnixMilli(unixMs).UTC().Format("2006-01-02")
}
