package marketdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/nathanyu/algo-trading/internal/domain"
	"github.com/nathanyu/algo-trading/internal/telemetry"
)

// CandleRecord is the parquet schema for archived candles.
type CandleRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
	Interval  string  `parquet:"interval"`
}

// Archive persists completed candles as parquet files on disk.
type Archive struct {
	DataDir string
}

// NewArchive creates an archive rooted at the given data directory.
func NewArchive(dataDir string) *Archive {
	return &Archive{DataDir: dataDir}
}

// WriteCandles writes candles to parquet files organized by symbol and
// date. Records already present for the day are merged and deduplicated.
func (a *Archive) WriteCandles(candles []domain.Candlestick) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		symbol string
		date   string // YYYY-MM-DD
	}
	groups := make(map[key][]CandleRecord)
	for _, c := range candles {
		k := key{symbol: c.Symbol, date: c.Timestamp.Format("2006-01-02")}
		groups[k] = append(groups[k], CandleRecord{
			Symbol:    c.Symbol,
			Timestamp: c.Timestamp.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Interval:  c.Interval,
		})
	}

	for k, records := range groups {
		t, _ := time.Parse("2006-01-02", k.date)
		path := a.candlePath(k.symbol, t)

		existing, _ := readParquetFile[CandleRecord](path)
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%s: %w", k.symbol, k.date, err)
		}
		telemetry.CandlesArchived.WithLabelValues(k.symbol).Add(float64(len(records)))
	}
	return nil
}

// ReadCandles reads archived candles for a symbol and time range.
func (a *Archive) ReadCandles(symbol string, start, end time.Time) ([]domain.Candlestick, error) {
	var candles []domain.Candlestick
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		path := a.candlePath(symbol, d)

		records, err := readParquetFile[CandleRecord](path)
		if err != nil {
			// File doesn't exist for this day — skip.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if (ts.Equal(start) || ts.After(start)) && (ts.Equal(end) || ts.Before(end)) {
				candles = append(candles, domain.Candlestick{
					Symbol:    r.Symbol,
					Open:      r.Open,
					High:      r.High,
					Low:       r.Low,
					Close:     r.Close,
					Volume:    r.Volume,
					Timestamp: ts,
					Interval:  r.Interval,
				})
			}
		}
	}
	return candles, nil
}

// ListSymbols lists all symbols that have archived candles.
func (a *Archive) ListSymbols() ([]string, error) {
	dir := filepath.Join(a.DataDir, "candles")
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

// candlePath returns the filesystem path for a candle parquet file.
// Layout: <dataDir>/candles/<SYMBOL>/<YYYY-MM-DD>.parquet
func (a *Archive) candlePath(symbol string, t time.Time) string {
	date := t.Format("2006-01-02")
	return filepath.Join(a.DataDir, "candles", strings.ToUpper(symbol), date+".parquet")
}

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

// mergeCandleRecords deduplicates candle records by (symbol, timestamp),
// preferring new records over existing ones. Results are sorted by
// timestamp.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
