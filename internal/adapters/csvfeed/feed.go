package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

var header = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

// FileName returns the file a symbol's klines for interval are stored in.
func FileName(symbol, interval string) string {
	return fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), interval)
}

// WriteKlines writes klines to filename, replacing any previous content.
func WriteKlines(klines []*domain.Kline, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filename, err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, k := range klines {
		err := writer.Write([]string{
			k.OpenTime.UTC().Format(time.RFC3339),
			k.CloseTime.UTC().Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadKlines reads klines written by WriteKlines, ordered by open time.
func ReadKlines(filename string) ([]*domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(header)

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", filename, err)
	}

	var klines []*domain.Kline
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, line, err)
		}
		k, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filename, line, err)
		}
		klines = append(klines, k)
	}
	sort.SliceStable(klines, func(i, j int) bool { return klines[i].OpenTime.Before(klines[j].OpenTime) })
	return klines, nil
}

func parseRecord(r []string) (*domain.Kline, error) {
	openTime, err := time.Parse(time.RFC3339, r[0])
	if err != nil {
		return nil, fmt.Errorf("parsing open_time: %w", err)
	}
	closeTime, err := time.Parse(time.RFC3339, r[1])
	if err != nil {
		return nil, fmt.Errorf("parsing close_time: %w", err)
	}
	var values [5]float64
	for i := range values {
		values[i], err = strconv.ParseFloat(r[4+i], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", header[4+i], err)
		}
	}
	return &domain.Kline{
		OpenTime:  openTime,
		CloseTime: closeTime,
		Symbol:    r[2],
		Interval:  r[3],
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		IsFinal:   true,
	}, nil
}

// Feed implements ports.MarketDataClient over a directory of kline CSV files.
type Feed struct {
	dir    string
	cutoff time.Time
	logger ports.Logger
}

// New creates a feed reading from dir.
func New(dir string, logger ports.Logger) (*Feed, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: CSV directory must be set", ports.ErrConfigurationError)
	}
	return &Feed{dir: dir, logger: logger}, nil
}

// AsOf returns a feed that only serves klines closed at or before t.
func (f *Feed) AsOf(t time.Time) *Feed {
	c := *f
	c.cutoff = t
	return &c
}

// Ping checks that the data directory is readable.
func (f *Feed) Ping(ctx context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrConnectionFailed, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ports.ErrConfigurationError, f.dir)
	}
	return nil
}

// GetKlines returns up to limit of the most recent klines, oldest first.
func (f *Feed) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
	}
	klines, err := f.load(symbol, interval)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}
	return klines, nil
}

// GetTickerPrice returns the close of the latest kline across every interval
// stored for symbol.
func (f *Feed) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, strings.ToUpper(symbol)+"_*.csv"))
	if err != nil {
		return 0, err
	}
	var latest *domain.Kline
	for _, m := range matches {
		interval := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), strings.ToUpper(symbol)+"_"), ".csv")
		klines, err := f.load(symbol, interval)
		if err != nil {
			return 0, err
		}
		if n := len(klines); n > 0 && (latest == nil || klines[n-1].CloseTime.After(latest.CloseTime)) {
			latest = klines[n-1]
		}
	}
	if latest == nil {
		return 0, fmt.Errorf("%w: no klines stored for %s", ports.ErrNotFound, symbol)
	}
	return latest.Close, nil
}

func (f *Feed) load(symbol, interval string) ([]*domain.Kline, error) {
	path := filepath.Join(f.dir, FileName(symbol, interval))
	klines, err := ReadKlines(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no CSV for %s %s", ports.ErrDataUnavailable, symbol, interval)
		}
		f.logger.Error(context.Background(), err, "Failed to read klines", map[string]interface{}{"path": path})
		return nil, fmt.Errorf("%w: %w", ports.ErrInvalidRequest, err)
	}
	if f.cutoff.IsZero() {
		return klines, nil
	}
	n := sort.Search(len(klines), func(i int) bool { return klines[i].CloseTime.After(f.cutoff) })
	return klines[:n], nil
}
