// Package yahoo fetches historical prices from the Yahoo Finance CSV
// download endpoint. The endpoint is unofficial and rejects non-browser
// user agents, hence the spoofed header.
package yahoo

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/source"
)

const (
	SourceType = "yahoo"
	SourceName = "Yahoo Finance"

	defaultBaseURL = "https://query1.finance.yahoo.com"
	browserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	pacingDelay    = 500 * time.Millisecond
)

// columnNames maps the configurable price type to its CSV header.
var columnNames = map[string]string{
	"close":     "Close",
	"adj_close": "Adj Close",
	"open":      "Open",
	"high":      "High",
	"low":       "Low",
	"volume":    "Volume",
}

// periodYears maps the configurable lookback to years of history.
var periodYears = map[string]int{
	"1y":  1,
	"2y":  2,
	"5y":  5,
	"10y": 10,
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Source struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = source.DefaultTimeout
	}
	return &Source{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		logger:     logger.With("source", SourceType),
	}
}

func (s *Source) Type() string { return SourceType }
func (s *Source) Name() string { return SourceName }

func (s *Source) Description() string {
	return "Historical stock prices from Yahoo Finance"
}

func (s *Source) Configured() bool { return true }

func (s *Source) PacingDelay() time.Duration { return pacingDelay }

func (s *Source) ConfigFields() []source.FieldSpec {
	return []source.FieldSpec{
		{Key: "symbol", Type: "text", Label: "Ticker Symbol", Description: "e.g. AAPL or ^GSPC", Required: true},
		{Key: "period", Type: "select", Label: "History", Options: []string{"1y", "2y", "5y", "10y", "max"}, Default: "1y"},
		{Key: "data_type", Type: "select", Label: "Price Type", Options: []string{"close", "adj_close", "open", "high", "low", "volume"}, Default: "close"},
	}
}

func (s *Source) TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult {
	points, err := s.fetch(ctx, cfg)
	if err != nil {
		return domain.TestResult{Message: err.Error()}
	}
	return domain.TestResult{
		OK:          true,
		Message:     fmt.Sprintf("Connected. %d price rows available", len(points)),
		SampleCount: len(points),
	}
}

func (s *Source) FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	points, err := s.fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched prices", "symbol", cfg["symbol"], "count", len(points))
	return points, nil
}

func (s *Source) fetch(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	symbol := strings.TrimSpace(cfg["symbol"])
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	now := time.Now()
	period1 := int64(0)
	if years, ok := periodYears[s.period(cfg)]; ok {
		period1 = now.AddDate(-years, 0, 0).Unix()
	}

	url := fmt.Sprintf("%s/v7/finance/download/%s?period1=%d&period2=%d&interval=1d&events=history&includeAdjustedClose=true",
		s.baseURL, symbol, period1, now.Unix())

	status, body, err := source.Get(ctx, s.httpClient, url, browserAgent)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("symbol %q not found", symbol)
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return nil, fmt.Errorf("yahoo rejected the request with status %d", status)
	default:
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	return parseCSV(body, s.dataType(cfg))
}

func (s *Source) period(cfg domain.SourceConfig) string {
	if p := cfg["period"]; p != "" {
		return p
	}
	return "1y"
}

func (s *Source) dataType(cfg domain.SourceConfig) string {
	if t := cfg["data_type"]; t != "" {
		return t
	}
	return "close"
}

func parseCSV(body []byte, dataType string) ([]domain.RawPoint, error) {
	reader := csv.NewReader(strings.NewReader(string(body)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 || records[0][0] != "Date" {
		return nil, fmt.Errorf("unexpected response format")
	}

	wanted := columnNames[dataType]
	if wanted == "" {
		wanted = "Close"
	}
	valueCol := -1
	for i, name := range records[0] {
		if name == wanted {
			valueCol = i
			break
		}
	}
	if valueCol < 0 {
		return nil, fmt.Errorf("column %q not present in response", wanted)
	}

	points := make([]domain.RawPoint, 0, len(records)-1)
	for _, row := range records[1:] {
		if len(row) <= valueCol {
			continue
		}
		points = append(points, domain.RawPoint{Date: row[0], Value: row[valueCol]})
	}
	return points, nil
}
