// Package alphavantage fetches stock, FX, crypto, and economic series
// from the Alpha Vantage API. The response envelope is keyed differently
// per API function, so both the data key and the value key are looked up
// from the configured function.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/source"
)

const (
	SourceType = "alphavantage"
	SourceName = "Alpha Vantage"

	defaultBaseURL = "https://www.alphavantage.co/query"

	// The free tier allows 25 requests per day; long pacing keeps a
	// batch of a few series inside the per-minute ceiling.
	pacingDelay = 15 * time.Second
)

// dataKeys maps an API function to the top-level key holding its series.
var dataKeys = map[string]string{
	"TIME_SERIES_DAILY":      "Time Series (Daily)",
	"TIME_SERIES_WEEKLY":     "Weekly Time Series",
	"TIME_SERIES_MONTHLY":    "Monthly Time Series",
	"FX_DAILY":               "Time Series FX (Daily)",
	"DIGITAL_CURRENCY_DAILY": "Time Series (Digital Currency Daily)",
	"REAL_GDP":               "data",
	"INFLATION":              "data",
	"UNEMPLOYMENT":           "data",
}

// valueKeys maps an API function to the per-entry field to extract.
var valueKeys = map[string]string{
	"TIME_SERIES_DAILY":      "4. close",
	"TIME_SERIES_WEEKLY":     "4. close",
	"TIME_SERIES_MONTHLY":    "4. close",
	"FX_DAILY":               "4. close",
	"DIGITAL_CURRENCY_DAILY": "4a. close (USD)",
	"REAL_GDP":               "value",
	"INFLATION":              "value",
	"UNEMPLOYMENT":           "value",
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Source struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
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
		apiKey:     cfg.APIKey,
		logger:     logger.With("source", SourceType),
	}
}

func (s *Source) Type() string { return SourceType }
func (s *Source) Name() string { return SourceName }

func (s *Source) Description() string {
	return "Stock, FX, crypto, and US economic data from Alpha Vantage"
}

func (s *Source) Configured() bool { return s.apiKey != "" }

func (s *Source) PacingDelay() time.Duration { return pacingDelay }

func (s *Source) ConfigFields() []source.FieldSpec {
	functions := make([]string, 0, len(dataKeys))
	for fn := range dataKeys {
		functions = append(functions, fn)
	}
	return []source.FieldSpec{
		{Key: "function", Type: "select", Label: "API Function", Options: functions, Default: "TIME_SERIES_DAILY", Required: true},
		{Key: "symbol", Type: "text", Label: "Symbol", Description: "Ticker for stock and crypto functions, e.g. IBM or BTC"},
		{Key: "from_symbol", Type: "text", Label: "From Currency", Description: "FX base currency, e.g. EUR"},
		{Key: "to_symbol", Type: "text", Label: "To Currency", Description: "FX quote currency, e.g. USD"},
		{Key: "outputsize", Type: "select", Label: "Output Size", Options: []string{"compact", "full"}, Default: "full"},
	}
}

func (s *Source) TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult {
	entries, err := s.fetch(ctx, cfg)
	if err != nil {
		return domain.TestResult{Message: err.Error()}
	}
	return domain.TestResult{
		OK:          true,
		Message:     fmt.Sprintf("Connected. %d observations available", len(entries)),
		SampleCount: len(entries),
	}
}

func (s *Source) FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	return s.fetch(ctx, cfg)
}

func (s *Source) fetch(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("Alpha Vantage API key is not configured")
	}

	function := cfg["function"]
	if function == "" {
		function = "TIME_SERIES_DAILY"
	}
	dataKey, ok := dataKeys[function]
	if !ok {
		return nil, fmt.Errorf("unsupported function %q", function)
	}

	params, err := s.buildParams(function, cfg)
	if err != nil {
		return nil, err
	}

	status, body, err := source.Get(ctx, s.httpClient, s.baseURL+"?"+params.Encode(), source.UserAgent)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Provider errors come back with status 200 and a descriptive field.
	if raw, ok := envelope["Error Message"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		return nil, fmt.Errorf("alphavantage: %s", msg)
	}
	for _, key := range []string{"Note", "Information"} {
		if raw, ok := envelope[key]; ok {
			var msg string
			_ = json.Unmarshal(raw, &msg)
			if strings.Contains(strings.ToLower(msg), "call frequency") || strings.Contains(strings.ToLower(msg), "rate limit") {
				return nil, fmt.Errorf("alphavantage: rate limit reached")
			}
			return nil, fmt.Errorf("alphavantage: %s", msg)
		}
	}

	raw, ok := envelope[dataKey]
	if !ok {
		return nil, fmt.Errorf("response missing %q", dataKey)
	}

	if dataKey == "data" {
		return parseEconomic(raw)
	}
	return parseTimeSeries(raw, valueKeys[function])
}

func (s *Source) buildParams(function string, cfg domain.SourceConfig) (url.Values, error) {
	params := url.Values{}
	params.Set("function", function)
	params.Set("apikey", s.apiKey)

	switch function {
	case "FX_DAILY":
		if cfg["from_symbol"] == "" || cfg["to_symbol"] == "" {
			return nil, fmt.Errorf("from_symbol and to_symbol are required")
		}
		params.Set("from_symbol", cfg["from_symbol"])
		params.Set("to_symbol", cfg["to_symbol"])
		params.Set("outputsize", s.outputSize(cfg))
	case "DIGITAL_CURRENCY_DAILY":
		if cfg["symbol"] == "" {
			return nil, fmt.Errorf("symbol is required")
		}
		params.Set("symbol", cfg["symbol"])
		params.Set("market", "USD")
	case "REAL_GDP", "INFLATION", "UNEMPLOYMENT":
		// Economic functions take no instrument parameters.
	default:
		if cfg["symbol"] == "" {
			return nil, fmt.Errorf("symbol is required")
		}
		params.Set("symbol", cfg["symbol"])
		params.Set("outputsize", s.outputSize(cfg))
	}
	return params, nil
}

func (s *Source) outputSize(cfg domain.SourceConfig) string {
	if size := cfg["outputsize"]; size != "" {
		return size
	}
	return "full"
}

// parseTimeSeries handles the object-of-objects shape: date keys mapping
// to field maps like {"1. open": ..., "4. close": ...}.
func parseTimeSeries(raw json.RawMessage, valueKey string) ([]domain.RawPoint, error) {
	var series map[string]map[string]string
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("decode time series: %w", err)
	}

	points := make([]domain.RawPoint, 0, len(series))
	for date, fields := range series {
		points = append(points, domain.RawPoint{Date: date, Value: fields[valueKey]})
	}
	return points, nil
}

// parseEconomic handles the array shape used by REAL_GDP and friends.
func parseEconomic(raw json.RawMessage) ([]domain.RawPoint, error) {
	var rows []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode economic data: %w", err)
	}

	points := make([]domain.RawPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, domain.RawPoint{Date: row.Date, Value: row.Value})
	}
	return points, nil
}
