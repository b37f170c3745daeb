// Package dbnomics fetches series from the DBnomics aggregator, which
// mirrors dozens of statistical providers behind one API. Series are
// addressed as provider/dataset/series.
package dbnomics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/source"
)

const (
	SourceType = "dbnomics"
	SourceName = "DBnomics"

	defaultBaseURL = "https://api.db.nomics.world/v22"
	pacingDelay    = 250 * time.Millisecond
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Source struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

type seriesResponse struct {
	Series struct {
		Docs []seriesDoc `json:"docs"`
	} `json:"series"`
	Message string `json:"message"`
}

type seriesDoc struct {
	SeriesName string `json:"series_name"`
	// period and value are parallel arrays; values mix numbers, nulls,
	// and the occasional "NA" string.
	Period []string `json:"period"`
	Value  []any    `json:"value"`
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
	return "Aggregated statistical series from the DBnomics platform"
}

func (s *Source) Configured() bool { return true }

func (s *Source) PacingDelay() time.Duration { return pacingDelay }

func (s *Source) ConfigFields() []source.FieldSpec {
	return []source.FieldSpec{
		{Key: "series_code", Type: "text", Label: "Series Code", Description: "provider/dataset/series, e.g. AMECO/ZUTN/EA19.1.0.0.0.ZUTN", Required: true},
	}
}

func (s *Source) TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult {
	doc, err := s.fetchSeries(ctx, cfg)
	if err != nil {
		return domain.TestResult{Message: err.Error()}
	}
	msg := fmt.Sprintf("Connected. %d observations available", len(doc.Period))
	if doc.SeriesName != "" {
		msg = fmt.Sprintf("Connected. Series: %s, %d observations", doc.SeriesName, len(doc.Period))
	}
	return domain.TestResult{OK: true, Message: msg, SampleCount: len(doc.Period)}
}

func (s *Source) FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	doc, err := s.fetchSeries(ctx, cfg)
	if err != nil {
		return nil, err
	}

	points := make([]domain.RawPoint, 0, len(doc.Period))
	for i, period := range doc.Period {
		value := ""
		if i < len(doc.Value) {
			value = formatValue(doc.Value[i])
		}
		points = append(points, domain.RawPoint{Date: period, Value: value})
	}

	s.logger.Debug("fetched observations", "count", len(points))
	return points, nil
}

func (s *Source) fetchSeries(ctx context.Context, cfg domain.SourceConfig) (*seriesDoc, error) {
	code := strings.TrimSpace(cfg["series_code"])
	if code == "" {
		return nil, fmt.Errorf("series_code is required")
	}
	if strings.Count(code, "/") < 2 {
		return nil, fmt.Errorf("series_code must be provider/dataset/series")
	}

	url := fmt.Sprintf("%s/series/%s?observations=1&format=json", s.baseURL, code)
	status, body, err := source.Get(ctx, s.httpClient, url, source.UserAgent)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("series %q not found", code)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	var resp seriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Series.Docs) == 0 {
		if resp.Message != "" {
			return nil, fmt.Errorf("dbnomics: %s", resp.Message)
		}
		return nil, fmt.Errorf("series %q returned no documents", code)
	}
	return &resp.Series.Docs[0], nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return ""
	}
}
