// Package fred fetches observations from the St. Louis Fed FRED API.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/source"
)

const (
	SourceType = "fred"
	SourceName = "FRED"

	defaultBaseURL = "https://api.stlouisfed.org/fred"

	// FRED allows 120 requests per minute; one per second keeps batch
	// runs well clear of the limit.
	pacingDelay = 1 * time.Second
)

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
	return "Federal Reserve Economic Data from the St. Louis Fed"
}

func (s *Source) Configured() bool { return s.apiKey != "" }

func (s *Source) PacingDelay() time.Duration { return pacingDelay }

func (s *Source) ConfigFields() []source.FieldSpec {
	return []source.FieldSpec{
		{Key: "series_id", Type: "text", Label: "Series ID", Description: "FRED series identifier, e.g. GDP or UNRATE", Required: true},
		{Key: "start_date", Type: "text", Label: "Start Date", Description: "Earliest observation, YYYY-MM-DD"},
		{Key: "end_date", Type: "text", Label: "End Date", Description: "Latest observation, YYYY-MM-DD"},
	}
}

func (s *Source) TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult {
	seriesID := cfg["series_id"]
	if seriesID == "" {
		return domain.TestResult{Message: "series_id is required"}
	}
	if s.apiKey == "" {
		return domain.TestResult{Message: "FRED API key is not configured"}
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", s.apiKey)
	params.Set("file_type", "json")

	status, body, err := source.Get(ctx, s.httpClient, s.baseURL+"/series?"+params.Encode(), source.UserAgent)
	if err != nil {
		return domain.TestResult{Message: err.Error()}
	}
	if status != http.StatusOK {
		return domain.TestResult{Message: s.errorMessage(status, body)}
	}

	var resp seriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.TestResult{Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(resp.Seriess) == 0 {
		return domain.TestResult{Message: fmt.Sprintf("series %q not found", seriesID)}
	}

	info := resp.Seriess[0]
	return domain.TestResult{
		OK:      true,
		Message: fmt.Sprintf("Connected. Series: %s (%s)", info.Title, info.Frequency),
	}
}

func (s *Source) FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	seriesID := cfg["series_id"]
	if seriesID == "" {
		return nil, fmt.Errorf("series_id is required")
	}
	if s.apiKey == "" {
		return nil, fmt.Errorf("FRED API key is not configured")
	}

	params := url.Values{}
	params.Set("series_id", seriesID)
	params.Set("api_key", s.apiKey)
	params.Set("file_type", "json")
	params.Set("limit", "100000")
	if start := cfg["start_date"]; start != "" {
		params.Set("observation_start", start)
	}
	if end := cfg["end_date"]; end != "" {
		params.Set("observation_end", end)
	}

	status, body, err := source.Get(ctx, s.httpClient, s.baseURL+"/series/observations?"+params.Encode(), source.UserAgent)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s", s.errorMessage(status, body))
	}

	var resp observationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	points := make([]domain.RawPoint, 0, len(resp.Observations))
	for _, obs := range resp.Observations {
		points = append(points, domain.RawPoint{Date: obs.Date, Value: obs.Value})
	}

	s.logger.Debug("fetched observations", "series_id", seriesID, "count", len(points))
	return points, nil
}

func (s *Source) errorMessage(status int, body []byte) string {
	var msg string
	switch status {
	case http.StatusBadRequest:
		msg = "bad request, check the series ID"
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = "invalid API key"
	case http.StatusNotFound:
		msg = "series not found"
	case http.StatusTooManyRequests:
		msg = "rate limit exceeded"
	default:
		msg = fmt.Sprintf("unexpected status %d", status)
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.ErrorMessage != "" {
		msg = fmt.Sprintf("%s: %s", msg, errResp.ErrorMessage)
	}
	return msg
}
