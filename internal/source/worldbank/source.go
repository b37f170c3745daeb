// Package worldbank fetches development indicators from the World Bank
// open data API. No API key is required.
package worldbank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/source"
)

const (
	SourceType = "worldbank"
	SourceName = "World Bank"

	defaultBaseURL = "https://api.worldbank.org/v2"
	perPage        = 10000
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

	// sleep is swapped out in tests so pagination does not stall them.
	sleep func(time.Duration)
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
		sleep:      time.Sleep,
	}
}

func (s *Source) Type() string { return SourceType }
func (s *Source) Name() string { return SourceName }

func (s *Source) Description() string {
	return "World Bank open data development indicators"
}

func (s *Source) Configured() bool { return true }

func (s *Source) PacingDelay() time.Duration { return pacingDelay }

func (s *Source) ConfigFields() []source.FieldSpec {
	return []source.FieldSpec{
		{Key: "indicator_code", Type: "text", Label: "Indicator Code", Description: "e.g. NY.GDP.MKTP.CD", Required: true},
		{Key: "country_code", Type: "text", Label: "Country Code", Description: "ISO 2 or 3 letter code", Default: "US"},
		{Key: "start_year", Type: "number", Label: "Start Year", Default: "2000"},
		{Key: "end_year", Type: "number", Label: "End Year"},
	}
}

func (s *Source) TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult {
	indicator := cfg["indicator_code"]
	if indicator == "" {
		return domain.TestResult{Message: "indicator_code is required"}
	}

	url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&per_page=1", s.baseURL, s.country(cfg), indicator)
	meta, rows, err := s.fetchPage(ctx, url)
	if err != nil {
		return domain.TestResult{Message: err.Error()}
	}
	if len(meta.Message) > 0 {
		return domain.TestResult{Message: meta.Message[0].Value}
	}

	total, _ := meta.Total.Int64()
	msg := fmt.Sprintf("Connected. %d observations available", total)
	if len(rows) > 0 && rows[0].Indicator.Value != "" {
		msg = fmt.Sprintf("Connected. Indicator: %s, %d observations", rows[0].Indicator.Value, total)
	}
	return domain.TestResult{OK: true, Message: msg, SampleCount: int(total)}
}

func (s *Source) FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	indicator := cfg["indicator_code"]
	if indicator == "" {
		return nil, fmt.Errorf("indicator_code is required")
	}

	startYear := cfg["start_year"]
	if startYear == "" {
		startYear = "2000"
	}
	endYear := cfg["end_year"]
	if endYear == "" {
		endYear = strconv.Itoa(time.Now().Year())
	}

	var points []domain.RawPoint
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/country/%s/indicator/%s?format=json&per_page=%d&date=%s:%s&page=%d",
			s.baseURL, s.country(cfg), indicator, perPage, startYear, endYear, page)

		meta, rows, err := s.fetchPage(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(meta.Message) > 0 {
			return nil, fmt.Errorf("worldbank: %s", meta.Message[0].Value)
		}

		for _, row := range rows {
			value := ""
			if row.Value != nil {
				value = strconv.FormatFloat(*row.Value, 'f', -1, 64)
			}
			points = append(points, domain.RawPoint{Date: row.Date, Value: value})
		}

		pages, _ := meta.Pages.Int64()
		if int64(page) >= pages {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			s.sleep(pacingDelay)
		}
	}

	s.logger.Debug("fetched observations", "indicator", indicator, "count", len(points))
	return points, nil
}

func (s *Source) country(cfg domain.SourceConfig) string {
	if c := cfg["country_code"]; c != "" {
		return c
	}
	return "US"
}

func (s *Source) fetchPage(ctx context.Context, url string) (*pageMeta, []observation, error) {
	status, body, err := s.get(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if status != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status %d", status)
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope) == 0 {
		return nil, nil, fmt.Errorf("empty response")
	}

	var meta pageMeta
	if err := json.Unmarshal(envelope[0], &meta); err != nil {
		return nil, nil, fmt.Errorf("decode metadata: %w", err)
	}

	var rows []observation
	if len(envelope) > 1 {
		if err := json.Unmarshal(envelope[1], &rows); err != nil {
			return nil, nil, fmt.Errorf("decode observations: %w", err)
		}
	}
	return &meta, rows, nil
}

func (s *Source) get(ctx context.Context, url string) (int, []byte, error) {
	return source.Get(ctx, s.httpClient, url, source.UserAgent)
}
