// Package eurostat fetches datasets from the Eurostat dissemination API.
// Responses use the JSON-stat format: a flat value map indexed by the
// cartesian product of all dimensions, so recovering the time series
// requires index arithmetic over the dimension sizes.
package eurostat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/source"
)

const (
	SourceType = "eurostat"
	SourceName = "Eurostat"

	defaultBaseURL = "https://ec.europa.eu/eurostat/api/dissemination/statistics/1.0/data"
	pacingDelay    = 500 * time.Millisecond
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

type jsonStatResponse struct {
	Label string `json:"label"`
	// Value maps stringified flat indexes to observations; absent keys
	// are missing values.
	Value     map[string]*float64    `json:"value"`
	ID        []string               `json:"id"`
	Size      []int                  `json:"size"`
	Dimension map[string]jsonStatDim `json:"dimension"`
	Error     json.RawMessage        `json:"error"`
}

type jsonStatDim struct {
	Category struct {
		Index map[string]int `json:"index"`
	} `json:"category"`
}

var monthlyLabelRe = regexp.MustCompile(`^(\d{4})M(\d{2})$`)

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
	return "European statistics from the Eurostat dissemination API"
}

func (s *Source) Configured() bool { return true }

func (s *Source) PacingDelay() time.Duration { return pacingDelay }

func (s *Source) ConfigFields() []source.FieldSpec {
	return []source.FieldSpec{
		{Key: "dataset_code", Type: "text", Label: "Dataset Code", Description: "e.g. prc_hicp_manr", Required: true},
		{Key: "filters", Type: "textarea", Label: "Dimension Filters", Description: "One key=value per line, e.g. geo=EA19. Every non-time dimension should be narrowed to one category."},
		{Key: "start_period", Type: "text", Label: "Start Period", Description: "e.g. 2020 or 2020-01"},
		{Key: "end_period", Type: "text", Label: "End Period"},
		{Key: "time_format", Type: "select", Label: "Time Format", Options: []string{"auto", "monthly", "quarterly", "yearly"}, Default: "auto"},
	}
}

func (s *Source) TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult {
	points, err := s.fetch(ctx, cfg)
	if err != nil {
		return domain.TestResult{Message: err.Error()}
	}
	return domain.TestResult{
		OK:          true,
		Message:     fmt.Sprintf("Connected. %d observations available", len(points)),
		SampleCount: len(points),
	}
}

func (s *Source) FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	points, err := s.fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched observations", "dataset", cfg["dataset_code"], "count", len(points))
	return points, nil
}

func (s *Source) fetch(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	dataset := strings.TrimSpace(cfg["dataset_code"])
	if dataset == "" {
		return nil, fmt.Errorf("dataset_code is required")
	}

	params := url.Values{}
	params.Set("format", "JSON")
	for key, value := range parseFilters(cfg["filters"]) {
		params.Set(key, value)
	}
	start, end := cfg["start_period"], cfg["end_period"]
	switch {
	case start != "" && end != "":
		params.Set("time", start+":"+end)
	case start != "":
		params.Set("sinceTimePeriod", start)
	case end != "":
		params.Set("untilTimePeriod", end)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", s.baseURL, dataset, params.Encode())
	status, body, err := source.Get(ctx, s.httpClient, reqURL, source.UserAgent)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("dataset %q not found", dataset)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	var resp jsonStatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Error) > 0 && string(resp.Error) != "null" {
		return nil, fmt.Errorf("eurostat: %s", string(resp.Error))
	}

	return extractTimeSeries(&resp)
}

// extractTimeSeries walks the time dimension and recovers each flat value
// index. With every other dimension filtered to its first category, the
// flat index of a time point is its time index times the product of the
// sizes of all dimensions after time.
func extractTimeSeries(resp *jsonStatResponse) ([]domain.RawPoint, error) {
	timePos := -1
	for i, id := range resp.ID {
		if id == "time" {
			timePos = i
			break
		}
	}
	if timePos < 0 {
		return nil, fmt.Errorf("response has no time dimension")
	}
	timeDim, ok := resp.Dimension["time"]
	if !ok {
		return nil, fmt.Errorf("response has no time dimension categories")
	}

	multiplier := 1
	for i := timePos + 1; i < len(resp.Size); i++ {
		multiplier *= resp.Size[i]
	}

	points := make([]domain.RawPoint, 0, len(timeDim.Category.Index))
	for label, timeIndex := range timeDim.Category.Index {
		flatIndex := strconv.Itoa(timeIndex * multiplier)
		value := ""
		if v, ok := resp.Value[flatIndex]; ok && v != nil {
			value = strconv.FormatFloat(*v, 'f', -1, 64)
		}
		points = append(points, domain.RawPoint{Date: normalizeLabel(label), Value: value})
	}
	return points, nil
}

// normalizeLabel rewrites Eurostat period labels like 2023M01 into the
// dashed form the normalizer understands. Quarterly and yearly labels
// already match its grammars.
func normalizeLabel(label string) string {
	if m := monthlyLabelRe.FindStringSubmatch(label); m != nil {
		return m[1] + "-" + m[2]
	}
	return label
}

func parseFilters(raw string) map[string]string {
	filters := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		filters[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return filters
}
