// Package csvfile imports observations from a user-supplied CSV, either
// downloaded from a URL or read from a local file. Columns are addressed
// by header name or zero-based index.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/source"
)

const (
	SourceType = "csv"
	SourceName = "CSV Import"
)

var delimiters = map[string]rune{
	"comma":     ',',
	"semicolon": ';',
	"tab":       '\t',
	"pipe":      '|',
}

type Config struct {
	Timeout time.Duration
}

type Source struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.Timeout == 0 {
		cfg.Timeout = source.DefaultTimeout
	}
	return &Source{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("source", SourceType),
	}
}

func (s *Source) Type() string { return SourceType }
func (s *Source) Name() string { return SourceName }

func (s *Source) Description() string {
	return "Observations from a CSV file or URL"
}

func (s *Source) Configured() bool { return true }

// PacingDelay is zero: local files and user-hosted CSVs need no pacing.
func (s *Source) PacingDelay() time.Duration { return 0 }

func (s *Source) ConfigFields() []source.FieldSpec {
	return []source.FieldSpec{
		{Key: "location", Type: "select", Label: "Location", Options: []string{"url", "file"}, Default: "url", Required: true},
		{Key: "csv_url", Type: "text", Label: "CSV URL"},
		{Key: "csv_path", Type: "text", Label: "CSV File Path"},
		{Key: "date_column", Type: "text", Label: "Date Column", Description: "Header name or 0-based index", Default: "0", Required: true},
		{Key: "value_column", Type: "text", Label: "Value Column", Description: "Header name or 0-based index", Default: "1", Required: true},
		{Key: "has_header", Type: "select", Label: "Has Header Row", Options: []string{"1", "0"}, Default: "1"},
		{Key: "delimiter", Type: "select", Label: "Delimiter", Options: []string{"comma", "semicolon", "tab", "pipe"}, Default: "comma"},
		{Key: "date_format", Type: "select", Label: "Date Format", Options: []string{"auto", "Y-m-d", "m/d/Y", "d/m/Y", "Y-m", "Y"}, Default: "auto"},
	}
}

func (s *Source) TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult {
	points, err := s.fetch(ctx, cfg)
	if err != nil {
		return domain.TestResult{Message: err.Error()}
	}
	return domain.TestResult{
		OK:          true,
		Message:     fmt.Sprintf("Parsed %d rows", len(points)),
		SampleCount: len(points),
	}
}

func (s *Source) FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	points, err := s.fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("parsed csv rows", "count", len(points))
	return points, nil
}

func (s *Source) fetch(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error) {
	data, err := s.read(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	if delim, ok := delimiters[cfg["delimiter"]]; ok {
		reader.Comma = delim
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv is empty")
	}

	hasHeader := cfg["has_header"] != "0"
	var header []string
	rows := records
	if hasHeader {
		header = records[0]
		rows = records[1:]
	}

	dateCol, err := resolveColumn(cfg["date_column"], "0", header)
	if err != nil {
		return nil, fmt.Errorf("date column: %w", err)
	}
	valueCol, err := resolveColumn(cfg["value_column"], "1", header)
	if err != nil {
		return nil, fmt.Errorf("value column: %w", err)
	}

	points := make([]domain.RawPoint, 0, len(rows))
	for _, row := range rows {
		if len(row) <= dateCol || len(row) <= valueCol {
			continue
		}
		points = append(points, domain.RawPoint{Date: row[dateCol], Value: row[valueCol]})
	}
	return points, nil
}

func (s *Source) read(ctx context.Context, cfg domain.SourceConfig) ([]byte, error) {
	if cfg["location"] == "file" {
		path := cfg["csv_path"]
		if path == "" {
			return nil, fmt.Errorf("csv_path is required")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read csv file: %w", err)
		}
		return data, nil
	}

	url := cfg["csv_url"]
	if url == "" {
		return nil, fmt.Errorf("csv_url is required")
	}
	status, body, err := source.Get(ctx, s.httpClient, url, source.UserAgent)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", status)
	}
	return body, nil
}

// resolveColumn turns a header name or numeric index into a column index.
func resolveColumn(spec, fallback string, header []string) (int, error) {
	if spec == "" {
		spec = fallback
	}

	if idx, err := strconv.Atoi(spec); err == nil {
		if idx < 0 {
			return 0, fmt.Errorf("index %d out of range", idx)
		}
		return idx, nil
	}

	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), spec) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found", spec)
}
