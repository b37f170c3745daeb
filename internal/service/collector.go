package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/normalize"
	"series_fetcher/internal/source"
)

// defaultPacing is used when a series references a source type the
// registry does not know, so a misconfigured batch still paces.
const defaultPacing = 500 * time.Millisecond

// Collector orchestrates fetch, normalize, store, and audit for series.
// Provider failures never surface as errors from the refresh methods;
// they become log entries and failed results.
type Collector struct {
	sources      *source.Registry
	series       SeriesStore
	observations ObservationStore
	logs         LogStore
	logger       *slog.Logger

	// sleep is swapped out in tests so pacing does not stall them.
	sleep func(time.Duration)
}

func NewCollector(
	sources *source.Registry,
	series SeriesStore,
	observations ObservationStore,
	logs LogStore,
	logger *slog.Logger,
) *Collector {
	return &Collector{
		sources:      sources,
		series:       series,
		observations: observations,
		logs:         logs,
		logger:       logger.With("component", "collector"),
		sleep:        time.Sleep,
	}
}

// FetchSeries refreshes one series end to end.
func (c *Collector) FetchSeries(ctx context.Context, slug string) domain.FetchResult {
	series, err := c.series.GetBySlug(ctx, slug)
	if err != nil {
		return domain.FetchResult{Message: fmt.Sprintf("load series: %v", err)}
	}
	if series == nil {
		return domain.FetchResult{Message: fmt.Sprintf("series %q not found", slug)}
	}
	if !series.IsActive {
		return domain.FetchResult{Message: fmt.Sprintf("series %q is inactive", slug)}
	}

	src, ok := c.sources.Get(series.SourceType)
	if !ok {
		msg := fmt.Sprintf("unknown source type %q", series.SourceType)
		c.logFetch(ctx, series, domain.StatusError, msg)
		return domain.FetchResult{Message: msg}
	}

	raw, err := src.FetchData(ctx, series.Config)
	if err != nil {
		c.logFetch(ctx, series, domain.StatusError, err.Error())
		return domain.FetchResult{Message: err.Error()}
	}

	points := normalize.Points(raw, dateHint(series.Config))
	if len(points) == 0 {
		msg := "no valid observations found"
		c.logFetch(ctx, series, domain.StatusError, msg)
		return domain.FetchResult{Message: msg}
	}

	stats, err := c.observations.Save(ctx, slug, points)
	if err != nil {
		c.logFetch(ctx, series, domain.StatusError, fmt.Sprintf("save observations: %v", err))
		return domain.FetchResult{Message: err.Error()}
	}

	msg := fmt.Sprintf("Successfully fetched %d observations (%d new, %d updated)",
		len(points), stats.Inserted, stats.Updated)
	c.logFetch(ctx, series, domain.StatusSuccess, msg)

	c.logger.Info("series refreshed",
		"slug", slug,
		"count", len(points),
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"errors", stats.Errors,
	)

	return domain.FetchResult{
		OK:       true,
		Message:  msg,
		Count:    len(points),
		Inserted: stats.Inserted,
		Updated:  stats.Updated,
		Errors:   stats.Errors,
	}
}

// RefreshAll refreshes every active series sequentially.
func (c *Collector) RefreshAll(ctx context.Context) domain.BatchResult {
	list, err := c.series.ListActive(ctx)
	if err != nil {
		c.logger.Error("list active series", "error", err)
		return domain.BatchResult{}
	}
	return c.refresh(ctx, list, "Bulk refresh")
}

// RefreshSourceTypes refreshes active series whose source type is in the
// given set.
func (c *Collector) RefreshSourceTypes(ctx context.Context, sourceTypes []string) domain.BatchResult {
	list, err := c.series.ListActiveBySourceTypes(ctx, sourceTypes)
	if err != nil {
		c.logger.Error("list series by source type", "error", err)
		return domain.BatchResult{}
	}
	return c.refresh(ctx, list, "Scheduled refresh")
}

// RefreshStale refreshes active series not updated within maxAge.
func (c *Collector) RefreshStale(ctx context.Context, maxAge time.Duration) domain.BatchResult {
	list, err := c.series.ListStale(ctx, time.Now().Add(-maxAge))
	if err != nil {
		c.logger.Error("list stale series", "error", err)
		return domain.BatchResult{}
	}
	return c.refresh(ctx, list, "Stale refresh")
}

func (c *Collector) refresh(ctx context.Context, list []domain.Series, action string) domain.BatchResult {
	result := domain.BatchResult{
		Total:   len(list),
		Details: make(map[string]domain.FetchResult, len(list)),
	}

	for i, series := range list {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("batch interrupted", "completed", i, "total", len(list))
			break
		}

		res := c.FetchSeries(ctx, series.Slug)
		result.Details[series.Slug] = res
		if res.OK {
			result.Success++
		} else {
			result.Failed++
		}

		if i < len(list)-1 {
			c.sleep(c.pacing(series.SourceType))
		}
	}

	status := domain.StatusSuccess
	if result.Failed > 0 {
		status = domain.StatusWarning
	}
	_ = c.logs.Append(ctx, domain.LogEntry{
		Action: "refresh_batch",
		Status: status,
		Message: fmt.Sprintf("%s completed: %d total, %d success, %d failed",
			action, result.Total, result.Success, result.Failed),
	})

	c.logger.Info("batch refresh completed",
		"action", action,
		"total", result.Total,
		"success", result.Success,
		"failed", result.Failed,
	)

	return result
}

func (c *Collector) pacing(sourceType string) time.Duration {
	if src, ok := c.sources.Get(sourceType); ok {
		return src.PacingDelay()
	}
	return defaultPacing
}

// Preview fetches and normalizes without touching storage.
func (c *Collector) Preview(ctx context.Context, sourceType string, cfg domain.SourceConfig, limit int) (*domain.PreviewResult, error) {
	src, ok := c.sources.Get(sourceType)
	if !ok {
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}

	raw, err := src.FetchData(ctx, cfg)
	if err != nil {
		return nil, err
	}

	points := normalize.Points(raw, dateHint(cfg))
	result := &domain.PreviewResult{Total: len(points)}
	if len(points) > 0 {
		result.Start = points[0].Date
		result.End = points[len(points)-1].Date
	}
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	result.Points = points
	return result, nil
}

// TestSource runs a provider connection test and records the outcome.
func (c *Collector) TestSource(ctx context.Context, sourceType string, cfg domain.SourceConfig) domain.TestResult {
	src, ok := c.sources.Get(sourceType)
	if !ok {
		return domain.TestResult{Message: fmt.Sprintf("unknown source type %q", sourceType)}
	}

	res := src.TestConnection(ctx, cfg)

	status := domain.StatusError
	if res.OK {
		status = domain.StatusSuccess
	}
	_ = c.logs.Append(ctx, domain.LogEntry{
		SourceType: &sourceType,
		Action:     "test_connection",
		Status:     status,
		Message:    fmt.Sprintf("Connection test: %s", res.Message),
	})

	return res
}

func (c *Collector) logFetch(ctx context.Context, series *domain.Series, status, message string) {
	if err := c.logs.Append(ctx, domain.LogEntry{
		SeriesSlug: &series.Slug,
		SourceType: &series.SourceType,
		Action:     "fetch_series",
		Status:     status,
		Message:    message,
	}); err != nil {
		c.logger.Error("append log entry", "slug", series.Slug, "error", err)
	}
}

// dateHint picks the per-series date parsing hint from its config.
func dateHint(cfg domain.SourceConfig) string {
	if hint := cfg["date_format"]; hint != "" && hint != "auto" {
		return hint
	}
	if hint := cfg["time_format"]; hint != "" && hint != "auto" {
		return hint
	}
	return ""
}
