// Package scheduler installs the cadence buckets that keep series fresh:
// high-frequency market sources hourly, economic sources daily, a full
// sweep weekly, and log pruning daily.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"series_fetcher/internal/domain"
)

const (
	BucketHourly  = "hourly"
	BucketDaily   = "daily"
	BucketWeekly  = "weekly"
	BucketCleanup = "cleanup"

	defaultRetentionDays = 30
	jobTimeout           = 30 * time.Minute
)

// Refresher triggers collector batch runs.
type Refresher interface {
	RefreshAll(ctx context.Context) domain.BatchResult
	RefreshSourceTypes(ctx context.Context, sourceTypes []string) domain.BatchResult
}

// AuditLog appends entries and removes those older than a cutoff.
type AuditLog interface {
	Append(ctx context.Context, entry domain.LogEntry) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Settings reads and writes persisted options.
type Settings interface {
	GetInt(ctx context.Context, key string, def int) int
	GetBool(ctx context.Context, key string, def bool) bool
	SetBool(ctx context.Context, key string, value bool) error
}

// AlertPublisher delivers failure notifications.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, subject, body string) error
}

// Config holds the cron expressions and source type membership of each
// bucket. Zero values fall back to the defaults below.
type Config struct {
	HourlySpec  string `yaml:"hourly_spec"`
	DailySpec   string `yaml:"daily_spec"`
	WeeklySpec  string `yaml:"weekly_spec"`
	CleanupSpec string `yaml:"cleanup_spec"`

	HourlyTypes []string `yaml:"hourly_types"`
	DailyTypes  []string `yaml:"daily_types"`
}

func (c *Config) setDefaults() {
	if c.HourlySpec == "" {
		c.HourlySpec = "0 * * * *"
	}
	if c.DailySpec == "" {
		c.DailySpec = "0 3 * * *"
	}
	if c.WeeklySpec == "" {
		c.WeeklySpec = "0 2 * * 0"
	}
	if c.CleanupSpec == "" {
		c.CleanupSpec = "0 1 * * *"
	}
	if len(c.HourlyTypes) == 0 {
		c.HourlyTypes = []string{"yahoo", "alphavantage"}
	}
	if len(c.DailyTypes) == 0 {
		c.DailyTypes = []string{"fred", "worldbank", "eurostat", "dbnomics"}
	}
}

// BucketStatus reports whether a bucket is installed and when it fires
// next.
type BucketStatus struct {
	Installed bool
	NextRun   time.Time
}

type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	logs      AuditLog
	settings  Settings
	alerts    AlertPublisher
	logger    *slog.Logger
	config    Config

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(
	refresher Refresher,
	logs AuditLog,
	settings Settings,
	alerts AlertPublisher,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{
		cron:      cron.New(),
		refresher: refresher,
		logs:      logs,
		settings:  settings,
		alerts:    alerts,
		logger:    logger.With("component", "scheduler"),
		config:    cfg,
		entries:   make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// EnsureScheduled installs every bucket that is not installed yet.
// Calling it repeatedly never duplicates entries.
func (s *Scheduler) EnsureScheduled() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buckets := []struct {
		name string
		spec string
		job  func()
	}{
		{BucketHourly, s.config.HourlySpec, func() { s.runRefresh(BucketHourly, s.config.HourlyTypes) }},
		{BucketDaily, s.config.DailySpec, func() { s.runRefresh(BucketDaily, s.config.DailyTypes) }},
		{BucketWeekly, s.config.WeeklySpec, s.runWeekly},
		{BucketCleanup, s.config.CleanupSpec, s.runCleanup},
	}

	for _, b := range buckets {
		if _, installed := s.entries[b.name]; installed {
			continue
		}
		id, err := s.cron.AddFunc(b.spec, b.job)
		if err != nil {
			return fmt.Errorf("schedule %s bucket: %w", b.name, err)
		}
		s.entries[b.name] = id
		s.logger.Info("bucket scheduled", "bucket", b.name, "spec", b.spec)
	}
	return nil
}

// Clear removes all installed buckets.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.logger.Info("all buckets cleared")
}

// Reschedule reinstalls every bucket, picking up config changes.
func (s *Scheduler) Reschedule() error {
	s.Clear()
	return s.EnsureScheduled()
}

// SetEnabled persists the auto-update flag and installs or clears the
// buckets to match.
func (s *Scheduler) SetEnabled(ctx context.Context, enabled bool) error {
	if err := s.settings.SetBool(ctx, "auto_update_enabled", enabled); err != nil {
		return fmt.Errorf("persist auto update flag: %w", err)
	}
	if enabled {
		return s.EnsureScheduled()
	}
	s.Clear()
	return nil
}

// RunBucket triggers one bucket immediately, outside its schedule.
func (s *Scheduler) RunBucket(ctx context.Context, name string) error {
	switch name {
	case BucketHourly:
		s.refreshTypes(ctx, name, s.config.HourlyTypes)
	case BucketDaily:
		s.refreshTypes(ctx, name, s.config.DailyTypes)
	case BucketWeekly:
		s.weekly(ctx)
	case BucketCleanup:
		s.cleanup(ctx)
	default:
		return fmt.Errorf("unknown bucket %q", name)
	}
	return nil
}

// Status reports each bucket's installation state and next fire time.
func (s *Scheduler) Status() map[string]BucketStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]BucketStatus, 4)
	for _, name := range []string{BucketHourly, BucketDaily, BucketWeekly, BucketCleanup} {
		id, installed := s.entries[name]
		bs := BucketStatus{Installed: installed}
		if installed {
			bs.NextRun = s.cron.Entry(id).Next
		}
		status[name] = bs
	}
	return status
}

func (s *Scheduler) runRefresh(bucket string, types []string) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.refreshTypes(ctx, bucket, types)
}

func (s *Scheduler) refreshTypes(ctx context.Context, bucket string, types []string) {
	res := s.refresher.RefreshSourceTypes(ctx, types)
	s.logger.Info("bucket run finished",
		"bucket", bucket,
		"total", res.Total,
		"success", res.Success,
		"failed", res.Failed,
	)
}

func (s *Scheduler) runWeekly() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.weekly(ctx)
}

func (s *Scheduler) weekly(ctx context.Context) {
	res := s.refresher.RefreshAll(ctx)
	s.logger.Info("weekly refresh finished",
		"total", res.Total,
		"success", res.Success,
		"failed", res.Failed,
	)

	if res.Failed == 0 || s.alerts == nil {
		return
	}
	if !s.settings.GetBool(ctx, "alerts_enabled", false) {
		return
	}

	subject := fmt.Sprintf("Weekly refresh: %d of %d series failed", res.Failed, res.Total)
	if err := s.alerts.PublishAlert(ctx, subject, failureSummary(res)); err != nil {
		s.logger.Error("publish alert", "error", err)
	}
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.cleanup(ctx)
}

func (s *Scheduler) cleanup(ctx context.Context) {
	days := s.settings.GetInt(ctx, "log_retention_days", defaultRetentionDays)
	cutoff := time.Now().AddDate(0, 0, -days)

	deleted, err := s.logs.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("prune logs", "error", err)
		return
	}

	_ = s.logs.Append(ctx, domain.LogEntry{
		Action:  "cleanup_logs",
		Status:  domain.StatusSuccess,
		Message: fmt.Sprintf("Cleaned up %d old log entries", deleted),
	})
	s.logger.Info("logs pruned", "deleted", deleted, "retention_days", days)
}

func failureSummary(res domain.BatchResult) string {
	var failed []string
	for slug, detail := range res.Details {
		if !detail.OK {
			failed = append(failed, fmt.Sprintf("%s: %s", slug, detail.Message))
		}
	}
	sort.Strings(failed)
	return strings.Join(failed, "\n")
}
