package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"series_fetcher/internal/domain"
)

type LogStore struct {
	db *sqlx.DB
}

func NewLogStore(db *sqlx.DB) *LogStore {
	return &LogStore{db: db}
}

// Append writes one audit entry. An unrecognized status is coerced to
// success rather than rejected; a logging call must never fail the
// operation that produced it.
func (s *LogStore) Append(ctx context.Context, entry domain.LogEntry) error {
	status := entry.Status
	if !domain.ValidStatus(status) {
		status = domain.StatusSuccess
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (series_slug, source_type, action, status, message)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.SeriesSlug, entry.SourceType, entry.Action, status, entry.Message,
	)
	return err
}

func (s *LogStore) List(ctx context.Context, filter domain.LogFilter) ([]domain.LogEntry, error) {
	query := `
		SELECT id, series_slug, source_type, action, status, message, created_at
		FROM logs
		WHERE 1=1`
	var args []any

	if filter.SeriesSlug != "" {
		args = append(args, filter.SeriesSlug)
		query += fmt.Sprintf(" AND series_slug = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Days > 0 {
		args = append(args, time.Now().AddDate(0, 0, -filter.Days))
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND message ILIKE $%d", len(args))
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var list []domain.LogEntry
	if err := s.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, err
	}
	return list, nil
}

// Prune deletes entries older than the cutoff and returns how many went.
func (s *LogStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM logs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DashboardStats summarizes the whole installation for operators.
func (s *LogStore) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	var stats domain.DashboardStats

	err := s.db.GetContext(ctx, &stats.TotalSeries, `SELECT COUNT(*) FROM series`)
	if err != nil {
		return nil, err
	}
	err = s.db.GetContext(ctx, &stats.ActiveSeries, `SELECT COUNT(*) FROM series WHERE is_active`)
	if err != nil {
		return nil, err
	}
	err = s.db.GetContext(ctx, &stats.TotalObservations, `SELECT COUNT(*) FROM observations`)
	if err != nil {
		return nil, err
	}

	var latest *time.Time
	err = s.db.GetContext(ctx, &latest, `SELECT MAX(obs_date) FROM observations`)
	if err != nil {
		return nil, err
	}
	stats.LatestObservation = latest

	err = s.db.GetContext(ctx, &stats.RecentErrors, `
		SELECT COUNT(*) FROM logs
		WHERE status = 'error' AND created_at >= NOW() - INTERVAL '7 days'`)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
