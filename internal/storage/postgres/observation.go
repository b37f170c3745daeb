package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"series_fetcher/internal/domain"
)

type ObservationStore struct {
	db   *sqlx.DB
	logs *LogStore
}

func NewObservationStore(db *sqlx.DB, logs *LogStore) *ObservationStore {
	return &ObservationStore{db: db, logs: logs}
}

// Save writes points one by one so a single bad row cannot abort the
// batch. Writing the same (slug, date) again updates the value in place,
// which makes a full refetch idempotent. Afterwards it bumps the series
// last_updated stamp and records one summary log entry.
func (s *ObservationStore) Save(ctx context.Context, slug string, points []domain.Point) (domain.SaveStats, error) {
	var stats domain.SaveStats

	for _, p := range points {
		var existingID int64
		err := s.db.GetContext(ctx, &existingID,
			`SELECT id FROM observations WHERE series_slug = $1 AND obs_date = $2`,
			slug, p.Date,
		)

		switch {
		case err == sql.ErrNoRows:
			_, err = s.db.ExecContext(ctx,
				`INSERT INTO observations (series_slug, obs_date, obs_value) VALUES ($1, $2, $3)`,
				slug, p.Date, p.Value,
			)
			if err != nil {
				stats.Errors++
			} else {
				stats.Inserted++
			}
		case err != nil:
			stats.Errors++
		default:
			_, err = s.db.ExecContext(ctx,
				`UPDATE observations SET obs_value = $3 WHERE series_slug = $1 AND obs_date = $2`,
				slug, p.Date, p.Value,
			)
			if err != nil {
				stats.Errors++
			} else {
				stats.Updated++
			}
		}
	}

	if stats.Inserted+stats.Updated > 0 {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE series SET last_updated = NOW() WHERE slug = $1`, slug,
		); err != nil {
			return stats, fmt.Errorf("update last_updated: %w", err)
		}
	}

	status := domain.StatusSuccess
	if stats.Errors > 0 {
		status = domain.StatusWarning
	}
	_ = s.logs.Append(ctx, domain.LogEntry{
		SeriesSlug: &slug,
		Action:     "save_observations",
		Status:     status,
		Message:    fmt.Sprintf("Observations saved: %d new, %d updated, %d errors", stats.Inserted, stats.Updated, stats.Errors),
	})

	return stats, nil
}

// Range returns observations ordered by date ascending. Zero bounds are
// open; a non-positive limit means no limit.
func (s *ObservationStore) Range(ctx context.Context, slug string, start, end time.Time, limit int) ([]domain.Observation, error) {
	query := `
		SELECT id, series_slug, obs_date, obs_value, created_at
		FROM observations
		WHERE series_slug = $1`
	args := []any{slug}

	if !start.IsZero() {
		args = append(args, start)
		query += fmt.Sprintf(" AND obs_date >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end)
		query += fmt.Sprintf(" AND obs_date <= $%d", len(args))
	}
	query += " ORDER BY obs_date"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var list []domain.Observation
	if err := s.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, err
	}
	return list, nil
}

// Latest returns the most recent observation, or nil when none exist.
func (s *ObservationStore) Latest(ctx context.Context, slug string) (*domain.Observation, error) {
	var obs domain.Observation
	query := `
		SELECT id, series_slug, obs_date, obs_value, created_at
		FROM observations
		WHERE series_slug = $1
		ORDER BY obs_date DESC
		LIMIT 1`

	err := s.db.GetContext(ctx, &obs, query, slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

func (s *ObservationStore) Count(ctx context.Context, slug string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM observations WHERE series_slug = $1`, slug)
	return count, err
}

func (s *ObservationStore) Stats(ctx context.Context, slug string) (*domain.ValueStats, error) {
	var stats domain.ValueStats
	query := `
		SELECT COALESCE(MIN(obs_value), 0) AS min,
		       COALESCE(MAX(obs_value), 0) AS max,
		       COALESCE(AVG(obs_value), 0) AS avg,
		       COUNT(*) AS count
		FROM observations
		WHERE series_slug = $1`

	if err := s.db.GetContext(ctx, &stats, query, slug); err != nil {
		return nil, err
	}
	return &stats, nil
}
