package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"series_fetcher/internal/domain"
)

var slugRe = regexp.MustCompile(`^[a-z0-9_-]+$`)

type SeriesStore struct {
	db *sqlx.DB
	tm *TransactionManager
}

func NewSeriesStore(db *sqlx.DB, tm *TransactionManager) *SeriesStore {
	return &SeriesStore{db: db, tm: tm}
}

// Upsert creates the series or updates its mutable fields. The source
// type of an existing series cannot change; observations fetched under
// the old provider would be stranded.
func (s *SeriesStore) Upsert(ctx context.Context, series *domain.Series) error {
	switch {
	case series.Slug == "":
		return fmt.Errorf("slug is required")
	case !slugRe.MatchString(series.Slug):
		return fmt.Errorf("slug %q may only contain lowercase letters, digits, hyphens, and underscores", series.Slug)
	case series.Name == "":
		return fmt.Errorf("name is required")
	case series.SourceType == "":
		return fmt.Errorf("source type is required")
	}

	existing, err := s.GetBySlug(ctx, series.Slug)
	if err != nil {
		return err
	}

	exec := GetExecutor(ctx, s.db)

	if existing == nil {
		query := `
			INSERT INTO series (slug, name, source_type, source_config, is_active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`
		return exec.QueryRowxContext(ctx, query,
			series.Slug, series.Name, series.SourceType, series.Config, series.IsActive,
		).Scan(&series.ID, &series.CreatedAt)
	}

	if existing.SourceType != series.SourceType {
		return fmt.Errorf("source type of %q is %s and cannot change to %s",
			series.Slug, existing.SourceType, series.SourceType)
	}

	query := `
		UPDATE series
		SET name = $2, source_config = $3, is_active = $4
		WHERE slug = $1`
	if _, err := exec.ExecContext(ctx, query,
		series.Slug, series.Name, series.Config, series.IsActive,
	); err != nil {
		return err
	}
	series.ID = existing.ID
	series.CreatedAt = existing.CreatedAt
	return nil
}

// GetBySlug returns nil without an error when the series does not exist.
func (s *SeriesStore) GetBySlug(ctx context.Context, slug string) (*domain.Series, error) {
	var series domain.Series
	query := `
		SELECT id, slug, name, source_type, source_config, is_active, last_updated, created_at
		FROM series
		WHERE slug = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &series, query, slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &series, nil
}

func (s *SeriesStore) List(ctx context.Context, activeOnly bool) ([]domain.Series, error) {
	query := `
		SELECT id, slug, name, source_type, source_config, is_active, last_updated, created_at
		FROM series`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	var list []domain.Series
	if err := s.db.SelectContext(ctx, &list, query); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *SeriesStore) ListActive(ctx context.Context) ([]domain.Series, error) {
	return s.List(ctx, true)
}

func (s *SeriesStore) ListActiveBySourceTypes(ctx context.Context, sourceTypes []string) ([]domain.Series, error) {
	if len(sourceTypes) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, slug, name, source_type, source_config, is_active, last_updated, created_at
		FROM series
		WHERE is_active AND source_type = ANY($1)
		ORDER BY name`

	var list []domain.Series
	if err := s.db.SelectContext(ctx, &list, query, pq.Array(sourceTypes)); err != nil {
		return nil, err
	}
	return list, nil
}

// ListStale returns active series never refreshed or last refreshed
// before the cutoff.
func (s *SeriesStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Series, error) {
	query := `
		SELECT id, slug, name, source_type, source_config, is_active, last_updated, created_at
		FROM series
		WHERE is_active AND (last_updated IS NULL OR last_updated < $1)
		ORDER BY name`

	var list []domain.Series
	if err := s.db.SelectContext(ctx, &list, query, cutoff); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *SeriesStore) Search(ctx context.Context, term string, limit int) ([]domain.Series, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, slug, name, source_type, source_config, is_active, last_updated, created_at
		FROM series
		WHERE name ILIKE $1 OR slug ILIKE $1
		ORDER BY name
		LIMIT $2`

	var list []domain.Series
	if err := s.db.SelectContext(ctx, &list, query, "%"+term+"%", limit); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *SeriesStore) SetActive(ctx context.Context, slug string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE series SET is_active = $2 WHERE slug = $1`, slug, active)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("series %q not found", slug)
	}
	return nil
}

// Delete removes the series and all its observations in one transaction
// and returns the number of observations deleted.
func (s *SeriesStore) Delete(ctx context.Context, slug string) (int64, error) {
	var observationsDeleted int64

	err := s.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)

		res, err := exec.ExecContext(txCtx, `DELETE FROM observations WHERE series_slug = $1`, slug)
		if err != nil {
			return fmt.Errorf("delete observations: %w", err)
		}
		observationsDeleted, err = res.RowsAffected()
		if err != nil {
			return err
		}

		res, err = exec.ExecContext(txCtx, `DELETE FROM series WHERE slug = $1`, slug)
		if err != nil {
			return fmt.Errorf("delete series: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("series %q not found", slug)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return observationsDeleted, nil
}
