package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"series_fetcher/internal/domain"
)

type SeriesStore interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Series, error)
	ListActive(ctx context.Context) ([]domain.Series, error)
	ListActiveBySourceTypes(ctx context.Context, sourceTypes []string) ([]domain.Series, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Series, error)
}

type ObservationStore interface {
	Save(ctx context.Context, slug string, points []domain.Point) (domain.SaveStats, error)
}

type LogStore interface {
	Append(ctx context.Context, entry domain.LogEntry) error
}
