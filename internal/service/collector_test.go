package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"series_fetcher/internal/domain"
	"series_fetcher/internal/service/mocks"
	"series_fetcher/internal/source"
	sourcemocks "series_fetcher/internal/source/mocks"
)

type CollectorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	src          *sourcemocks.MockSource
	registry     *source.Registry
	series       *mocks.MockSeriesStore
	observations *mocks.MockObservationStore
	logs         *mocks.MockLogStore

	collector *Collector
	logged    []domain.LogEntry
	slept     []time.Duration
}

func (s *CollectorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.src = sourcemocks.NewMockSource(s.ctrl)
	s.src.EXPECT().Type().Return("mock").AnyTimes()
	s.src.EXPECT().PacingDelay().Return(100 * time.Millisecond).AnyTimes()

	s.registry = source.NewRegistry()
	s.registry.Register(s.src)

	s.series = mocks.NewMockSeriesStore(s.ctrl)
	s.observations = mocks.NewMockObservationStore(s.ctrl)
	s.logs = mocks.NewMockLogStore(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.collector = NewCollector(s.registry, s.series, s.observations, s.logs, logger)

	s.logged = nil
	s.slept = nil
	s.collector.sleep = func(d time.Duration) { s.slept = append(s.slept, d) }
}

func (s *CollectorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCollectorTestSuite(t *testing.T) {
	suite.Run(t, new(CollectorTestSuite))
}

func (s *CollectorTestSuite) expectLogs() {
	s.logs.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry domain.LogEntry) error {
			s.logged = append(s.logged, entry)
			return nil
		},
	).AnyTimes()
}

func (s *CollectorTestSuite) activeSeries(slug string) *domain.Series {
	return &domain.Series{
		Slug:       slug,
		Name:       "Test Series",
		SourceType: "mock",
		Config:     domain.SourceConfig{},
		IsActive:   true,
	}
}

func (s *CollectorTestSuite) TestFetchSeries_Success() {
	ctx := context.Background()
	s.expectLogs()

	s.series.EXPECT().GetBySlug(ctx, "cpi").Return(s.activeSeries("cpi"), nil)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{
		{Date: "2023-01-01", Value: "1.5"},
		{Date: "2023-01-02", Value: "."},
		{Date: "2023-01-03", Value: "2.5"},
	}, nil)
	s.observations.EXPECT().Save(ctx, "cpi", gomock.Len(2)).Return(
		domain.SaveStats{Inserted: 2}, nil,
	)

	res := s.collector.FetchSeries(ctx, "cpi")

	s.True(res.OK)
	s.Equal(2, res.Count)
	s.Equal(2, res.Inserted)
	s.Equal(0, res.Updated)
	s.Contains(res.Message, "2 observations (2 new, 0 updated)")

	s.Require().Len(s.logged, 1)
	s.Equal(domain.StatusSuccess, s.logged[0].Status)
	s.Equal("fetch_series", s.logged[0].Action)
}

func (s *CollectorTestSuite) TestFetchSeries_NotFound() {
	ctx := context.Background()

	s.series.EXPECT().GetBySlug(ctx, "missing").Return(nil, nil)

	res := s.collector.FetchSeries(ctx, "missing")

	s.False(res.OK)
	s.Contains(res.Message, "not found")
	s.Empty(s.logged)
}

func (s *CollectorTestSuite) TestFetchSeries_InactiveSkipsFetch() {
	ctx := context.Background()

	series := s.activeSeries("paused")
	series.IsActive = false
	s.series.EXPECT().GetBySlug(ctx, "paused").Return(series, nil)

	// No FetchData expectation: the source must not be called.
	res := s.collector.FetchSeries(ctx, "paused")

	s.False(res.OK)
	s.Contains(res.Message, "inactive")
	s.Empty(s.logged)
}

func (s *CollectorTestSuite) TestFetchSeries_UnknownSourceType() {
	ctx := context.Background()
	s.expectLogs()

	series := s.activeSeries("odd")
	series.SourceType = "nope"
	s.series.EXPECT().GetBySlug(ctx, "odd").Return(series, nil)

	res := s.collector.FetchSeries(ctx, "odd")

	s.False(res.OK)
	s.Contains(res.Message, "unknown source type")
	s.Require().Len(s.logged, 1)
	s.Equal(domain.StatusError, s.logged[0].Status)
}

func (s *CollectorTestSuite) TestFetchSeries_FetchError() {
	ctx := context.Background()
	s.expectLogs()

	s.series.EXPECT().GetBySlug(ctx, "cpi").Return(s.activeSeries("cpi"), nil)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return(nil, errors.New("rate limit exceeded"))

	res := s.collector.FetchSeries(ctx, "cpi")

	s.False(res.OK)
	s.Contains(res.Message, "rate limit")
	s.Require().Len(s.logged, 1)
	s.Equal(domain.StatusError, s.logged[0].Status)
	s.Contains(s.logged[0].Message, "rate limit")
}

func (s *CollectorTestSuite) TestFetchSeries_AllPointsDropped() {
	ctx := context.Background()
	s.expectLogs()

	s.series.EXPECT().GetBySlug(ctx, "cpi").Return(s.activeSeries("cpi"), nil)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{
		{Date: "2023-01-01", Value: "."},
		{Date: "garbage", Value: "1.0"},
	}, nil)

	res := s.collector.FetchSeries(ctx, "cpi")

	s.False(res.OK)
	s.Contains(res.Message, "no valid observations")
	s.Require().Len(s.logged, 1)
	s.Equal(domain.StatusError, s.logged[0].Status)
}

func (s *CollectorTestSuite) TestFetchSeries_SaveError() {
	ctx := context.Background()
	s.expectLogs()

	s.series.EXPECT().GetBySlug(ctx, "cpi").Return(s.activeSeries("cpi"), nil)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{
		{Date: "2023-01-01", Value: "1.0"},
	}, nil)
	s.observations.EXPECT().Save(ctx, "cpi", gomock.Any()).Return(
		domain.SaveStats{}, errors.New("connection reset"),
	)

	res := s.collector.FetchSeries(ctx, "cpi")

	s.False(res.OK)
	s.Require().Len(s.logged, 1)
	s.Equal(domain.StatusError, s.logged[0].Status)
}

func (s *CollectorTestSuite) TestRefreshAll_WarningOnAnyFailure() {
	ctx := context.Background()
	s.expectLogs()

	list := []domain.Series{*s.activeSeries("ok-series"), *s.activeSeries("bad-series")}
	s.series.EXPECT().ListActive(ctx).Return(list, nil)

	s.series.EXPECT().GetBySlug(ctx, "ok-series").Return(s.activeSeries("ok-series"), nil)
	s.series.EXPECT().GetBySlug(ctx, "bad-series").Return(s.activeSeries("bad-series"), nil)

	gomock.InOrder(
		s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{{Date: "2023-01-01", Value: "1"}}, nil),
		s.src.EXPECT().FetchData(ctx, gomock.Any()).Return(nil, errors.New("boom")),
	)
	s.observations.EXPECT().Save(ctx, "ok-series", gomock.Any()).Return(domain.SaveStats{Inserted: 1}, nil)

	res := s.collector.RefreshAll(ctx)

	s.Equal(2, res.Total)
	s.Equal(1, res.Success)
	s.Equal(1, res.Failed)
	s.True(res.Details["ok-series"].OK)
	s.False(res.Details["bad-series"].OK)

	batch := s.logged[len(s.logged)-1]
	s.Equal("refresh_batch", batch.Action)
	s.Equal(domain.StatusWarning, batch.Status)
	s.Contains(batch.Message, "2 total, 1 success, 1 failed")
}

func (s *CollectorTestSuite) TestRefreshAll_SuccessStatus() {
	ctx := context.Background()
	s.expectLogs()

	s.series.EXPECT().ListActive(ctx).Return([]domain.Series{*s.activeSeries("only")}, nil)
	s.series.EXPECT().GetBySlug(ctx, "only").Return(s.activeSeries("only"), nil)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{{Date: "2023-01-01", Value: "1"}}, nil)
	s.observations.EXPECT().Save(ctx, "only", gomock.Any()).Return(domain.SaveStats{Inserted: 1}, nil)

	res := s.collector.RefreshAll(ctx)

	s.Equal(0, res.Failed)
	batch := s.logged[len(s.logged)-1]
	s.Equal(domain.StatusSuccess, batch.Status)
}

func (s *CollectorTestSuite) TestRefreshAll_PacingBetweenSeries() {
	ctx := context.Background()
	s.expectLogs()

	list := []domain.Series{*s.activeSeries("a"), *s.activeSeries("b"), *s.activeSeries("c")}
	s.series.EXPECT().ListActive(ctx).Return(list, nil)
	s.series.EXPECT().GetBySlug(ctx, gomock.Any()).Return(s.activeSeries("x"), nil).Times(3)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{{Date: "2023-01-01", Value: "1"}}, nil).Times(3)
	s.observations.EXPECT().Save(ctx, gomock.Any(), gomock.Any()).Return(domain.SaveStats{Inserted: 1}, nil).Times(3)

	s.collector.RefreshAll(ctx)

	// One pause between consecutive series, none after the last.
	s.Equal([]time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, s.slept)
}

func (s *CollectorTestSuite) TestRefreshSourceTypes() {
	ctx := context.Background()
	s.expectLogs()

	s.series.EXPECT().ListActiveBySourceTypes(ctx, []string{"mock"}).Return(
		[]domain.Series{*s.activeSeries("m1")}, nil,
	)
	s.series.EXPECT().GetBySlug(ctx, "m1").Return(s.activeSeries("m1"), nil)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{{Date: "2023-01-01", Value: "1"}}, nil)
	s.observations.EXPECT().Save(ctx, "m1", gomock.Any()).Return(domain.SaveStats{Inserted: 1}, nil)

	res := s.collector.RefreshSourceTypes(ctx, []string{"mock"})
	s.Equal(1, res.Success)
}

func (s *CollectorTestSuite) TestRefreshStale() {
	ctx := context.Background()
	s.expectLogs()

	s.series.EXPECT().ListStale(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, cutoff time.Time) ([]domain.Series, error) {
			s.WithinDuration(time.Now().Add(-48*time.Hour), cutoff, time.Minute)
			return []domain.Series{*s.activeSeries("dusty")}, nil
		},
	)
	s.series.EXPECT().GetBySlug(ctx, "dusty").Return(s.activeSeries("dusty"), nil)
	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{{Date: "2023-01-01", Value: "1"}}, nil)
	s.observations.EXPECT().Save(ctx, "dusty", gomock.Any()).Return(domain.SaveStats{Inserted: 1}, nil)

	res := s.collector.RefreshStale(ctx, 48*time.Hour)
	s.Equal(1, res.Success)
}

func (s *CollectorTestSuite) TestPreview_NoStorageCalls() {
	ctx := context.Background()

	s.src.EXPECT().FetchData(ctx, gomock.Any()).Return([]domain.RawPoint{
		{Date: "2023-01-03", Value: "3"},
		{Date: "2023-01-01", Value: "1"},
		{Date: "2023-01-02", Value: "2"},
	}, nil)

	res, err := s.collector.Preview(ctx, "mock", domain.SourceConfig{}, 2)

	s.NoError(err)
	s.Equal(3, res.Total)
	s.Len(res.Points, 2)
	s.Equal(time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), res.Start)
	s.Equal(time.Date(2023, time.January, 3, 0, 0, 0, 0, time.UTC), res.End)
}

func (s *CollectorTestSuite) TestPreview_UnknownSourceType() {
	_, err := s.collector.Preview(context.Background(), "nope", domain.SourceConfig{}, 5)
	s.Error(err)
}

func (s *CollectorTestSuite) TestTestSource_LogsOutcome() {
	ctx := context.Background()
	s.expectLogs()

	s.src.EXPECT().TestConnection(ctx, gomock.Any()).Return(domain.TestResult{OK: true, Message: "Connected"})

	res := s.collector.TestSource(ctx, "mock", domain.SourceConfig{})

	s.True(res.OK)
	s.Require().Len(s.logged, 1)
	s.Equal("test_connection", s.logged[0].Action)
	s.Equal(domain.StatusSuccess, s.logged[0].Status)

	s.src.EXPECT().TestConnection(ctx, gomock.Any()).Return(domain.TestResult{Message: "bad key"})
	res = s.collector.TestSource(ctx, "mock", domain.SourceConfig{})

	s.False(res.OK)
	s.Equal(domain.StatusError, s.logged[1].Status)
}
