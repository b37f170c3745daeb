package domain

import "time"

// FetchResult describes the outcome of refreshing a single series.
type FetchResult struct {
	OK       bool
	Message  string
	Count    int
	Inserted int
	Updated  int
	Errors   int
}

// BatchResult aggregates the outcome of refreshing many series.
type BatchResult struct {
	Total   int
	Success int
	Failed  int
	Details map[string]FetchResult
}

// SaveStats counts rows written by an observation save.
type SaveStats struct {
	Inserted int
	Updated  int
	Errors   int
}

// TestResult is the outcome of a source connection test.
type TestResult struct {
	OK          bool
	Message     string
	SampleCount int
}

// PreviewResult is a dry-run fetch that never touches storage.
type PreviewResult struct {
	Points []Point
	Total  int
	Start  time.Time
	End    time.Time
}

type ValueStats struct {
	Min   float64 `db:"min"`
	Max   float64 `db:"max"`
	Avg   float64 `db:"avg"`
	Count int     `db:"count"`
}

type DashboardStats struct {
	TotalSeries       int
	ActiveSeries      int
	TotalObservations int
	LatestObservation *time.Time
	RecentErrors      int
}
