package domain

import "time"

const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// ValidStatus reports whether s is one of the known log statuses.
func ValidStatus(s string) bool {
	return s == StatusSuccess || s == StatusWarning || s == StatusError
}

type LogEntry struct {
	ID         int64     `db:"id"`
	SeriesSlug *string   `db:"series_slug"`
	SourceType *string   `db:"source_type"`
	Action     string    `db:"action"`
	Status     string    `db:"status"`
	Message    string    `db:"message"`
	CreatedAt  time.Time `db:"created_at"`
}

type LogFilter struct {
	SeriesSlug string
	Status     string
	Days       int
	Search     string
	Limit      int
	Offset     int
}
