package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SourceConfig holds provider-specific settings for a series, stored as JSON.
type SourceConfig map[string]string

func (c SourceConfig) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (c *SourceConfig) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*c = SourceConfig{}
		return nil
	default:
		return fmt.Errorf("unsupported source config type %T", src)
	}
	if len(data) == 0 {
		*c = SourceConfig{}
		return nil
	}
	return json.Unmarshal(data, c)
}

type Series struct {
	ID          int64        `db:"id"`
	Slug        string       `db:"slug"`
	Name        string       `db:"name"`
	SourceType  string       `db:"source_type"`
	Config      SourceConfig `db:"source_config"`
	IsActive    bool         `db:"is_active"`
	LastUpdated *time.Time   `db:"last_updated"`
	CreatedAt   time.Time    `db:"created_at"`
}

// RawPoint is one observation as a provider returned it, before validation.
type RawPoint struct {
	Date  string
	Value string
}

// Point is a validated observation ready for storage.
type Point struct {
	Date  time.Time
	Value float64
}

type Observation struct {
	ID         int64     `db:"id"`
	SeriesSlug string    `db:"series_slug"`
	Date       time.Time `db:"obs_date"`
	Value      float64   `db:"obs_value"`
	CreatedAt  time.Time `db:"created_at"`
}
