// Package source defines the contract every data provider adapter
// implements and the registry the collector resolves them from.
package source

import (
	"context"
	"time"

	"series_fetcher/internal/domain"
)

//go:generate mockgen -source=source.go -destination=mocks/mocks.go -package=mocks

// Source is a single remote data provider.
type Source interface {
	// Type returns the stable key a series references in source_type.
	Type() string
	Name() string
	Description() string

	// Configured reports whether required credentials are present.
	// Keyless providers always return true.
	Configured() bool

	// PacingDelay is the minimum gap between consecutive requests to
	// this provider during a batch run.
	PacingDelay() time.Duration

	// ConfigFields describes the per-series settings this provider
	// understands.
	ConfigFields() []FieldSpec

	// TestConnection performs one lightweight remote call. Expected
	// failures (missing key, unknown identifier) come back as an
	// unsuccessful result, not an error.
	TestConnection(ctx context.Context, cfg domain.SourceConfig) domain.TestResult

	// FetchData retrieves all observations for the configured series.
	FetchData(ctx context.Context, cfg domain.SourceConfig) ([]domain.RawPoint, error)
}

// FieldSpec describes one provider config field.
type FieldSpec struct {
	Key         string
	Type        string // "text", "select", "number", "textarea"
	Label       string
	Description string
	Required    bool
	Options     []string
	Default     string
}

// Descriptor is the capability summary of a registered source.
type Descriptor struct {
	Type        string
	Name        string
	Description string
	Configured  bool
	Fields      []FieldSpec
}
