package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"series_fetcher/internal/domain"
)

type stubSource struct {
	typeKey    string
	configured bool
}

func (s *stubSource) Type() string               { return s.typeKey }
func (s *stubSource) Name() string               { return "Stub " + s.typeKey }
func (s *stubSource) Description() string        { return "stub" }
func (s *stubSource) Configured() bool           { return s.configured }
func (s *stubSource) PacingDelay() time.Duration { return 0 }
func (s *stubSource) ConfigFields() []FieldSpec  { return nil }

func (s *stubSource) TestConnection(context.Context, domain.SourceConfig) domain.TestResult {
	return domain.TestResult{}
}

func (s *stubSource) FetchData(context.Context, domain.SourceConfig) ([]domain.RawPoint, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSource{typeKey: "beta"})
	r.Register(&stubSource{typeKey: "alpha", configured: true})

	src, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", src.Type())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"alpha", "beta"}, r.Types())

	descriptors := r.Describe()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "alpha", descriptors[0].Type)
	assert.True(t, descriptors[0].Configured)
	assert.False(t, descriptors[1].Configured)
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubSource{typeKey: "alpha"})
	r.Register(&stubSource{typeKey: "alpha", configured: true})

	src, ok := r.Get("alpha")
	require.True(t, ok)
	assert.True(t, src.Configured())
	assert.Len(t, r.Types(), 1)
}
