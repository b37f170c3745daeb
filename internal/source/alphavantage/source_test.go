package alphavantage

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"series_fetcher/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFetchData_TimeSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		assert.Equal(t, "IBM", r.URL.Query().Get("symbol"))
		assert.Equal(t, "full", r.URL.Query().Get("outputsize"))
		w.Write([]byte(`{
			"Meta Data": {"2. Symbol": "IBM"},
			"Time Series (Daily)": {
				"2023-07-14": {"1. open": "133.0", "4. close": "134.2"},
				"2023-07-13": {"1. open": "132.1", "4. close": "133.9"}
			}
		}`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, APIKey: "test-key"}, testLogger())

	points, err := src.FetchData(context.Background(), domain.SourceConfig{
		"function": "TIME_SERIES_DAILY",
		"symbol":   "IBM",
	})
	require.NoError(t, err)
	require.Len(t, points, 2)

	byDate := map[string]string{}
	for _, p := range points {
		byDate[p.Date] = p.Value
	}
	assert.Equal(t, "134.2", byDate["2023-07-14"])
	assert.Equal(t, "133.9", byDate["2023-07-13"])
}

func TestFetchData_FX(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "EUR", r.URL.Query().Get("from_symbol"))
		assert.Equal(t, "USD", r.URL.Query().Get("to_symbol"))
		w.Write([]byte(`{
			"Time Series FX (Daily)": {
				"2023-07-14": {"4. close": "1.1228"}
			}
		}`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, APIKey: "test-key"}, testLogger())

	points, err := src.FetchData(context.Background(), domain.SourceConfig{
		"function":    "FX_DAILY",
		"from_symbol": "EUR",
		"to_symbol":   "USD",
	})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "1.1228", points[0].Value)
}

func TestFetchData_Economic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "UNEMPLOYMENT", r.URL.Query().Get("function"))
		w.Write([]byte(`{
			"name": "Unemployment Rate",
			"data": [
				{"date": "2023-06-01", "value": "3.6"},
				{"date": "2023-05-01", "value": "3.7"}
			]
		}`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, APIKey: "test-key"}, testLogger())

	points, err := src.FetchData(context.Background(), domain.SourceConfig{"function": "UNEMPLOYMENT"})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, domain.RawPoint{Date: "2023-06-01", Value: "3.6"}, points[0])
}

func TestFetchData_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call. Please retry or visit the documentation."}`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, APIKey: "test-key"}, testLogger())

	_, err := src.FetchData(context.Background(), domain.SourceConfig{"symbol": "NOPE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API call")
}

func TestFetchData_RateLimitNote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 25 requests per day."}`))
	}))
	defer server.Close()

	src := New(Config{BaseURL: server.URL, APIKey: "test-key"}, testLogger())

	_, err := src.FetchData(context.Background(), domain.SourceConfig{"symbol": "IBM"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestFetchData_MissingKey(t *testing.T) {
	src := New(Config{}, testLogger())
	assert.False(t, src.Configured())

	_, err := src.FetchData(context.Background(), domain.SourceConfig{"symbol": "IBM"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestFetchData_UnsupportedFunction(t *testing.T) {
	src := New(Config{APIKey: "test-key"}, testLogger())

	_, err := src.FetchData(context.Background(), domain.SourceConfig{"function": "TIME_SERIES_INTRADAY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported function")
}

func TestFetchData_MissingSymbol(t *testing.T) {
	src := New(Config{APIKey: "test-key"}, testLogger())

	_, err := src.FetchData(context.Background(), domain.SourceConfig{"function": "FX_DAILY"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from_symbol")
}
