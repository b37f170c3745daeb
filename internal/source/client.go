package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// UserAgent identifies the fetcher to providers that accept it.
	UserAgent = "SeriesFetcher/1.0"

	// DefaultTimeout bounds a full fetch request.
	DefaultTimeout = 60 * time.Second
)

// Get performs an HTTP GET with the given user agent and returns the
// status code and full body. A non-2xx status is not an error here;
// adapters map status codes to provider-specific messages.
func Get(ctx context.Context, client *http.Client, url, userAgent string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, body, nil
}
