// Package clients talks to the bibliographic services books are imported
// from.
package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"bookcircle/internal/importer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const userAgent = "bookcircle/1.0 (+https://github.com/bookcircle/bookcircle)"

// maxPayload caps how much of a metadata response is read.
const maxPayload = 4 << 20

// NewHTTPClient returns a client whose requests are traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func get(ctx context.Context, client *http.Client, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	return client.Do(req)
}

// getJSON fetches url, decodes the body into v and returns the body as
// read. A 404 means the service does not know the ISBN.
func getJSON(ctx context.Context, client *http.Client, source, url string, v any) ([]byte, error) {
	resp, err := get(ctx, client, http.MethodGet, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, importer.ErrNoData
	case resp.StatusCode != http.StatusOK:
		return nil, &importer.HTTPStatusError{Source: source, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", source, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", importer.ErrBadPayload, source, err)
	}
	return body, nil
}
