package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bookcircle/internal/importer"
)

// CoversClient checks the Open Library covers service for a large cover.
type CoversClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewCoversClient(baseURL string, httpClient *http.Client) *CoversClient {
	return &CoversClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *CoversClient) Name() string { return "covers" }

// Lookup only contributes a cover URL. default=false makes the service
// answer 404 instead of serving a placeholder image.
func (c *CoversClient) Lookup(ctx context.Context, isbn string) (*importer.Record, error) {
	cover := fmt.Sprintf("%s/b/isbn/%s-L.jpg", c.baseURL, url.PathEscape(isbn))

	resp, err := get(ctx, c.httpClient, http.MethodHead, cover+"?default=false")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return &importer.Record{CoverURLs: []string{cover}}, nil
	case http.StatusNotFound:
		return nil, importer.ErrNoData
	default:
		return nil, &importer.HTTPStatusError{Source: c.Name(), Code: resp.StatusCode}
	}
}
